/*
File Name:  types.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package transfer implements the sender and receiver state machines that move
a single file or a folder between two devices over the wire protocol in
package protocol.
*/
package transfer

import "time"

// Timeouts, per spec.md §4.4/§4.5.
const (
	ConnectTimeout   = 10 * time.Second
	AckTimeout       = 30 * time.Second
	HandshakeTimeout = 60 * time.Second
	DataTimeout      = 30 * time.Second
)

// DefaultChunkSize is used when a Sender does not set one explicitly.
const DefaultChunkSize = 1024 * 1024

// MaxRetries is the total number of send attempts for a single chunk, the
// first send included, before the sender gives up.
const MaxRetries = 3

// ReceiverPortRangeStart and ReceiverPortRangeEnd bound the receiver's
// preferred listen port; outside this range it falls back to an OS-assigned
// ephemeral port.
const (
	ReceiverPortRangeStart = 42424
	ReceiverPortRangeEnd   = 42434
)

// Result is the terminal outcome of a send attempt.
type Result int

const (
	ResultSuccess Result = iota
	ResultRejected
	ResultChecksumMismatch
	ResultConnectionFailed
	ResultTimeout
	ResultCancelled
	ResultIoError
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultRejected:
		return "Rejected"
	case ResultChecksumMismatch:
		return "ChecksumMismatch"
	case ResultConnectionFailed:
		return "ConnectionFailed"
	case ResultTimeout:
		return "Timeout"
	case ResultCancelled:
		return "Cancelled"
	case ResultIoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Outcome pairs a Result with the underlying error, if any, for the
// ConnectionFailed/IoError variants that in the original carry a message.
type Outcome struct {
	Result Result
	Err    error
}

func (o Outcome) Error() string {
	if o.Err == nil {
		return o.Result.String()
	}
	return o.Result.String() + ": " + o.Err.Error()
}

// ReceiverState is the state of a Receiver instance.
type ReceiverState int

const (
	StateIdle ReceiverState = iota
	StateListening
	StateAwaitingAccept
	StateReceiving
	StateCompleted
	StateError
)

func (s ReceiverState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateAwaitingAccept:
		return "AwaitingAccept"
	case StateReceiving:
		return "Receiving"
	case StateCompleted:
		return "Completed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}
