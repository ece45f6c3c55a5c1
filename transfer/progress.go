/*
File Name:  progress.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transfer

// Progress is a polled snapshot of a transfer in flight.
type Progress struct {
	BytesTransferred uint64
	TotalBytes       uint64
}

// Percentage returns 0-100; a zero-byte transfer reports 100.
func (p Progress) Percentage() float32 {
	if p.TotalBytes == 0 {
		return 100.0
	}
	return float32(p.BytesTransferred) / float32(p.TotalBytes) * 100.0
}
