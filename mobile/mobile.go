/*
File Name:  mobile.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package mobile exposes the engine's host-facing operation table (spec.md
§6) as methods on an opaque *Handle, mirroring ffi.rs's
VoidWarpHandle/voidwarp_* shape and the teacher's MobileMain/core.Init/
backend.Connect() embedding pattern - reexpressed as plain Go methods
rather than C exports, since this module's deliverable is a Go library,
not a cgo shim.
*/
package mobile

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/voidwarp/core"
	"github.com/voidwarp/core/discovery"
	"github.com/voidwarp/core/security"
	"github.com/voidwarp/core/transfer"
	"github.com/voidwarp/core/transport"
)

// errNotFound is returned when a sender/receiver ID does not refer to a
// live instance - it may have already been destroyed.
var errNotFound = errors.New("mobile: unknown handle")

// Handle is the opaque engine instance a host embeds. All methods are
// panic-safe per spec.md §4.7: an uncaught fault is recovered at the
// boundary and reported as an error rather than crashing the host.
type Handle struct {
	backend *core.Backend

	mu        sync.Mutex
	senders   map[uuid.UUID]*transfer.Sender
	receivers map[uuid.UUID]*transfer.Receiver
}

// Init creates the engine: loads (or seeds) configFilename, generates a
// DeviceIdentity, and prepares discovery without starting it. Per
// spec.md §6, init never aborts - configuration/log failures are
// reported as an error rather than left to terminate the process.
func Init(userAgent, configFilename string) (handle *Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("mobile: panic during Init: %v", r)
		}
	}()

	backend, status, initErr := core.Init(userAgent, configFilename, nil, nil)
	if status != core.ExitSuccess {
		return nil, fmt.Errorf("mobile: init failed with status %d: %w", status, initErr)
	}

	return &Handle{
		backend:   backend,
		senders:   make(map[uuid.UUID]*transfer.Sender),
		receivers: make(map[uuid.UUID]*transfer.Receiver),
	}, nil
}

// Destroy stops all background activity: discovery services, and any
// senders/receivers still outstanding (their sockets are closed by
// stopping the receiver's accept loop; in-flight sends are left to the
// host's own Cancel call, since SendTo runs on the caller's goroutine).
func (h *Handle) Destroy() {
	defer func() { recover() }()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.receivers {
		r.Stop()
	}
	h.receivers = make(map[uuid.UUID]*transfer.Receiver)
	h.senders = make(map[uuid.UUID]*transfer.Sender)

	h.backend.Shutdown()
}

// GetDeviceID returns this engine's identity.
func (h *Handle) GetDeviceID() string {
	return h.backend.Identity.DeviceID
}

// GeneratePairingCode returns a freshly generated, hyphenated pairing
// code for out-of-band confirmation (spec.md §3). It is not tied to the
// device identity and carries no state.
func (h *Handle) GeneratePairingCode() string {
	return security.GeneratePairingCode().Display()
}

// StartDiscovery registers this device and starts the mDNS/UDP beacon
// background loops. Per spec.md §6 it always reports success; callers
// that need to know whether mDNS itself is working should check
// IsFallback.
func (h *Handle) StartDiscovery() {
	h.backend.Connect()
}

// IsFallback reports whether discovery downgraded to manual-peer-only
// mode because mDNS could not be registered.
func (h *Handle) IsFallback() bool {
	return h.backend.Discovery.IsFallback()
}

// AddManualPeer upserts a peer directly, bypassing discovery. Works in
// fallback mode.
func (h *Handle) AddManualPeer(id, name, ip string, port uint16) error {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return fmt.Errorf("mobile: invalid IP address %q", ip)
	}
	h.backend.Discovery.AddManualPeer(id, name, parsed, port)
	return nil
}

// GetPeers returns a snapshot of discovered peers, self excluded.
func (h *Handle) GetPeers() []discovery.DiscoveredPeer {
	return h.backend.Discovery.GetPeers()
}

// CreateSender builds a Sender for path (file or folder) and returns an
// opaque ID for subsequent SenderX calls.
func (h *Handle) CreateSender(path string) (senderID string, err error) {
	sender, err := transfer.NewSender(path)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.senders[sender.ID()] = sender
	h.mu.Unlock()

	return sender.ID().String(), nil
}

// SenderStart runs the sender state machine against addr:port, blocking
// until the transfer reaches a terminal Result. The host is expected to
// call this from a background worker (spec.md §5).
func (h *Handle) SenderStart(senderID, ip string, port uint16, senderName string) (outcome transfer.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = transfer.Outcome{Result: transfer.ResultIoError}, fmt.Errorf("mobile: panic during SenderStart: %v", r)
		}
	}()

	sender, ok := h.lookupSender(senderID)
	if !ok {
		return transfer.Outcome{}, errNotFound
	}

	addr := net.JoinHostPort(ip, fmt.Sprint(port))
	return sender.SendTo(addr, senderName), nil
}

// SenderProgress polls the current byte count for an in-flight send.
func (h *Handle) SenderProgress(senderID string) (transfer.Progress, error) {
	sender, ok := h.lookupSender(senderID)
	if !ok {
		return transfer.Progress{}, errNotFound
	}
	return sender.Progress(), nil
}

// SenderCancel requests cooperative cancellation of an in-flight send.
func (h *Handle) SenderCancel(senderID string) error {
	sender, ok := h.lookupSender(senderID)
	if !ok {
		return errNotFound
	}
	sender.Cancel()
	return nil
}

// SenderDestroy releases a sender handle.
func (h *Handle) SenderDestroy(senderID string) {
	id, err := uuid.Parse(senderID)
	if err != nil {
		return
	}
	h.mu.Lock()
	delete(h.senders, id)
	h.mu.Unlock()
}

// CreateReceiver binds a listener in the receiver port range and returns
// an opaque ID for subsequent ReceiverX calls.
func (h *Handle) CreateReceiver() (receiverID string, err error) {
	receiver, err := transfer.NewReceiver()
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.receivers[receiver.ID()] = receiver
	h.mu.Unlock()

	return receiver.ID().String(), nil
}

// ReceiverStart begins the accept loop.
func (h *Handle) ReceiverStart(receiverID string) error {
	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return errNotFound
	}
	receiver.Start()
	return nil
}

// ReceiverStop cancels the accept loop. Idempotent.
func (h *Handle) ReceiverStop(receiverID string) error {
	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return errNotFound
	}
	receiver.Stop()
	return nil
}

// ReceiverPending returns the transfer awaiting a host decision, if any.
func (h *Handle) ReceiverPending(receiverID string) (transfer.IncomingTransfer, bool, error) {
	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return transfer.IncomingTransfer{}, false, errNotFound
	}
	t, pending := receiver.PendingTransfer()
	return t, pending, nil
}

// ReceiverAccept accepts the pending transfer, writing into savePath, and
// blocks until the transfer reaches a terminal state.
func (h *Handle) ReceiverAccept(receiverID, savePath string) (outcome transfer.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = transfer.Outcome{Result: transfer.ResultIoError}, fmt.Errorf("mobile: panic during ReceiverAccept: %v", r)
		}
	}()

	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return transfer.Outcome{}, errNotFound
	}
	return receiver.AcceptTransfer(savePath), nil
}

// ReceiverReject rejects the pending transfer and restarts the accept
// loop.
func (h *Handle) ReceiverReject(receiverID string) error {
	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return errNotFound
	}
	return receiver.RejectTransfer()
}

// ReceiverState returns the receiver's current state.
func (h *Handle) ReceiverState(receiverID string) (transfer.ReceiverState, error) {
	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return transfer.StateIdle, errNotFound
	}
	return receiver.State(), nil
}

// ReceiverProgress polls the current byte count for an in-flight receive.
func (h *Handle) ReceiverProgress(receiverID string) (transfer.Progress, error) {
	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		return transfer.Progress{}, errNotFound
	}
	return receiver.Progress(), nil
}

// ReceiverDestroy stops and releases a receiver handle.
func (h *Handle) ReceiverDestroy(receiverID string) {
	id, err := uuid.Parse(receiverID)
	if err != nil {
		return
	}

	h.mu.Lock()
	receiver, ok := h.receivers[id]
	delete(h.receivers, id)
	h.mu.Unlock()

	if ok {
		receiver.Stop()
	}
}

// TransportPing verifies addr is reachable by establishing a TCP
// connection and closing it, per spec.md §6's transport_ping.
func (h *Handle) TransportPing(ip string, port uint16) error {
	return transport.Ping(net.JoinHostPort(ip, fmt.Sprint(port)))
}

func (h *Handle) lookupSender(senderID string) (*transfer.Sender, bool) {
	id, err := uuid.Parse(senderID)
	if err != nil {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sender, ok := h.senders[id]
	return sender, ok
}

func (h *Handle) lookupReceiver(receiverID string) (*transfer.Receiver, bool) {
	id, err := uuid.Parse(receiverID)
	if err != nil {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	receiver, ok := h.receivers[id]
	return receiver, ok
}
