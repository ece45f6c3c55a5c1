/*
File Name:  Filter.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Filters allow the caller to intercept events. The filter functions must not modify any data.
*/

package core

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/voidwarp/core/discovery"
)

// Filters contains all functions to install the hook. Use nil for unused.
// The functions are called sequentially and block execution; if the filter
// takes a long time it should start a Go routine.
type Filters struct {
	// NewPeer is stored with the other filters, but the discovery manager
	// does not call it: newly discovered peers are only visible through
	// GetPeers snapshots.
	NewPeer func(peer discovery.DiscoveredPeer)

	// LogError is called for the errors passed to Backend.LogError: the
	// mDNS registration failure in Connect, the diagnostics API's serve,
	// encode and upgrade errors, and errors logged by the host. Discovery
	// interface failures and per-chunk checksum mismatches are not reported
	// through it.
	LogError func(function, format string, v ...interface{})
}

func (backend *Backend) initFilters() {
	// Set default filters to blank functions so they can be safely called
	// without constant nil checks. Only if not already set before init.

	if backend.Filters.NewPeer == nil {
		backend.Filters.NewPeer = func(peer discovery.DiscoveredPeer) {}
	}
	if backend.Filters.LogError == nil {
		backend.Filters.LogError = func(function, format string, v ...interface{}) {}
	}
}

// MultiWriter code that allows to subscribe/unsubscribe.
type multiWriter struct {
	writers map[uuid.UUID]io.Writer
	sync.Mutex
}

// Creates a new writer that duplicates its writes to all the subscribed writers.
// Each write is written to each subscribed writer, one at a time. If any writer returns an error, the entire write operation continues.
func newMultiWriter() *multiWriter {
	return &multiWriter{writers: make(map[uuid.UUID]io.Writer)}
}

// Subscribe a new writer to the list of writers
func (m *multiWriter) Subscribe(writer io.Writer) (id uuid.UUID) {
	m.Lock()
	defer m.Unlock()

	id = uuid.New()
	m.writers[id] = writer

	return id
}

// Unsubscribe a writer from the list of writers
func (m *multiWriter) Unsubscribe(id uuid.UUID) {
	m.Lock()
	defer m.Unlock()

	delete(m.writers, id)
}

// Write a slice of byte to each of the subscribed writers. It will not return any errors.
func (m *multiWriter) Write(p []byte) (n int, err error) {
	m.Lock()
	defer m.Unlock()

	for _, w := range m.writers {
		w.Write(p)
	}
	return len(p), nil
}
