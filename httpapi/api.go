/*
File Name:  api.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package httpapi is the optional diagnostics surface (spec.md §4.10): a
read-only HTTP+websocket API for host UIs that prefer polling/streaming
JSON over the mobile FFI-shaped boundary. It is entirely additive -
core.Backend functions fully without it, matching the teacher's webapi
being a separate, independently-started package from core.
*/
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/voidwarp/core"
	"github.com/voidwarp/core/transfer"
)

// streamInterval is how often /transfers/stream pushes a fresh snapshot.
const streamInterval = 250 * time.Millisecond

// wsUpgrader allows all origins, matching the teacher's own WSUpgrader -
// this is a LAN diagnostics endpoint, not a public-internet one.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressFunc polls the live Progress of a registered sender or receiver.
type ProgressFunc func() transfer.Progress

type transferEntry struct {
	Kind     string // "sender" | "receiver"
	Progress ProgressFunc
}

// Instance is a running diagnostics API bound to zero or more listeners.
type Instance struct {
	Backend *core.Backend
	Router  *mux.Router
	apiKey  uuid.UUID

	mu        sync.RWMutex
	transfers map[string]transferEntry
}

// Start registers the diagnostics routes and begins listening on each
// address in listen. apiKey may be uuid.Nil to disable authentication,
// matching the teacher's own escape hatch (not recommended, but the
// diagnostics surface is meant for trusted LAN tooling).
func Start(backend *core.Backend, listen []string, apiKey uuid.UUID) *Instance {
	api := &Instance{
		Backend:   backend,
		Router:    mux.NewRouter(),
		apiKey:    apiKey,
		transfers: make(map[string]transferEntry),
	}

	if apiKey != uuid.Nil {
		api.Router.Use(api.authenticateMiddleware)
	}

	api.Router.HandleFunc("/status", api.apiStatus).Methods("GET")
	api.Router.HandleFunc("/peers", api.apiPeers).Methods("GET")
	api.Router.HandleFunc("/transfers", api.apiTransfers).Methods("GET")
	api.Router.HandleFunc("/transfers/stream", api.apiTransfersStream).Methods("GET")

	for _, addr := range listen {
		go api.serve(addr)
	}

	return api
}

func (api *Instance) serve(listen string) {
	api.Backend.LogError("httpapi.serve", "starting diagnostics API on '%s'", listen)

	server := &http.Server{
		Addr:    listen,
		Handler: api.Router,
	}
	if err := server.ListenAndServe(); err != nil {
		api.Backend.LogError("httpapi.serve", "listening on '%s': %v", listen, err)
	}
}

// RegisterTransfer makes a sender or receiver's progress visible at
// /transfers and /transfers/stream under id. kind is "sender" or
// "receiver".
func (api *Instance) RegisterTransfer(id, kind string, progress ProgressFunc) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.transfers[id] = transferEntry{Kind: kind, Progress: progress}
}

// UnregisterTransfer removes a transfer from the diagnostics surface. It
// does not touch the underlying sender/receiver.
func (api *Instance) UnregisterTransfer(id string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	delete(api.transfers, id)
}

// statusResponse is the /status payload.
type statusResponse struct {
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	Version       string `json:"version"`
	Fallback      bool   `json:"fallback"`
	PeerCount     int    `json:"peer_count"`
	TransferCount int    `json:"transfer_count"`
}

func (api *Instance) apiStatus(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	transferCount := len(api.transfers)
	api.mu.RUnlock()

	encodeJSON(api.Backend, w, r, statusResponse{
		DeviceID:      api.Backend.Identity.DeviceID,
		DeviceName:    api.Backend.Identity.DeviceName,
		Version:       core.Version,
		Fallback:      api.Backend.Discovery.IsFallback(),
		PeerCount:     len(api.Backend.Discovery.GetPeers()),
		TransferCount: transferCount,
	})
}

func (api *Instance) apiPeers(w http.ResponseWriter, r *http.Request) {
	encodeJSON(api.Backend, w, r, api.Backend.Discovery.GetPeers())
}

// transferSnapshot is one entry of the /transfers payload.
type transferSnapshot struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Bytes      uint64  `json:"bytes_transferred"`
	Total      uint64  `json:"total_bytes"`
	Percentage float32 `json:"percentage"`
}

func (api *Instance) snapshotTransfers() []transferSnapshot {
	api.mu.RLock()
	defer api.mu.RUnlock()

	out := make([]transferSnapshot, 0, len(api.transfers))
	for id, entry := range api.transfers {
		p := entry.Progress()
		out = append(out, transferSnapshot{
			ID:         id,
			Kind:       entry.Kind,
			Bytes:      p.BytesTransferred,
			Total:      p.TotalBytes,
			Percentage: p.Percentage(),
		})
	}
	return out
}

func (api *Instance) apiTransfers(w http.ResponseWriter, r *http.Request) {
	encodeJSON(api.Backend, w, r, api.snapshotTransfers())
}

// apiTransfersStream pushes a JSON snapshot of all registered transfers
// every streamInterval until the client disconnects.
func (api *Instance) apiTransfersStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		api.Backend.LogError("apiTransfersStream", "upgrade: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(api.snapshotTransfers()); err != nil {
			return
		}
	}
}

func encodeJSON(backend *core.Backend, w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		backend.LogError("encodeJSON", "writing response for '%s': %v", r.URL.Path, err)
	}
}

// authenticateMiddleware requires a matching x-api-key header on every
// request, mirroring webapi/API.go's authenticateMiddleware.
func (api *Instance) authenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyID, err := uuid.Parse(r.Header.Get("x-api-key"))
		if err != nil || keyID != api.apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
