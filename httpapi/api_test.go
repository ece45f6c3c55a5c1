package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voidwarp/core"
	"github.com/voidwarp/core/transfer"
)

func newTestBackend(t *testing.T) *core.Backend {
	t.Helper()
	dir := t.TempDir()

	backend, status, err := core.Init("httpapi-test/1.0", filepath.Join(dir, "Config.yaml"), nil, nil)
	if err != nil || status != core.ExitSuccess {
		t.Fatalf("core.Init: status=%d err=%v", status, err)
	}
	t.Cleanup(backend.Shutdown)
	return backend
}

func TestStatusReportsDeviceIdentityAndCounts(t *testing.T) {
	backend := newTestBackend(t)
	api := Start(backend, nil, uuid.Nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}

	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.DeviceID != backend.Identity.DeviceID {
		t.Fatalf("got device ID %q, want %q", got.DeviceID, backend.Identity.DeviceID)
	}
	if got.TransferCount != 0 {
		t.Fatalf("expected zero transfers, got %d", got.TransferCount)
	}
}

func TestTransfersReflectsRegisteredProgress(t *testing.T) {
	backend := newTestBackend(t)
	api := Start(backend, nil, uuid.Nil)

	api.RegisterTransfer("sender-1", "sender", func() transfer.Progress {
		return transfer.Progress{BytesTransferred: 50, TotalBytes: 200}
	})
	defer api.UnregisterTransfer("sender-1")

	req := httptest.NewRequest(http.MethodGet, "/transfers", nil)
	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)

	var got []transferSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(got))
	}
	if got[0].ID != "sender-1" || got[0].Bytes != 50 || got[0].Total != 200 {
		t.Fatalf("got %+v", got[0])
	}
}

func TestAuthenticateMiddlewareRejectsMissingKey(t *testing.T) {
	backend := newTestBackend(t)
	apiKey := uuid.New()
	api := Start(backend, nil, apiKey)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("x-api-key", apiKey.String())
	rec = httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 with a valid key", rec.Code)
	}
}

func TestTransfersStreamPushesSnapshots(t *testing.T) {
	backend := newTestBackend(t)
	api := Start(backend, nil, uuid.Nil)

	api.RegisterTransfer("recv-1", "receiver", func() transfer.Progress {
		return transfer.Progress{BytesTransferred: 10, TotalBytes: 10}
	})
	defer api.UnregisterTransfer("recv-1")

	server := httptest.NewServer(api.Router)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/transfers/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []transferSnapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(got) != 1 || got[0].ID != "recv-1" {
		t.Fatalf("got %+v", got)
	}
}
