package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkraft/scrumdeck/internal/auth"
	"github.com/mkraft/scrumdeck/internal/persist"
	"github.com/mkraft/scrumdeck/internal/session"
	"github.com/mkraft/scrumdeck/internal/store"
	"github.com/mkraft/scrumdeck/internal/ws"
)

func setupTestAPI(t *testing.T) (*API, *session.Registry) {
	t.Helper()

	fs, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	core := session.NewRegistry(nil)
	svc := persist.NewService(persist.NewRepository(fs, "rooms"), auth.NewBcryptHasher())
	return New(ws.NewHub(), core, svc), core
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestHealthHandler(t *testing.T) {
	a, _ := setupTestAPI(t)

	rec := httptest.NewRecorder()
	a.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestGetRoomNotFound(t *testing.T) {
	a, _ := setupTestAPI(t)

	rec := httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/ghost", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetRoomLive(t *testing.T) {
	a, core := setupTestAPI(t)
	core.Join("alpha", "c1", "Alice")

	rec := httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/alpha", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["live"] != true {
		t.Error("Room should be reported live")
	}
	if body["participants"] != float64(1) {
		t.Errorf("Expected 1 participant, got %v", body["participants"])
	}
}

func TestGetRoomInvalidCode(t *testing.T) {
	a, _ := setupTestAPI(t)

	rec := httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/bad%20code", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	a, _ := setupTestAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/alpha/password",
		strings.NewReader(`{"password":"hunter2"}`))
	a.RoomsRouter(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Set password: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/rooms/alpha/verify",
		strings.NewReader(`{"password":"hunter2"}`))
	a.RoomsRouter(rec, req)
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Error("Correct password should verify")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/rooms/alpha/verify",
		strings.NewReader(`{"password":"wrong"}`))
	a.RoomsRouter(rec, req)
	if body := decodeBody(t, rec); body["ok"] != false {
		t.Error("Wrong password should not verify")
	}
}

func TestVerifyMissingRoomFailsClosed(t *testing.T) {
	a, _ := setupTestAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/ghost/verify",
		strings.NewReader(`{"password":""}`))
	a.RoomsRouter(rec, req)
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Error("Blank password against a missing room should pass")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/rooms/ghost/verify",
		strings.NewReader(`{"password":"secret"}`))
	a.RoomsRouter(rec, req)
	if body := decodeBody(t, rec); body["ok"] != false {
		t.Error("Non-blank password against a missing room should fail")
	}
}

func TestDeleteRoom(t *testing.T) {
	a, _ := setupTestAPI(t)

	// Nothing stored yet
	rec := httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodDelete, "/api/rooms/alpha", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	// Store something via the password path, then delete it
	rec = httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodPost, "/api/rooms/alpha/password",
		strings.NewReader(`{"password":""}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodDelete, "/api/rooms/alpha", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestListRooms(t *testing.T) {
	a, core := setupTestAPI(t)
	core.Join("alpha", "c1", "Alice")
	core.Join("beta", "c2", "Bob")

	rec := httptest.NewRecorder()
	a.RoomsRouter(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	rooms := body["rooms"].([]interface{})
	if len(rooms) != 2 {
		t.Errorf("Expected 2 rooms, got %d", len(rooms))
	}
}
