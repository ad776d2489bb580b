package sim

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func setupTestAPI(t *testing.T, running bool) (*Simulator, *mux.Router) {
	t.Helper()

	// Port 1 refuses connections, visitors browse offline
	sim := NewSimulator("ws://127.0.0.1:1/ws/visitor", zerolog.Nop())
	api := NewControlAPI(sim, zerolog.Nop())

	if running {
		if err := sim.Start(1); err != nil {
			t.Fatalf("failed to start simulator: %v", err)
		}
		t.Cleanup(func() { sim.Stop() })
	}

	router := mux.NewRouter()
	api.SetupRoutes(router)
	return sim, router
}

func TestHealthHandler(t *testing.T) {
	_, router := setupTestAPI(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %s", body["status"])
	}
}

func TestStatusHandler(t *testing.T) {
	_, router := setupTestAPI(t, false)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["running"] != false {
		t.Fatalf("expected running=false, got %v", body["running"])
	}
}

func TestStartHandler(t *testing.T) {
	sim, router := setupTestAPI(t, false)
	t.Cleanup(func() { sim.Stop() })

	payload := `{"concurrency": 2}`
	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["concurrency"] != float64(2) {
		t.Fatalf("expected concurrency=2, got %v", body["concurrency"])
	}
	if !sim.Running() {
		t.Fatal("expected simulator to be running")
	}
}

func TestStartHandler_AlreadyRunning(t *testing.T) {
	_, router := setupTestAPI(t, true)

	payload := `{"concurrency": 2}`
	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestStopHandler(t *testing.T) {
	sim, router := setupTestAPI(t, true)

	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sim.Running() {
		t.Fatal("expected simulator to be stopped")
	}
}

func TestStopHandler_NotRunning(t *testing.T) {
	_, router := setupTestAPI(t, false)

	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestScaleHandler(t *testing.T) {
	sim, router := setupTestAPI(t, true)

	payload := `{"concurrency": 3}`
	req := httptest.NewRequest(http.MethodPost, "/scale", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sim.Target() != 3 {
		t.Fatalf("expected target 3, got %d", sim.Target())
	}
}

func TestScaleHandler_NotRunning(t *testing.T) {
	_, router := setupTestAPI(t, false)

	payload := `{"concurrency": 3}`
	req := httptest.NewRequest(http.MethodPost, "/scale", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestScaleHandler_InvalidCount(t *testing.T) {
	_, router := setupTestAPI(t, true)

	payload := `{"concurrency": -5}`
	req := httptest.NewRequest(http.MethodPost, "/scale", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	_, router := setupTestAPI(t, false)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if _, ok := body["visitors_started"]; !ok {
		t.Fatal("expected visitors_started in stats")
	}
}
