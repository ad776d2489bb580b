package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carebridge/intake/internal/routing"
	"github.com/carebridge/intake/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func newTestRouter(dir *routing.Directory) http.Handler {
	r := chi.NewRouter()
	NewExecutivesHandler(dir, zerolog.Nop()).Routes(r)
	roster := NewRosterHandler(dir, zerolog.Nop())
	r.Post("/internal/staff/roster", roster.HandleRoster)
	r.Post("/internal/staff/{id}/active", roster.HandleSetActive)
	return r
}

func seedDirectory() *routing.Directory {
	dir := routing.NewDirectory(zerolog.Nop())
	dir.Upsert(types.StaffMember{
		ID: "admin-1", Name: "Root", Role: types.RoleAdmin, Active: true,
		Specialization: types.SpecGeneral, CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	dir.Upsert(types.StaffMember{
		ID: "card-1", Name: "Anna", Role: types.RoleSpecialist, Active: true,
		Specialization: types.SpecCardiology, MaxLoad: 5, CurrentLoad: 2,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	dir.Upsert(types.StaffMember{
		ID: "card-2", Name: "Ben", Role: types.RoleSpecialist, Active: true,
		Specialization: types.SpecCardiology, MaxLoad: 5, CurrentLoad: 0,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	return dir
}

func TestListExecutives(t *testing.T) {
	router := newTestRouter(seedDirectory())

	req := httptest.NewRequest(http.MethodGet, "/executives", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Executives []types.StaffMember `json:"executives"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Executives) != 2 {
		t.Errorf("expected 2 executives without admins, got %d", len(body.Executives))
	}

	req = httptest.NewRequest(http.MethodGet, "/executives?includeAdmins=true", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Executives) != 3 {
		t.Errorf("expected 3 executives with admins, got %d", len(body.Executives))
	}
}

func TestBySpecialization(t *testing.T) {
	router := newTestRouter(seedDirectory())

	req := httptest.NewRequest(http.MethodGet, "/executives/by-specialization?specialization=Cardiology", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Executive *types.StaffMember `json:"executive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Executive == nil || body.Executive.ID != "card-2" {
		t.Errorf("expected least-loaded card-2, got %+v", body.Executive)
	}
}

func TestBySpecializationMissingParam(t *testing.T) {
	router := newTestRouter(seedDirectory())

	req := httptest.NewRequest(http.MethodGet, "/executives/by-specialization", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing specialization, got %d", rec.Code)
	}
}

func TestBySpecializationNoCandidate(t *testing.T) {
	dir := routing.NewDirectory(zerolog.Nop())
	dir.Upsert(types.StaffMember{
		ID: "derm-1", Name: "Dora", Role: types.RoleSpecialist, Active: true,
		Specialization: types.SpecDermatology,
	})
	router := newTestRouter(dir)

	req := httptest.NewRequest(http.MethodGet, "/executives/by-specialization?specialization=Cardiology", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body struct {
		Executive *types.StaffMember `json:"executive"`
		Reason    string             `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Executive != nil {
		t.Errorf("expected null executive, got %+v", body.Executive)
	}
	if body.Reason != types.ReasonNoCandidate {
		t.Errorf("expected reason %q, got %q", types.ReasonNoCandidate, body.Reason)
	}
}

func TestDefaultExecutive(t *testing.T) {
	router := newTestRouter(seedDirectory())

	req := httptest.NewRequest(http.MethodGet, "/executives/default", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body struct {
		Executive *types.StaffMember `json:"executive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Executive == nil || body.Executive.ID != "admin-1" {
		t.Errorf("expected admin in default chain, got %+v", body.Executive)
	}
}

func TestValidateLifecycle(t *testing.T) {
	dir := seedDirectory()
	router := newTestRouter(dir)

	req := httptest.NewRequest(http.MethodGet, "/executives/card-1/validate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body struct {
		Valid     bool               `json:"valid"`
		Executive *types.StaffMember `json:"executive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Valid || body.Executive == nil {
		t.Fatalf("expected valid executive, got %+v", body)
	}

	// Deactivate, then validate again
	payload := bytes.NewBufferString(`{"active": false}`)
	req = httptest.NewRequest(http.MethodPost, "/internal/staff/card-1/active", payload)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deactivating, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/executives/card-1/validate", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	body.Executive = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Valid {
		t.Error("expected valid=false after deactivation")
	}
	if body.Executive != nil {
		t.Error("expected no executive payload for invalid id")
	}
}

func TestRosterRegistration(t *testing.T) {
	dir := routing.NewDirectory(zerolog.Nop())
	router := newTestRouter(dir)

	payload := bytes.NewBufferString(`[
		{"name": "Anna", "specialization": "Cardiology", "maxLoad": 5},
		{"name": "Root", "role": "admin"},
		{"name": ""}
	]`)
	req := httptest.NewRequest(http.MethodPost, "/internal/staff/roster", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["registered"] != 2 {
		t.Errorf("expected 2 registered, got %d", body["registered"])
	}
	if dir.Count() != 2 {
		t.Errorf("expected 2 directory entries, got %d", dir.Count())
	}
}

func TestRosterInvalidJSON(t *testing.T) {
	router := newTestRouter(routing.NewDirectory(zerolog.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/internal/staff/roster", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
