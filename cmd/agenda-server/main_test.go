package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agenda/agenda/internal/config"
	"github.com/agenda/agenda/internal/platform/auth"
	"github.com/agenda/agenda/internal/platform/docstore/memstore"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "debug",
		StoreBackend:       config.BackendMemory,
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		QuotaFreeLimit:     10,
		QuotaEnforceDirect: true,
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, h http.Handler, method, path, body, professionalID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if professionalID != "" {
		req.Header.Set(auth.DevProfessionalHeader, professionalID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Health(t *testing.T) {
	e := newServer(testConfig(), memstore.New(), nil, zerolog.Nop(), prometheus.NewRegistry())

	rec := do(t, e, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["store"] != config.BackendMemory {
		t.Errorf("unexpected health body %v", body)
	}

	if rec := do(t, e, http.MethodGet, "/health/db", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected /health/db to be absent without a pool, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestNewServer_DBHealth(t *testing.T) {
	e := newServer(testConfig(), memstore.New(), fakePinger{}, zerolog.Nop(), prometheus.NewRegistry())
	if rec := do(t, e, http.MethodGet, "/health/db", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	e = newServer(testConfig(), memstore.New(), fakePinger{err: errors.New("down")}, zerolog.Nop(), prometheus.NewRegistry())
	if rec := do(t, e, http.MethodGet, "/health/db", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestNewServer_BookingFlow(t *testing.T) {
	e := newServer(testConfig(), memstore.New(), nil, zerolog.Nop(), prometheus.NewRegistry())
	const pro = "pro-42"

	rec := do(t, e, http.MethodPut, "/api/v1/profile",
		`{"slug":"dr-silva","name":"Dr. Silva","onlineValue":12000,"inPersonValue":18000}`, pro)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, tm := range []string{"09:00", "10:00"} {
		rec = do(t, e, http.MethodPost, "/api/v1/availability/2030-01-07/slots", `{"time":"`+tm+`"}`, pro)
		if rec.Code != http.StatusCreated {
			t.Fatalf("add slot %s: expected 201, got %d: %s", tm, rec.Code, rec.Body.String())
		}
	}

	booking := `{"professionalSlug":"dr-silva","date":"2030-01-07","time":"09:00","patientName":"Maria","patientContact":"maria@example.com"}`
	rec = do(t, e, http.MethodPost, "/api/v1/public/bookings", booking, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Success       bool   `json:"success"`
		AppointmentID string `json:"appointmentId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if !res.Success || res.AppointmentID == "" {
		t.Errorf("unexpected booking result %+v", res)
	}

	if rec := do(t, e, http.MethodPost, "/api/v1/public/bookings", booking, ""); rec.Code != http.StatusConflict {
		t.Errorf("double booking: expected 409, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodGet, "/api/v1/public/professionals/dr-silva/slots?date=2030-01-07", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: expected 200, got %d", rec.Code)
	}
	var slots struct {
		Slots []struct {
			Time string `json:"time"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(slots.Slots) != 1 || slots.Slots[0].Time != "10:00" {
		t.Errorf("expected only 10:00 to remain free, got %+v", slots.Slots)
	}

	if rec := do(t, e, http.MethodGet, "/api/v1/quota", "", pro); rec.Code != http.StatusOK {
		t.Errorf("quota: expected 200, got %d", rec.Code)
	}
}

func TestNewServer_PublicUnknownProfessional(t *testing.T) {
	e := newServer(testConfig(), memstore.New(), nil, zerolog.Nop(), prometheus.NewRegistry())
	rec := do(t, e, http.MethodGet, "/api/v1/public/professionals/nobody/slots?date=2030-01-07", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestNewServer_RequiresTokenOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "staging"
	cfg.AuthSigningKey = "test-secret"
	e := newServer(cfg, memstore.New(), nil, zerolog.Nop(), prometheus.NewRegistry())

	if rec := do(t, e, http.MethodGet, "/api/v1/quota", "", "pro-42"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a bearer token, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health must stay open, got %d", rec.Code)
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.Env = "production"
		cfg.LogLevel = tt.in
		if got := newLogger(cfg).GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig()
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer st.Close()
	if st.pool != nil {
		t.Error("memory backend must not open a pool")
	}

	cfg.StoreBackend = "sqlite"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}
