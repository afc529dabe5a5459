package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/halcyontv/halcyon/internal/abr"
	"github.com/halcyontv/halcyon/internal/player"
)

type stubEngine struct{ buffered float64 }

func (e *stubEngine) SetRenditionLevel(int) error { return nil }
func (e *stubEngine) BufferedSeconds() float64    { return e.buffered }
func (e *stubEngine) DroppedFrames() uint64       { return 0 }

type stubRegistry struct {
	controller *abr.Controller
	reporter   *abr.Reporter
}

func (r *stubRegistry) Lookup(id string) (*abr.Controller, *abr.Reporter, bool) {
	if r.controller == nil || id != r.controller.SessionID() {
		return nil, nil, false
	}
	return r.controller, r.reporter, true
}

func (r *stubRegistry) Default() (*abr.Controller, *abr.Reporter, bool) {
	if r.controller == nil {
		return nil, nil, false
	}
	return r.controller, r.reporter, true
}

func newTestHandler(t *testing.T) (*QualityHandler, *abr.Controller) {
	t.Helper()
	c := abr.NewController(&stubEngine{buffered: 20}, abr.DefaultStabilityConfig(), nil)
	c.Initialize([]player.RawLevel{
		{Width: 426, Height: 240, Bitrate: 400_000, Name: "240p"},
		{Width: 854, Height: 480, Bitrate: 1_200_000, Name: "480p"},
		{Width: 1280, Height: 720, Bitrate: 2_500_000, Name: "720p"},
	})
	t.Cleanup(c.Dispose)
	return NewQualityHandler(&stubRegistry{controller: c}, nil), c
}

func TestHandleLevels(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.handleLevels(rec, httptest.NewRequest(http.MethodGet, "/api/quality/levels", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Levels []abr.Level `json:"levels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Levels) != 3 || body.Levels[0].Name != "240p" {
		t.Errorf("levels = %+v", body.Levels)
	}

	rec = httptest.NewRecorder()
	h.handleLevels(rec, httptest.NewRequest(http.MethodDelete, "/api/quality/levels", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleCurrentManualRoundTrip(t *testing.T) {
	h, c := newTestHandler(t)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/quality/current", strings.NewReader(body))
		h.handleCurrent(rec, req)
		return rec
	}

	rec := post(`{"levelId":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp currentLevelResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Level.ID != 1 || resp.Auto {
		t.Errorf("resp = %+v, want level 1 manual", resp)
	}
	if c.IsAutoQuality() {
		t.Error("controller still in auto mode")
	}

	// Back to auto via the sentinel.
	rec = post(`{"levelId":-1}`)
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Auto {
		t.Errorf("resp = %+v, want auto", resp)
	}

	if rec := post(`{"levelId":9}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown level status = %d, want 400", rec.Code)
	}
	if rec := post(`nonsense`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestHandleConfigUpdateClamps(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/quality/config",
		strings.NewReader(`{"bandwidthSafetyFactor":2.5,"qualityCooldownMs":-100}`))
	h.handleConfig(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var view abr.ConfigView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.BandwidthSafetyFactor != 1 {
		t.Errorf("safety = %v, want clamped to 1", view.BandwidthSafetyFactor)
	}
	if view.QualityCooldownMs != 0 {
		t.Errorf("cooldown = %d, want clamped to 0", view.QualityCooldownMs)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/quality/config",
		strings.NewReader(`{"startupProfile":"ludicrous"}`))
	h.handleConfig(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad profile status = %d, want 400", rec.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	h, c := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/quality/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var snap abr.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.SessionID != c.SessionID() {
		t.Errorf("session = %s", snap.SessionID)
	}
	if snap.BufferSeconds != 20 {
		t.Errorf("buffer = %v", snap.BufferSeconds)
	}
}

func TestHandlersWithoutSession(t *testing.T) {
	h := NewQualityHandler(&stubRegistry{}, nil)
	for _, fn := range []http.HandlerFunc{h.handleLevels, h.handleCurrent, h.handleConfig, h.handleMetrics} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/api/quality/levels", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	}
}

func TestHandlerSessionQueryParam(t *testing.T) {
	h, c := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/quality/metrics?session="+c.SessionID(), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("known session status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/quality/metrics?session=nope", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unknown session status = %d, want 503", rec.Code)
	}
}
