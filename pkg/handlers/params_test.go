package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestParseEnvelopeID(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		pathValue  string
		wantOK     bool
		wantID     int64
		wantStatus int
	}{
		{name: "valid id", pathValue: "42", wantOK: true, wantID: 42},
		{name: "not a number", pathValue: "abc", wantStatus: http.StatusBadRequest},
		{name: "empty", pathValue: "", wantStatus: http.StatusBadRequest},
		{name: "zero", pathValue: "0", wantStatus: http.StatusBadRequest},
		{name: "negative", pathValue: "-3", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/pending/x/approve", nil)
			req.SetPathValue("id", tt.pathValue)
			w := httptest.NewRecorder()

			id, ok := ParseEnvelopeID(w, req, logger)

			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("id = %d, want %d", id, tt.wantID)
			}
			if tt.wantOK {
				return
			}

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != "invalid_id" {
				t.Errorf("error = %q, want %q", body["error"], "invalid_id")
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int{
		"/api/pending":            0,
		"/api/pending?limit=25":   25,
		"/api/pending?limit=-1":   0,
		"/api/pending?limit=many": 0,
	}
	for target, want := range tests {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if got := parseLimit(req); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", target, got, want)
		}
	}
}
