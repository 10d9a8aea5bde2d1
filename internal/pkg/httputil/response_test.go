package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"stage": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["data"].(map[string]any)["stage"])
}

func TestTooManyRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	TooManyRequests(rec, "limit reached", map[string]int{"dailyLimit": 5, "messagesSentToday": 5})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "daily_limit_reached", body.Code)
	assert.Equal(t, "limit reached", body.Error)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantOK bool
	}{
		{"valid", `{"count":3}`, true},
		{"empty", ``, true},
		{"broken", `{"count":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst struct{ Count int }
			assert.Equal(t, tt.wantOK, Decode(rec, req, &dst))
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			}
		})
	}
}
