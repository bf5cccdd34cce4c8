package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textcal/internal/config"
	"textcal/internal/ics"
	"textcal/internal/pipeline"
)

var anchor = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	gen, err := pipeline.FromConfig(cfg, ics.WithClock(func() time.Time { return anchor }))
	require.NoError(t, err)
	return NewServer(cfg, gen, WithClock(func() time.Time { return anchor }))
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) generateResponse {
	t.Helper()
	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGenerate_JSON(t *testing.T) {
	body := `{"text":"I have a chemistry exam on June 19th at 9 AM and a meeting the day after. Buy groceries"}`
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, newTestServer(t, nil).Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	resp := decode(t, rec)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "Chemistry Exam", resp.Events[0].Title)
	assert.True(t, time.Date(2024, time.June, 19, 9, 0, 0, 0, time.UTC).Equal(resp.Events[0].Start))
	assert.Equal(t, "Meeting", resp.Events[1].Title)
	assert.True(t, time.Date(2024, time.June, 20, 10, 0, 0, 0, time.UTC).Equal(resp.Events[1].End))

	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, 2, resp.Skipped[0].Index)
	assert.Equal(t, "buy groceries", resp.Skipped[0].Text)
	assert.Contains(t, resp.Skipped[0].Reason, "no date found")

	assert.Empty(t, resp.Warnings)
	assert.Equal(t, "UTC", resp.Timezone)
	assert.True(t, strings.HasPrefix(resp.Document, "BEGIN:VCALENDAR\r\n"))
}

func TestGenerate_CalendarAccept(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("dentist tomorrow at 3 pm"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "text/calendar, application/json;q=0.5")

	rec := do(t, newTestServer(t, nil).Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ics.DefaultFileName)
	assert.Contains(t, rec.Body.String(), "DTSTART:20240102T150000Z\r\n")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Dentist\r\n")
}

func TestGenerate_FormWithOverrides(t *testing.T) {
	form := url.Values{
		"text":     {"standup tomorrow at 9 am"},
		"now":      {"2024-03-04T12:00:00Z"},
		"timezone": {"Asia/Seoul"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	srv := newTestServer(t, nil)
	rec := do(t, srv.Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, "Asia/Seoul", resp.Timezone)
	require.Len(t, resp.Events, 1)
	// 2024-03-04 12:00Z is 21:00 in Seoul, so tomorrow is March 5.
	assert.Contains(t, resp.Document, "DTSTART:20240305T000000Z\r\n")

	// The zone generator is cached for later requests.
	srv.zonesMu.RLock()
	_, cached := srv.zones["Asia/Seoul"]
	srv.zonesMu.RUnlock()
	assert.True(t, cached)
}

func TestGenerate_NoEvents(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"text":"buy groceries"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, newTestServer(t, nil).Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.Empty(t, resp.Events)
	assert.Len(t, resp.Skipped, 1)
	assert.Equal(t, []string{"no events found"}, resp.Warnings)
}

func TestGenerate_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		contains    string
	}{
		{name: "missing text", contentType: "application/json", body: `{}`, contains: "text"},
		{name: "blank text", contentType: "application/json", body: `{"text":"   "}`, contains: "empty input"},
		{name: "bad now", contentType: "application/json", body: `{"text":"gym tomorrow","now":"yesterday"}`, contains: "now"},
		{name: "bad timezone", contentType: "application/json", body: `{"text":"gym tomorrow","timezone":"Mars/Olympus"}`, contains: "timezone"},
		{name: "malformed json", contentType: "application/json", body: `{"text":`, contains: "invalid JSON"},
		{name: "unknown field", contentType: "application/json", body: `{"text":"gym tomorrow","title":"x"}`, contains: "invalid JSON"},
		{name: "empty plain body", contentType: "text/plain", body: ``, contains: "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			rec := do(t, newTestServer(t, nil).Handler(), req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var e struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.Contains(t, e.Error, tt.contains)
		})
	}
}

func TestGenerate_MethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), httptest.NewRequest(http.MethodGet, "/api/generate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	h := newTestServer(t, cfg).Handler()

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"text":"gym tomorrow"}`))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	rec := do(t, h, newReq())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := newReq()
	req.SetBasicAuth("admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, do(t, h, req).Code)

	req = newReq()
	req.SetBasicAuth("admin", "s3cret")
	assert.Equal(t, http.StatusOK, do(t, h, req).Code)

	// Health stays open.
	assert.Equal(t, http.StatusOK, do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}
