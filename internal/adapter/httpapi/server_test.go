package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolhopper/freeswim-etl/internal/service"
)

type fakeReadiness struct{ err error }

func (f fakeReadiness) CheckReadiness(context.Context) error { return f.err }

type fakeAvailability struct {
	now       []service.AvailableSession
	nowErr    error
	nearby    []service.NearbySession
	nearbyErr error

	gotLat, gotLng, gotRadius float64
	gotOnlyNow                bool
}

func (f *fakeAvailability) AvailableNow(context.Context) ([]service.AvailableSession, error) {
	return f.now, f.nowErr
}

func (f *fakeAvailability) AvailableNear(_ context.Context, lat, lng, radiusMeters float64, filterNow bool) ([]service.NearbySession, error) {
	f.gotLat, f.gotLng, f.gotRadius, f.gotOnlyNow = lat, lng, radiusMeters, filterNow
	return f.nearby, f.nearbyErr
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := NewServer(":0", fakeReadiness{}, slog.Default())

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	ready := NewServer(":0", fakeReadiness{}, slog.Default())
	rec := doRequest(t, ready, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	notReady := NewServer(":0", fakeReadiness{err: errors.New("no refinement pass has completed yet")}, slog.Default())
	rec = doRequest(t, notReady, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no refinement pass")
}

func TestMetricsEndpointMounted(t *testing.T) {
	srv := NewServer(":0", fakeReadiness{}, slog.Default())
	rec := doRequest(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvailableEndpoint(t *testing.T) {
	availability := &fakeAvailability{now: []service.AvailableSession{
		{Title: "올림픽수영장", Address: "서울 송파구"},
	}}
	srv := NewQueryServer(":0", fakeReadiness{}, availability, slog.Default())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/schedules/available", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []service.AvailableSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "올림픽수영장", sessions[0].Title)
}

func TestAvailableEndpoint_EmptyIsArrayNotNull(t *testing.T) {
	srv := NewQueryServer(":0", fakeReadiness{}, &fakeAvailability{}, slog.Default())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/schedules/available", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAvailableEndpoint_ServiceError(t *testing.T) {
	availability := &fakeAvailability{nowErr: errors.New("mongo down")}
	srv := NewQueryServer(":0", fakeReadiness{}, availability, slog.Default())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/schedules/available", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal detail stays out of the response body.
	assert.NotContains(t, rec.Body.String(), "mongo")
}

func TestNearbyEndpoint(t *testing.T) {
	availability := &fakeAvailability{nearby: []service.NearbySession{
		{AvailableSession: service.AvailableSession{Title: "가까운수영장"}, DistanceMeters: 420},
	}}
	srv := NewQueryServer(":0", fakeReadiness{}, availability, slog.Default())

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/schedules/nearby",
		`{"lat":37.5665,"lng":126.978,"radius_m":1500,"only_now":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 37.5665, availability.gotLat)
	assert.Equal(t, 126.978, availability.gotLng)
	assert.Equal(t, 1500.0, availability.gotRadius)
	assert.True(t, availability.gotOnlyNow)

	var sessions []service.NearbySession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, 420.0, sessions[0].DistanceMeters)
}

func TestNearbyEndpoint_BadRequests(t *testing.T) {
	srv := NewQueryServer(":0", fakeReadiness{}, &fakeAvailability{}, slog.Default())

	for name, body := range map[string]string{
		"invalid json":     `{"lat":`,
		"lat out of range": `{"lat":91,"lng":127}`,
		"lng out of range": `{"lat":37,"lng":181}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/schedules/nearby", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQueryEndpointsAbsentOnOperationalServer(t *testing.T) {
	srv := NewServer(":0", fakeReadiness{}, slog.Default())
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/schedules/available", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
