package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FairForge/streamcheck/internal/mockserver"
	"github.com/stretchr/testify/assert"
)

func TestPreflight_Healthy(t *testing.T) {
	srv := newMock(t, mockserver.Config{})
	assert.NoError(t, Preflight(context.Background(), nil, srv.URL, time.Second))
}

func TestPreflight_Unhealthy(t *testing.T) {
	srv := newMock(t, mockserver.Config{Unhealthy: true})

	err := Preflight(context.Background(), nil, srv.URL, time.Second)
	assert.ErrorIs(t, err, ErrPreflight)
	assert.Contains(t, err.Error(), "503")
}

func TestPreflight_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := Preflight(context.Background(), nil, url, time.Second)
	assert.ErrorIs(t, err, ErrPreflight)
}

func TestPreflight_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	err := Preflight(context.Background(), nil, srv.URL, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrPreflight)
	assert.Less(t, time.Since(start), time.Second)
}
