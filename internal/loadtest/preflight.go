package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrPreflight marks a target that was unreachable or unhealthy before load started.
var ErrPreflight = errors.New("loadtest: pre-flight check failed")

// DefaultPreflightTimeout bounds the health probe.
const DefaultPreflightTimeout = 5 * time.Second

const healthPath = "/health"

// Preflight probes GET <base>/health and requires HTTP 200.
func Preflight(ctx context.Context, client *http.Client, baseURL string, timeout time.Duration) error {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultPreflightTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPreflight, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cannot reach %s: %v", ErrPreflight, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrPreflight, url, resp.StatusCode)
	}
	return nil
}
