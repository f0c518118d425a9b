package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/plexsphere/plexvpn/internal/controlapi"
)

// requestTimeout bounds a single control request.
const requestTimeout = 30 * time.Second

// newSocketClient creates an HTTP client that connects via Unix socket.
func newSocketClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// socketURL returns a URL for the given path using the Unix socket.
func socketURL(path string) string {
	return "http://localhost" + path
}

// socketDo sends a request with an optional JSON body to the daemon and
// decodes a successful JSON response into out.
func socketDo(socketPath, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, socketURL(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := newSocketClient(socketPath)
	defer client.CloseIdleConnections()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not running or socket unavailable at %s: %w", socketPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// socketMutate performs a mutating request and returns the resulting status.
func socketMutate(method, path string, body any) (controlapi.Status, error) {
	var st controlapi.Status
	err := socketDo(socketPath, method, path, body, &st)
	return st, err
}
