// Package utils provides small helpers for outbound HTTP calls, client
// identification and request rate limiting.
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultHTTPClient is used by PostJSON when no client is supplied.
var DefaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// PostJSON marshals payload, POSTs it to url and decodes a JSON response into
// out. A non-2xx status is returned as an error carrying the status line.
func PostJSON(ctx context.Context, client *http.Client, url string, payload any, out any) error {
	if client == nil {
		client = DefaultHTTPClient
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: %s", url, resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
