package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxReplyBytes caps how much of a server reply is kept in the result message.
const maxReplyBytes = 4096

// HTTPSender POSTs payloads as JSON.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates a sender using client, or http.DefaultClient when nil.
// Request deadlines come from the context passed to Send.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{client: client}
}

// Send POSTs payload to u. Non-2xx responses are errors that include the
// status and reply body; on success the reply body is returned.
func (s *HTTPSender) Send(ctx context.Context, u *url.URL, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", u.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	reply := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if reply == "" {
			return "", fmt.Errorf("server returned %s", resp.Status)
		}
		return "", fmt.Errorf("server returned %s: %s", resp.Status, reply)
	}
	if reply == "" {
		reply = resp.Status
	}
	return "reading sent: " + reply, nil
}
