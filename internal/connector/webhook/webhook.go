// Package webhook escalates blocked tickets by POSTing a signed JSON
// payload to a configured endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/waggle-io/waggle/internal/workflow"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body,
// hex-encoded with a "sha256=" prefix, when a secret is configured.
const SignatureHeader = "X-Waggle-Signature-256"

// Config holds webhook escalation configuration.
type Config struct {
	URL string `json:"url"`
	// Secret for HMAC-SHA256 request signing. If empty, requests are
	// unsigned.
	Secret string `json:"secret,omitempty"`
}

// Payload is the JSON body delivered to the endpoint.
type Payload struct {
	TicketID   string    `json:"ticket_id"`
	Title      string    `json:"title"`
	Reason     string    `json:"reason"`
	Kind       string    `json:"kind"`
	ReportedBy string    `json:"reported_by"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Escalator delivers escalations over HTTP.
type Escalator struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a webhook escalator.
func New(cfg Config, logger *slog.Logger) (*Escalator, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Escalator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}, nil
}

func (e *Escalator) Name() string { return "webhook" }

// Escalate POSTs the signed payload to the configured endpoint.
func (e *Escalator) Escalate(ctx context.Context, esc workflow.Escalation) error {
	body, err := json.Marshal(Payload{
		TicketID:   esc.TicketID,
		Title:      esc.Title,
		Reason:     esc.Reason,
		Kind:       string(esc.Kind),
		ReportedBy: esc.ReportedBy,
		AssignedTo: esc.AssignedTo,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(e.config.Secret, body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post escalation: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the body. Intended for
// endpoint implementations consuming these webhooks.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
