package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"certifier/internal/app"
	"certifier/internal/platform/config"
	id "certifier/pkg/domain"
)

const publicBaseURL = "https://example.test"

// Response is a captured HTTP exchange.
type Response struct {
	Status int
	Body   []byte
}

// TestContext holds state between test steps. Every scenario gets its own
// in-process application backed by in-memory stores.
type TestContext struct {
	App        *app.Application
	Server     *httptest.Server
	HTTPClient *http.Client

	TenantID    id.TenantID
	AccessToken string

	Participants map[string]id.ParticipantID
	Events       map[string]id.EventID

	LastResponse    Response
	ParallelResults []Response

	CredentialID string
	Fingerprint  string

	Receiver *WebhookReceiver
}

// WebhookReceiver records every delivery POSTed to it.
type WebhookReceiver struct {
	server *httptest.Server
	mu     sync.Mutex
	bodies [][]byte
}

func newWebhookReceiver() *WebhookReceiver {
	rcv := &WebhookReceiver{}
	rcv.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rcv.mu.Lock()
		rcv.bodies = append(rcv.bodies, body)
		rcv.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return rcv
}

func (r *WebhookReceiver) URL() string { return r.server.URL }

// Events returns the event names delivered so far.
func (r *WebhookReceiver) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.bodies))
	for _, b := range r.bodies {
		var payload struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(b, &payload) == nil {
			out = append(out, payload.Event)
		}
	}
	return out
}

// NewTestContext boots the application with zero infrastructure.
func NewTestContext(ctx context.Context) (*TestContext, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Environment = "test"
	cfg.PublicBaseURL = publicBaseURL
	cfg.SeedDemoData = false
	cfg.Database.URL = ""
	cfg.Redis.URL = ""
	cfg.Kafka.Brokers = ""
	cfg.Storage.Endpoint = ""
	cfg.Webhooks.SecretKeyBase64 = ""

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	application, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap application: %w", err)
	}

	return &TestContext{
		App:          application,
		Server:       httptest.NewServer(application.Router),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second, CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }},
		Participants: make(map[string]id.ParticipantID),
		Events:       make(map[string]id.EventID),
	}, nil
}

// Close stops the server, the receiver and the application's workers.
func (tc *TestContext) Close() {
	tc.Server.Close()
	if tc.Receiver != nil {
		tc.Receiver.server.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tc.App.Close(ctx)
}

func (tc *TestContext) do(ctx context.Context, method, path string, body any, auth bool) (Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, tc.Server.URL+path, reader)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+tc.AccessToken)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response body: %w", err)
	}
	return Response{Status: resp.StatusCode, Body: data}, nil
}

// POST makes an authenticated JSON POST and stores the response.
func (tc *TestContext) POST(ctx context.Context, path string, body any) error {
	resp, err := tc.do(ctx, http.MethodPost, path, body, true)
	if err != nil {
		return err
	}
	tc.LastResponse = resp
	return nil
}

// GET makes an unauthenticated GET and stores the response.
func (tc *TestContext) GET(ctx context.Context, path string) error {
	resp, err := tc.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return err
	}
	tc.LastResponse = resp
	return nil
}

// Field walks a dotted path through the last JSON response.
func (tc *TestContext) Field(path string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponse.Body, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for _, key := range strings.Split(path, ".") {
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s: %q is not an object", path, key)
		}
		data, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("field %s not found in response: %s", path, tc.LastResponse.Body)
		}
	}
	return data, nil
}

// eventually polls check until it passes or the deadline expires.
func eventually(ctx context.Context, check func() error) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := check()
		if err == nil || time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}
