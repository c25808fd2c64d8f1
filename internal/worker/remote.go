package worker

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/modalhub/modalhub/internal/config"
	"github.com/modalhub/modalhub/internal/metrics"
	"github.com/modalhub/modalhub/internal/pipeline"
	"github.com/modalhub/modalhub/internal/stream"
	"github.com/modalhub/modalhub/internal/ws"
)

// Remote forwards each chunk to an inference HTTP endpoint and emits the
// backend's JSON reply through the response callback. Transient backend
// failures (network errors, 5xx) are logged and the loop continues with the
// next chunk; client-side statuses (4xx) are treated as fatal to this
// worker instance — the endpoint or credentials are wrong and retrying
// every chunk would only spam the backend.
type Remote struct {
	endpoint string
	modality string
	respond  func(ws.Message)
	client   *http.Client
	m        *metrics.Metrics

	running atomic.Bool
}

// NewRemote creates a running remote worker from the worker configuration.
func NewRemote(cfg config.WorkerConfig, respond func(ws.Message), m *metrics.Metrics) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultWorkerTimeout
	}
	r := &Remote{
		endpoint: cfg.Endpoint,
		modality: cfg.Modality,
		respond:  respond,
		m:        m,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: cfg.Auth},
			Timeout:   timeout,
		},
	}
	r.running.Store(true)
	return r
}

// Process pulls chunks from src and forwards them until Stop is called or a
// fatal backend error occurs.
func (r *Remote) Process(src pipeline.Source) {
	for r.running.Load() {
		chunk, ok := src.GetChunk()
		if !ok {
			time.Sleep(chunkPollInterval)
			continue
		}

		reply, fatal, err := r.infer(chunk)
		if err != nil {
			r.m.WorkerError()
			if fatal {
				slog.Error("worker: fatal backend error — stopping this pipeline",
					"endpoint", r.endpoint, "err", err)
				return
			}
			slog.Warn("worker: backend call failed — continuing with next chunk",
				"endpoint", r.endpoint, "err", err)
			continue
		}
		r.respond(ws.TextBytes(reply))
	}
}

// Stop requests the processing loop to exit on its next flag check. An
// in-flight backend call is allowed to complete first.
func (r *Remote) Stop() {
	r.running.Store(false)
}

// infer posts one chunk to the backend. The bool result reports whether the
// error is fatal to this worker instance.
func (r *Remote) infer(chunk stream.Chunk) ([]byte, bool, error) {
	body, err := json.Marshal(r.requestFor(chunk))
	if err != nil {
		return nil, false, fmt.Errorf("encode request: %w", err)
	}

	resp, err := r.client.Post(r.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fatal := resp.StatusCode >= 400 && resp.StatusCode < 500
		return nil, fatal, fmt.Errorf("backend status %d", resp.StatusCode)
	}
	return reply, false, nil
}

func (r *Remote) requestFor(chunk stream.Chunk) map[string]any {
	b64 := base64.StdEncoding.EncodeToString(chunk.Data)
	if r.modality == "video" {
		req := map[string]any{"image": b64}
		if chunk.Width > 0 {
			req["width"] = chunk.Width
			req["height"] = chunk.Height
		}
		return req
	}
	return map[string]any{"audio": b64, "rate": chunk.Rate}
}

// authRoundTripper injects the configured API key header into every
// outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.auth.Mode == "apikey" {
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	}
	return t.base.RoundTrip(req)
}
