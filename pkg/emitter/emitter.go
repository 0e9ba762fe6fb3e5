// Package emitter POSTs JSON documents to the remote collector over one
// long-lived HTTP client, shared by every component that produces
// observations.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/rs/zerolog"
)

const defaultTimeout = 5 * time.Second

// Emitter serializes records and POSTs them to the collector. It has no
// retry logic: callers decide whether a failure means "cache nothing and
// try again next tick" (syscall aggregator, flow classifier) or "log and
// move on" (registry, service watcher).
type Emitter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// New returns an Emitter POSTing against baseURL (e.g. API_ENDPOINT).
func New(baseURL string) *Emitter {
	return &Emitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log.WithComponent("emitter"),
	}
}

// Post serializes doc as JSON and POSTs it to baseURL/path.
func (e *Emitter) Post(ctx context.Context, path string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("emitter: marshal %s: %w", path, err)
	}

	url := e.baseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("emitter: build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	timer := metrics.NewTimer()
	resp, err := e.client.Do(req)
	timer.ObserveDurationVec(metrics.EmitterRequestDuration, path)
	if err != nil {
		metrics.EmitterFailuresTotal.WithLabelValues(path).Inc()
		e.log.Warn().Err(err).Str("path", path).Msg("collector post failed")
		return fmt.Errorf("emitter: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.EmitterFailuresTotal.WithLabelValues(path).Inc()
		e.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("collector post rejected")
		return fmt.Errorf("emitter: post %s: unexpected status %d", path, resp.StatusCode)
	}

	return nil
}
