package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Sink receives flushed event batches. A non-nil error leaves the monitor's
// queues intact for retry on the next flush tick.
type Sink interface {
	Flush(ctx context.Context, batch Batch) error
}

// NoopSink drops batches.
type NoopSink struct{}

func (NoopSink) Flush(context.Context, Batch) error { return nil }

// ChannelSink writes batches into a buffered channel. Test and fan-out aid.
type ChannelSink struct {
	batches chan Batch
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		batches: make(chan Batch, buffer),
	}
}

func (s *ChannelSink) Flush(ctx context.Context, batch Batch) error {
	select {
	case s.batches <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Batches() <-chan Batch {
	return s.batches
}

// JSONWriterSink writes one JSON object per batch, one per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Flush(_ context.Context, batch Batch) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	_, err = s.writer.Write([]byte("\n"))
	return err
}

// HTTPSink posts batches to a telemetry collection endpoint.
type HTTPSink struct {
	url  string
	http *http.Client
}

// NewHTTPSink creates a sink posting to url (e.g. {base}/analytics/activity).
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{
		url:  url,
		http: client,
	}
}

func (s *HTTPSink) Flush(ctx context.Context, batch Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("monitor: telemetry endpoint returned %d", resp.StatusCode)
	}
	return nil
}
