package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SegmentDelimiter separates response segments in engine output. The engine
// is instructed to insert it between ideas so long answers arrive as several
// short WhatsApp messages.
const SegmentDelimiter = "---"

// DefaultSegmentDelay is the pause between consecutive segments of one
// response.
const DefaultSegmentDelay = 500 * time.Millisecond

// SplitSegments splits an engine response on the segment delimiter and trims
// each piece. Empty pieces are dropped. If the delimiters leave nothing, the
// whole trimmed response is returned as a single segment so the recipient
// never loses a reply to over-eager splitting; a blank response yields no
// segments at all.
func SplitSegments(response string) []string {
	parts := strings.Split(response, SegmentDelimiter)
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	if len(segments) == 0 {
		fallback := strings.TrimSpace(response)
		if fallback == "" {
			return nil
		}
		return []string{fallback}
	}
	return segments
}

// Deliverer sends a multi-segment response through a messaging service,
// pacing consecutive segments so they read as separate chat bubbles.
type Deliverer struct {
	service Service
	delay   time.Duration
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithSegmentDelay overrides the pause between segments.
func WithSegmentDelay(delay time.Duration) DelivererOption {
	return func(d *Deliverer) { d.delay = delay }
}

// NewDeliverer constructs a Deliverer over the given service.
func NewDeliverer(service Service, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{service: service, delay: DefaultSegmentDelay}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeliverResponse splits the response and sends the segments in order. After
// the first send failure, remaining segments are abandoned: delivering a
// tail without its head would garble the conversation.
func (d *Deliverer) DeliverResponse(ctx context.Context, to, from, response string) error {
	segments := SplitSegments(response)
	slog.Debug("Deliverer.DeliverResponse: delivering response", "to", to, "segments", len(segments))

	for i, segment := range segments {
		if i > 0 && d.delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("delivery interrupted after %d of %d segments: %w", i, len(segments), ctx.Err())
			case <-time.After(d.delay):
			}
		}
		if err := d.service.SendMessage(ctx, to, from, segment); err != nil {
			slog.Error("Deliverer.DeliverResponse: segment delivery failed",
				"to", to, "segment", i+1, "total", len(segments), "error", err)
			return fmt.Errorf("failed to deliver segment %d of %d: %w", i+1, len(segments), err)
		}
	}
	return nil
}
