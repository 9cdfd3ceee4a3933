package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultStreamPrefix namespaces per-investigation Redis streams.
const DefaultStreamPrefix = "ehrlich:events:"

const payloadVersion = "v1"

// Envelope is the message persisted to a Redis stream entry.
type Envelope struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	InvestigationID string          `json:"investigation_id"`
	OccurredAt      time.Time       `json:"occurred_at"`
	PayloadVersion  string          `json:"payload_version"`
	Data            json.RawMessage `json:"data"`
}

// ValidateBasic ensures mandatory envelope fields are present.
func (e *Envelope) ValidateBasic() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.InvestigationID == "" {
		return fmt.Errorf("investigation_id is required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("data payload is required")
	}
	return nil
}

// UnmarshalEnvelope parses and validates a stored envelope.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}

// Wire returns the event carried by the envelope.
func (e Envelope) Wire() (WireEvent, error) {
	var data map[string]any
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return WireEvent{}, fmt.Errorf("decode event data: %w", err)
	}
	return WireEvent{Event: e.EventType, Data: data}, nil
}

// NewEnvelope wraps ev for storage.
func NewEnvelope(investigationID string, ev WireEvent) (Envelope, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.NewString(),
		EventType:       ev.Event,
		InvestigationID: investigationID,
		OccurredAt:      time.Now().UTC(),
		PayloadVersion:  payloadVersion,
		Data:            data,
	}
	return env, env.ValidateBasic()
}

// StreamSink appends events to one Redis stream per investigation.
type StreamSink struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
}

// NewStreamSink creates a sink. maxLen > 0 trims streams approximately.
func NewStreamSink(client redis.UniversalClient, prefix string, maxLen int64) *StreamSink {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return &StreamSink{client: client, prefix: prefix, maxLen: maxLen}
}

// Stream returns the stream key for an investigation.
func (s *StreamSink) Stream(investigationID string) string {
	return s.prefix + investigationID
}

// Publish implements Sink.
func (s *StreamSink) Publish(ctx context.Context, investigationID string, ev WireEvent) error {
	env, err := NewEnvelope(investigationID, ev)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.Stream(investigationID),
		Values: map[string]interface{}{"envelope": raw},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Replay reads up to count stored envelopes in order, for reconnecting clients.
func (s *StreamSink) Replay(ctx context.Context, investigationID string, count int64) ([]Envelope, error) {
	msgs, err := s.client.XRangeN(ctx, s.Stream(investigationID), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}
	out := make([]Envelope, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["envelope"].(string)
		if !ok {
			continue
		}
		env, err := UnmarshalEnvelope([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}
