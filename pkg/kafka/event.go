package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// SchemaVersion is stamped on every event this package builds.
const SchemaVersion = 1

// Event is the envelope every storefront message is wrapped in. Key is the
// partition key, so events about one product stay ordered.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Key           string            `json:"key"`
	Subject       string            `json:"subject,omitempty"`
	Schema        int               `json:"schema"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Source        string            `json:"source,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
}

// Option sets an optional envelope field.
type Option func(*Event)

// WithSource names the emitting service.
func WithSource(source string) Option {
	return func(e *Event) { e.Source = source }
}

// WithSubject names the kind of entity Key refers to, e.g. "product".
func WithSubject(subject string) Option {
	return func(e *Event) { e.Subject = subject }
}

// WithCorrelationID ties the event to the request that caused it.
func WithCorrelationID(id string) Option {
	return func(e *Event) { e.CorrelationID = id }
}

// WithAttribute adds a string attribute. Empty values are skipped.
func WithAttribute(name, value string) Option {
	return func(e *Event) {
		if value == "" {
			return
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]string)
		}
		e.Attributes[name] = value
	}
}

// NewEvent encodes payload into a fresh envelope stamped with the current
// UTC time.
func NewEvent(eventType, key string, payload any, opts ...Option) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	e := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		Schema:     SchemaVersion,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decode unmarshals the payload into target.
func (e *Event) Decode(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// message builds the kafka message for topic. Routing fields are copied
// into headers so consumers can filter without decoding the body.
func (e *Event) message(topic string) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(e.Type)}}
	for _, h := range [][2]string{{"source", e.Source}, {"correlation_id", e.CorrelationID}} {
		if h[1] != "" {
			headers = append(headers, kafka.Header{Key: h[0], Value: []byte(h[1])})
		}
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(e.Key),
		Value:   body,
		Headers: headers,
	}, nil
}
