package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func header(msg kafka.Message, key string) string {
	return NewHeaderCarrier(&msg.Headers).Get(key)
}

func TestNewEvent_Fields(t *testing.T) {
	type viewed struct {
		ProductID string `json:"product_id"`
	}

	event, err := NewEvent("product_viewed", "p1", viewed{ProductID: "p1"},
		WithSource("storefront"), WithSubject("product"))
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "product_viewed", event.Type)
	assert.Equal(t, "p1", event.Key)
	assert.Equal(t, "product", event.Subject)
	assert.Equal(t, "storefront", event.Source)
	assert.Equal(t, SchemaVersion, event.Schema)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)

	var got viewed
	require.NoError(t, event.Decode(&got))
	assert.Equal(t, "p1", got.ProductID)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("broken", "a", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode broken payload")
}

func TestWithAttribute_SkipsEmpty(t *testing.T) {
	event, err := NewEvent("x", "a", nil, WithAttribute("visit_id", "v1"), WithAttribute("user_id", ""))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"visit_id": "v1"}, event.Attributes)
}

func TestProducer_PublishWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	event, err := NewEvent("cart_item_added", "p1", map[string]int{"quantity": 2},
		WithSource("storefront"), WithCorrelationID("corr-1"))
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "ecommerce.storefront.cart_item_added", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ecommerce.storefront.cart_item_added", msg.Topic)
	assert.Equal(t, []byte("p1"), msg.Key)
	assert.Equal(t, "cart_item_added", header(msg, "event_type"))
	assert.Equal(t, "storefront", header(msg, "source"))
	assert.Equal(t, "corr-1", header(msg, "correlation_id"))
	assert.JSONEq(t, `{"quantity":2}`, string(mustDecodeEnvelope(t, msg.Value).Payload))
}

func TestProducer_PublishOmitsEmptyHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	event, err := NewEvent("product_viewed", "p1", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "t", event))

	keys := NewHeaderCarrier(&w.msgs[0].Headers).Keys()
	assert.Contains(t, keys, "event_type")
	assert.NotContains(t, keys, "source")
	assert.NotContains(t, keys, "correlation_id")
}

func mustDecodeEnvelope(t *testing.T, body []byte) Event {
	t.Helper()
	var e Event
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestProducer_PublishInjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a},
		SpanID:     trace.SpanID{0x0b},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	event, err := NewEvent("product_viewed", "p1", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "t", event))
	assert.Contains(t, header(w.msgs[0], "traceparent"), sc.TraceID().String())
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: testLogger()}
	event, err := NewEvent("x", "a", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "topic-a", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic-a")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PingWithoutBrokers(t *testing.T) {
	p := NewProducer(DefaultProducerConfig(nil), testLogger())
	assert.Error(t, p.Ping(context.Background()))
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Empty(t, c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "v3")
	assert.Equal(t, "v2", c.Get("existing"))
	assert.Equal(t, []string{"existing", "new"}, c.Keys())
	assert.Len(t, headers, 2)
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"localhost:9092"})
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.Async)
}
