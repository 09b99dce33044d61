// Package kafkasink forwards committed domain events to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/worker"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	peer          = "kafka"
	componentSink = "kafka_sink"
	headerEvent   = "event"
)

// Writer is the part of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer for topic that balances by least bytes.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// Events lists the event names forwarded by default.
func Events() []string {
	names := append([]string(nil), order.EventNames...)
	return append(names,
		inventory.StockSoldEvent{}.EventName(),
		inventory.StockRestockedEvent{}.EventName(),
		inventory.StockLowEvent{}.EventName(),
	)
}

type envelope struct {
	ID         string          `json:"event_id"`
	Name       string          `json:"event"`
	ProducedAt time.Time       `json:"produced_at"`
	Payload    domoutbox.Event `json:"payload"`
}

type Sink struct {
	writer Writer
	tel    observability.Observability
	log    observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewSink(writer Writer, tel observability.Observability) *Sink {
	metrics := observability.MetricsOf(tel)
	return &Sink{
		writer:       writer,
		tel:          tel,
		log:          observability.LoggerOf(tel).With(observability.F("component", componentSink)),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Register subscribes the sink to names, or to Events() when names is empty.
func (s *Sink) Register(sub domoutbox.Subscriber, names ...string) {
	if len(names) == 0 {
		names = Events()
	}
	for _, name := range names {
		sub.Subscribe(name, s.Handle)
	}
}

// Handle writes one event. Keyed events are partitioned by their aggregate id.
func (s *Sink) Handle(ctx context.Context, e domoutbox.Event) error {
	id := uuid.NewString()
	ctx = workerpresentation.WithEventContext(ctx, logctx.FromOr(ctx, s.log), s.tel,
		map[string]string{
			"event_id":  id,
			"event":     e.EventName(),
			"component": componentSink,
		})
	logger := logctx.FromOr(ctx, s.log)

	value, err := json.Marshal(envelope{ID: id, Name: e.EventName(), ProducedAt: time.Now().UTC(), Payload: e})
	if err != nil {
		logger.Error("event_encode_failed", observability.F("error", err.Error()))
		return fmt.Errorf("kafka sink: encode %s: %w", e.EventName(), err)
	}
	msg := kafka.Message{
		Value:   value,
		Headers: []kafka.Header{{Key: headerEvent, Value: []byte(e.EventName())}},
	}
	if k, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(strconv.FormatInt(k.EventKey(), 10))
	}

	start := time.Now()
	err = s.writer.WriteMessages(ctx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", e.EventName()),
	)
	if err != nil {
		logger.Warn("event_forward_failed", observability.F("error", err.Error()))
		return fmt.Errorf("kafka sink: write %s: %w", e.EventName(), err)
	}
	logger.Debug("event_forwarded")
	return nil
}

func (s *Sink) Close() error { return s.writer.Close() }
