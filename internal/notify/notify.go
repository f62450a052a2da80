package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikolayk812/shoppingcart/internal/logger"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// Func adapts a plain function to port.Notifier.
type Func func(ctx context.Context, event port.Event) error

func (f Func) Notify(ctx context.Context, event port.Event) error {
	return f(ctx, event)
}

type multi struct {
	sinks []port.Notifier
}

// Multi delivers every event to all sinks in order. A failing sink does not
// stop delivery to the rest; all failures are returned together.
func Multi(sinks ...port.Notifier) port.Notifier {
	var kept []port.Notifier
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &multi{sinks: kept}
}

func (m *multi) Notify(ctx context.Context, event port.Event) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Notify(ctx, event))
	}
	return err
}

type logSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) port.Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &logSink{log: log}
}

func (s *logSink) Notify(ctx context.Context, event port.Event) error {
	fields := map[string]any{
		"event":    event.Name,
		"event_id": event.ID.String(),
		"instance": event.Instance,
	}
	if event.Session != "" {
		fields["session"] = event.Session
	}
	if event.Identifier != "" {
		fields["identifier"] = event.Identifier
	}
	if event.Item != nil {
		fields["row_id"] = event.Item.RowID()
		fields["quantity"] = event.Item.Quantity()
	}

	s.log.Debug(s.log.WithFields(ctx, fields), "cart event")
	return nil
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type redisSink struct {
	client  publisher
	channel string
}

// NewRedisSink publishes events as JSON on channel.
func NewRedisSink(client publisher, channel string) (port.Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if channel == "" {
		return nil, fmt.Errorf("channel is empty")
	}
	return &redisSink{client: client, channel: channel}, nil
}

// Message is the published form of an event.
type Message struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Instance   string    `json:"instance"`
	Session    string    `json:"session,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	RowID      string    `json:"row_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	At         time.Time `json:"at"`
}

func NewMessage(event port.Event) Message {
	msg := Message{
		ID:         event.ID.String(),
		Name:       event.Name,
		Instance:   event.Instance,
		Session:    event.Session,
		Identifier: event.Identifier,
		At:         event.At,
	}
	if event.Item != nil {
		msg.RowID = event.Item.RowID()
		msg.ItemID = event.Item.ID().String()
		msg.Quantity = event.Item.Quantity()
	}
	return msg
}

func (s *redisSink) Notify(ctx context.Context, event port.Event) error {
	payload, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("client.Publish: %w", err)
	}
	return nil
}

// Metrics counts events per name and instance.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the event counter on reg. A nil reg yields a no-op sink.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shoppingcart_events_total",
		Help: "Cart lifecycle events by name and instance.",
	}, []string{"event", "instance"})
	reg.MustRegister(events)
	return &Metrics{events: events}
}

func (m *Metrics) Notify(_ context.Context, event port.Event) error {
	if m == nil || m.events == nil {
		return nil
	}
	m.events.WithLabelValues(normalizeLabel(event.Name), normalizeLabel(event.Instance)).Inc()
	return nil
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
