package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/logger"
	"github.com/nikolayk812/shoppingcart/internal/notify"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestMulti_DeliversToAllAndCollectsErrors(t *testing.T) {
	var got []string

	ok := notify.Func(func(_ context.Context, e port.Event) error {
		got = append(got, "ok:"+e.Name)
		return nil
	})
	failing := notify.Func(func(_ context.Context, e port.Event) error {
		got = append(got, "failing:"+e.Name)
		return errors.New("sink down")
	})

	n := notify.Multi(failing, nil, ok, failing)
	err := n.Notify(context.Background(), port.Event{Name: port.EventAdded})

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"failing:added", "ok:added", "failing:added"}, got)
}

func TestMetrics_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := notify.NewMetrics(reg)

	ctx := context.Background()
	require.NoError(t, m.Notify(ctx, port.Event{Name: port.EventAdded, Instance: "default"}))
	require.NoError(t, m.Notify(ctx, port.Event{Name: port.EventAdded, Instance: "default"}))
	require.NoError(t, m.Notify(ctx, port.Event{Name: port.EventStored}))

	count, err := testutil.GatherAndCount(reg, "shoppingcart_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var nilMetrics *notify.Metrics
	require.NoError(t, nilMetrics.Notify(ctx, port.Event{Name: port.EventAdded}))
	require.NoError(t, notify.NewMetrics(nil).Notify(ctx, port.Event{Name: port.EventAdded}))
}

func TestMetrics_CounterValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := notify.NewMetrics(reg)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Notify(context.Background(), port.Event{Name: port.EventRemoved, Instance: "wishlist"}))
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)
	assert.InDelta(t, 3, families[0].GetMetric()[0].GetCounter().GetValue(), 0)
}

func TestLogSink(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(logger.Options{Level: zerolog.DebugLevel, Output: buf})

	item := sampleItem(t)
	err := notify.NewLogSink(log).Notify(context.Background(), port.Event{
		ID:       uuid.New(),
		Name:     port.EventUpdated,
		Instance: "default",
		Session:  "sess-1",
		Item:     item,
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "updated", entry["event"])
	assert.Equal(t, "sess-1", entry["session"])
	assert.Equal(t, item.RowID(), entry["row_id"])
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisSink(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := notify.NewRedisSink(pub, "cart-events")
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.New()
	item := sampleItem(t)

	require.NoError(t, sink.Notify(context.Background(), port.Event{
		ID:         id,
		Name:       port.EventStored,
		Instance:   "default",
		Identifier: "user-1",
		Item:       item,
		At:         at,
	}))

	assert.Equal(t, "cart-events", pub.channel)

	var msg notify.Message
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	assert.Equal(t, notify.Message{
		ID:         id.String(),
		Name:       "stored",
		Instance:   "default",
		Identifier: "user-1",
		RowID:      item.RowID(),
		ItemID:     "1",
		Quantity:   2,
		At:         at,
	}, msg)

	pub.err = errors.New("connection refused")
	err = sink.Notify(context.Background(), port.Event{Name: port.EventErased})
	require.ErrorContains(t, err, "client.Publish: connection refused")
}

func TestNewRedisSink_Validation(t *testing.T) {
	_, err := notify.NewRedisSink(nil, "x")
	require.EqualError(t, err, "redis client is nil")

	_, err = notify.NewRedisSink(&fakePublisher{}, "")
	require.EqualError(t, err, "channel is empty")
}

func sampleItem(t *testing.T) *domain.CartItem {
	t.Helper()

	price, err := domain.ParseMoney("10.00", "USD")
	require.NoError(t, err)

	item, err := domain.NewCartItem(domain.IntID(1), "Some item", price, 2, 550, nil)
	require.NoError(t, err)
	return item
}
