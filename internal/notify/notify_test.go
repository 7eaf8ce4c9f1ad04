package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store/memory"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type recorder struct {
	mu     sync.Mutex
	events []models.OutboxEvent
	fails  int
}

func (r *recorder) handle(_ context.Context, ev models.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("temporary")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func startConsumer(t *testing.T, q Queue, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRedisQueue_PublishConsumeAck(t *testing.T) {
	mr, rdb := setupRedis(t)
	q := NewRedisQueue(rdb, "queue:notifications", 10*time.Millisecond)
	rec := &recorder{}

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, models.OutboxEvent{EventID: "a", OrderID: 1, Type: models.EventOrderCreated}))
	require.NoError(t, q.Publish(ctx, models.OutboxEvent{EventID: "b", OrderID: 2, Type: models.EventOrderPaid}))

	startConsumer(t, q, rec.handle)

	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "a", rec.events[0].EventID)
	assert.Equal(t, "b", rec.events[1].EventID)
	rec.mu.Unlock()

	require.Eventually(t, func() bool {
		return !mr.Exists("queue:notifications:processing") && !mr.Exists("queue:notifications")
	}, time.Second, 10*time.Millisecond)
}

func TestRedisQueue_FailedEventIsRetried(t *testing.T) {
	_, rdb := setupRedis(t)
	q := NewRedisQueue(rdb, "queue:notifications", 10*time.Millisecond)
	rec := &recorder{fails: 2}

	require.NoError(t, q.Publish(context.Background(), models.OutboxEvent{EventID: "a", OrderID: 1}))
	startConsumer(t, q, rec.handle)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisQueue_RecoversInFlightMessages(t *testing.T) {
	mr, rdb := setupRedis(t)
	raw, err := json.Marshal(models.OutboxEvent{EventID: "stuck", OrderID: 9})
	require.NoError(t, err)
	_, err = mr.Lpush("queue:notifications:processing", string(raw))
	require.NoError(t, err)

	q := NewRedisQueue(rdb, "queue:notifications", 10*time.Millisecond)
	rec := &recorder{}
	startConsumer(t, q, rec.handle)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "stuck", rec.events[0].EventID)
}

func TestRedisQueue_DropsUnreadableMessage(t *testing.T) {
	mr, rdb := setupRedis(t)
	_, err := mr.Lpush("queue:notifications", "{not json")
	require.NoError(t, err)

	q := NewRedisQueue(rdb, "queue:notifications", 10*time.Millisecond)
	rec := &recorder{}
	startConsumer(t, q, rec.handle)

	require.Eventually(t, func() bool {
		return !mr.Exists("queue:notifications") && !mr.Exists("queue:notifications:processing")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, rec.count())
}

type fakeMailer struct {
	enabled bool
	err     error
	sent    []string
	onSend  func()
}

func (f *fakeMailer) Enabled() bool { return f.enabled }

func (f *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}

func newWorker(t *testing.T, mailer Mailer) (*Worker, *memory.Store, int64) {
	t.Helper()
	_, rdb := setupRedis(t)
	st := memory.New()
	u := &models.User{Username: "ivan", Email: "Ivan@Example.ru"}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return NewWorker(nil, cache.New(rdb), st, mailer), st, u.ID
}

func TestWorker_SendsEmailOnce(t *testing.T) {
	mailer := &fakeMailer{enabled: true}
	w, _, userID := newWorker(t, mailer)
	ev := models.OutboxEvent{
		EventID: "evt-1",
		Type:    models.EventOrderCreated,
		OrderID: 42,
		UserID:  userID,
		Payload: json.RawMessage(`{"total_price":"1500.00"}`),
	}

	require.NoError(t, w.Handle(context.Background(), ev))
	require.NoError(t, w.Handle(context.Background(), ev))

	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0], "ivan@example.ru|")
}

func TestWorker_SendFailureAllowsRetry(t *testing.T) {
	mailer := &fakeMailer{enabled: true, err: errors.New("smtp down")}
	w, _, userID := newWorker(t, mailer)
	ev := models.OutboxEvent{EventID: "evt-2", Type: models.EventOrderPaid, OrderID: 1, UserID: userID}

	require.Error(t, w.Handle(context.Background(), ev))

	mailer.err = nil
	require.NoError(t, w.Handle(context.Background(), ev))
	assert.Len(t, mailer.sent, 1)
}

func TestWorker_LogsWhenMailerDisabled(t *testing.T) {
	mailer := &fakeMailer{}
	w, _, userID := newWorker(t, mailer)

	err := w.Handle(context.Background(), models.OutboxEvent{EventID: "evt-3", Type: models.EventOrderCreated, OrderID: 5, UserID: userID})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestWorker_UnknownUserIsRetried(t *testing.T) {
	mailer := &fakeMailer{enabled: true}
	w, _, _ := newWorker(t, mailer)
	ev := models.OutboxEvent{EventID: "evt-4", Type: models.EventOrderCreated, OrderID: 5, UserID: 999}

	require.Error(t, w.Handle(context.Background(), ev))
	require.Error(t, w.Handle(context.Background(), ev))
}

func TestPayloadTotal(t *testing.T) {
	assert.Equal(t, "10.50", payloadTotal(json.RawMessage(`{"total_price":"10.50"}`)))
	assert.Equal(t, "", payloadTotal(nil))
	assert.Equal(t, "", payloadTotal(json.RawMessage(`garbage`)))
}

func TestWorker_InterruptedDeliveryIsResent(t *testing.T) {
	mr, rdb := setupRedis(t)
	st := memory.New()
	u := &models.User{Username: "ivan", Email: "ivan@example.ru"}
	require.NoError(t, st.CreateUser(context.Background(), u))

	mailer := &fakeMailer{enabled: true, err: context.Canceled}
	// Rien ne doit être marqué avant l'envoi : un arrêt pendant Send laisse l'événement à renvoyer.
	mailer.onSend = func() { assert.False(t, mr.Exists("notified:evt-crash")) }
	w := NewWorker(nil, cache.New(rdb), st, mailer)
	ev := models.OutboxEvent{EventID: "evt-crash", Type: models.EventOrderCreated, OrderID: 7, UserID: u.ID}

	require.Error(t, w.Handle(context.Background(), ev))
	assert.False(t, mr.Exists("notified:evt-crash"))

	mailer.err = nil
	require.NoError(t, w.Handle(context.Background(), ev))
	require.Len(t, mailer.sent, 1)
	assert.True(t, mr.Exists("notified:evt-crash"))
	assert.Equal(t, DedupeTTL, mr.TTL("notified:evt-crash"))

	require.NoError(t, w.Handle(context.Background(), ev))
	assert.Len(t, mailer.sent, 1)
}
