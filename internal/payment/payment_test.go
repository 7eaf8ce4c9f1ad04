package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/config"
	"mehashop_back_end/internal/ledger"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store/memory"
)

// fakeYooKassa simule l'API /v3/payments.
type fakeYooKassa struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []ykCreateRequest
	headers  []http.Header
	status   int
	delay    time.Duration
	payments map[string]string // id -> status
	calls    atomic.Int32
}

func newFakeYooKassa(t *testing.T) *fakeYooKassa {
	t.Helper()
	f := &fakeYooKassa{status: http.StatusOK, payments: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeYooKassa) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.mu.Lock()
	status, delay := f.status, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if user, pass, ok := r.BasicAuth(); !ok || user != "shop" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if r.Method == http.MethodGet {
		id := r.URL.Path[len("/v3/payments/"):]
		f.mu.Lock()
		st, ok := f.payments[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "status": st})
		return
	}

	var req ykCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.headers = append(f.headers, r.Header.Clone())
	id := "p" + r.Header.Get("Idempotence-Key")[:8]
	f.payments[id] = "pending"
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"type":"error","code":"invalid_request"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     id,
		"status": "pending",
		"confirmation": map[string]any{
			"type":             "redirect",
			"confirmation_url": "https://yoomoney.ru/checkout/" + id,
		},
	})
}

func (f *fakeYooKassa) set(status int, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.delay = status, delay
}

type env struct {
	store  *memory.Store
	ledger *ledger.Ledger
	svc    *Service
	fake   *fakeYooKassa
	mr     *miniredis.Miniredis
	cache  *cache.Cache
}

func newEnv(t *testing.T, verify bool) *env {
	t.Helper()
	fake := newFakeYooKassa(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := memory.New()
	l := ledger.New(st, nil)
	c := cache.New(rdb)
	gw := NewYooKassa(config.YooKassaConfig{
		ShopID:    "shop",
		SecretKey: "secret",
		APIURL:    fake.srv.URL,
		Timeout:   200 * time.Millisecond,
	}, fake.srv.Client())
	svc := NewService(l, gw, c, nil, Options{ReturnURL: "https://shop.test/payment-success", VerifyWithAPI: verify})
	return &env{store: st, ledger: l, svc: svc, fake: fake, mr: mr, cache: c}
}

func (e *env) order(t *testing.T, userID int64, price string, qty int) models.Order {
	t.Helper()
	ctx := context.Background()
	p := e.store.AddProduct(models.Product{Name: "item", Price: models.MustMoney(price)})
	_, err := e.store.AddCartItem(ctx, userID, p.ID, qty)
	require.NoError(t, err)
	o, err := e.ledger.CreateOrder(ctx, userID)
	require.NoError(t, err)
	return o
}

func TestCreatePayment_EndToEnd(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "100000.00", 1)
	assert.Equal(t, "0.00", order.TotalPrice.String())

	url, err := e.svc.CreatePayment(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Contains(t, url, "https://yoomoney.ru/checkout/")

	require.Len(t, e.fake.requests, 1)
	req := e.fake.requests[0]
	assert.Equal(t, "100000.00", req.Amount.Value)
	assert.Equal(t, "RUB", req.Amount.Currency)
	assert.True(t, req.Capture)
	assert.Equal(t, "redirect", req.Confirmation.Type)
	assert.Equal(t, "https://shop.test/payment-success", req.Confirmation.ReturnURL)
	assert.Equal(t, "Оплата заказа №"+strconv.FormatInt(order.ID, 10), req.Description)

	h := e.fake.headers[0]
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, IdempotenceKey(order.ID, models.MustMoney("100000.00")), h.Get("Idempotence-Key"))

	stored, err := e.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PaymentID)
	assert.Equal(t, "pending", stored.PaymentStatus)
	assert.Equal(t, "YooKassa", stored.PaymentMethod)
	assert.Equal(t, "100000.00", stored.TotalPrice.String())

	require.NoError(t, e.svc.HandleNotification(ctx, Notification{Event: "payment.succeeded", PaymentID: stored.PaymentID, Status: "succeeded"}))
	stored, err = e.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, stored.Status)
	assert.Equal(t, "succeeded", stored.PaymentStatus)

	assert.False(t, e.mr.Exists(lockKey(order.ID)), "lock released")
}

func TestCreatePayment_NotOwner(t *testing.T) {
	e := newEnv(t, false)
	order := e.order(t, 2, "10.00", 1)

	_, err := e.svc.CreatePayment(context.Background(), order.ID, 1)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.Zero(t, e.fake.calls.Load(), "no gateway call")
}

func TestCreatePayment_UnknownOrder(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.svc.CreatePayment(context.Background(), 999, 1)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.Zero(t, e.fake.calls.Load())
}

func TestCreatePayment_Rejected(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)
	e.fake.set(http.StatusBadRequest, 0)

	_, err := e.svc.CreatePayment(ctx, order.ID, 1)
	assert.ErrorIs(t, err, ErrGatewayRejected)

	stored, err := e.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status)
	assert.Empty(t, stored.PaymentID)
	assert.Empty(t, stored.PaymentStatus)
	assert.Empty(t, stored.PaymentMethod)
}

func TestCreatePayment_Timeout(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)
	e.fake.set(http.StatusOK, time.Second)

	_, err := e.svc.CreatePayment(ctx, order.ID, 1)
	assert.ErrorIs(t, err, ErrGatewayTimeout)
	assert.NotErrorIs(t, err, ErrGatewayRejected)

	stored, err := e.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status, "timeout is retryable and leaves the order alone")
	assert.Empty(t, stored.PaymentID)
}

func TestCreatePayment_TransportFailureMarksFailed(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)
	e.fake.srv.Close()

	_, err := e.svc.CreatePayment(ctx, order.ID, 1)
	assert.ErrorIs(t, err, ErrGatewayFailure)

	stored, err := e.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, stored.Status)
}

func TestCreatePayment_ReusesPendingPayment(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)

	first, err := e.svc.CreatePayment(ctx, order.ID, 1)
	require.NoError(t, err)
	second, err := e.svc.CreatePayment(ctx, order.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), e.fake.calls.Load())
}

func TestCreatePayment_LockHeld(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)

	release, err := e.cache.Acquire(ctx, lockKey(order.ID), time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	_, err = e.svc.CreatePayment(ctx, order.ID, 1)
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.Zero(t, e.fake.calls.Load())
}

func TestCreatePayment_FinalizedOrder(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)
	_, err := e.svc.CreatePayment(ctx, order.ID, 1)
	require.NoError(t, err)
	stored, err := e.store.Order(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, e.svc.HandleNotification(ctx, Notification{PaymentID: stored.PaymentID, Status: "canceled"}))

	_, err = e.svc.CreatePayment(ctx, order.ID, 1)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestHandleNotification_UnknownPayment(t *testing.T) {
	e := newEnv(t, false)
	err := e.svc.HandleNotification(context.Background(), Notification{Event: "payment.succeeded", PaymentID: "ghost", Status: "succeeded"})
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
}

func TestHandleNotification_NonPaymentEventIgnored(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)
	_, err := e.svc.CreatePayment(ctx, order.ID, 1)
	require.NoError(t, err)
	stored, _ := e.store.Order(ctx, order.ID)

	err = e.svc.HandleNotification(ctx, Notification{Event: "refund.succeeded", PaymentID: stored.PaymentID, Status: "succeeded"})
	require.NoError(t, err)

	after, _ := e.store.Order(ctx, order.ID)
	assert.Equal(t, models.OrderPending, after.Status)
}

func TestHandleNotification_VerifyWithAPI(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)
	_, err := e.svc.CreatePayment(ctx, order.ID, 1)
	require.NoError(t, err)
	stored, _ := e.store.Order(ctx, order.ID)

	// Avis forgé : la passerelle dit toujours pending.
	require.NoError(t, e.svc.HandleNotification(ctx, Notification{Event: "payment.succeeded", PaymentID: stored.PaymentID, Status: "succeeded"}))
	after, _ := e.store.Order(ctx, order.ID)
	assert.Equal(t, models.OrderPending, after.Status)

	e.fake.mu.Lock()
	e.fake.payments[stored.PaymentID] = "succeeded"
	e.fake.mu.Unlock()

	require.NoError(t, e.svc.HandleNotification(ctx, Notification{Event: "payment.succeeded", PaymentID: stored.PaymentID, Status: "succeeded"}))
	after, _ = e.store.Order(ctx, order.ID)
	assert.Equal(t, models.OrderPaid, after.Status)
}

func TestParseYooKassaNotification(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Notification
		wantErr bool
	}{
		{
			name: "succeeded",
			body: `{"type":"notification","event":"payment.succeeded","object":{"id":"p1","status":"succeeded"}}`,
			want: Notification{Event: "payment.succeeded", PaymentID: "p1", Status: "succeeded"},
		},
		{
			name: "no event",
			body: `{"object":{"id":"p1","status":"canceled"}}`,
			want: Notification{PaymentID: "p1", Status: "canceled"},
		},
		{
			name: "refund event",
			body: `{"event":"refund.succeeded","object":{"id":"r1","status":"succeeded"}}`,
			want: Notification{Event: "refund.succeeded", PaymentID: "r1", Status: "succeeded"},
		},
		{name: "event mismatch", body: `{"event":"payment.canceled","object":{"id":"p1","status":"succeeded"}}`, wantErr: true},
		{name: "missing id", body: `{"object":{"status":"succeeded"}}`, wantErr: true},
		{name: "missing status", body: `{"object":{"id":"p1"}}`, wantErr: true},
		{name: "not json", body: `object=1`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseYooKassaNotification([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidNotification)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdempotenceKey(t *testing.T) {
	a := IdempotenceKey(1, models.MustMoney("10.00"))
	assert.Equal(t, a, IdempotenceKey(1, models.MustMoney("10")))
	assert.NotEqual(t, a, IdempotenceKey(2, models.MustMoney("10.00")))
	assert.NotEqual(t, a, IdempotenceKey(1, models.MustMoney("11.00")))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.False(t, isTimeout(errors.New("connection refused")))
}

func TestCreatePayment_LockHeldByOwnerHidesOrderFromOthers(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	order := e.order(t, 1, "10.00", 1)

	release, err := e.cache.Acquire(ctx, lockKey(order.ID), time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	_, err = e.svc.CreatePayment(ctx, order.ID, 2)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.NotErrorIs(t, err, ErrPaymentInProgress)
}

func TestHandleNotification_VerifyWithAPIUnknownPayment(t *testing.T) {
	e := newEnv(t, true)
	err := e.svc.HandleNotification(context.Background(), Notification{Event: "payment.succeeded", PaymentID: "ghost", Status: "succeeded"})
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.Zero(t, e.fake.calls.Load())
}
