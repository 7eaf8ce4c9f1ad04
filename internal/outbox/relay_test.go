package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
	"mehashop_back_end/internal/store/memory"
)

type fakePublisher struct {
	published []models.OutboxEvent
	failOn    string
}

func (f *fakePublisher) Publish(_ context.Context, ev models.OutboxEvent) error {
	if ev.EventID == f.failOn {
		return errors.New("broker down")
	}
	f.published = append(f.published, ev)
	return nil
}

func appendEvents(t *testing.T, st *memory.Store, ids ...string) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		for i, id := range ids {
			if err := tx.AppendOutbox(context.Background(), models.OutboxEvent{
				EventID: id,
				Type:    models.EventOrderCreated,
				OrderID: int64(i + 1),
				UserID:  7,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestFlush_PublishesAndMarksSent(t *testing.T) {
	st := memory.New()
	appendEvents(t, st, "e1", "e2", "e3")
	pub := &fakePublisher{}
	r := NewRelay(st, pub, 0, 10)

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.published, 3)
	assert.Equal(t, "e1", pub.published[0].EventID)

	pending, err := st.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlush_FailureKeepsEventPending(t *testing.T) {
	st := memory.New()
	appendEvents(t, st, "e1", "e2", "e3")
	pub := &fakePublisher{failOn: "e2"}
	r := NewRelay(st, pub, 0, 10)

	n, err := r.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := st.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e2", pending[0].EventID)

	pub.failOn = ""
	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFlush_RespectsBatchSize(t *testing.T) {
	st := memory.New()
	appendEvents(t, st, "e1", "e2", "e3")
	pub := &fakePublisher{}
	r := NewRelay(st, pub, 0, 2)

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
