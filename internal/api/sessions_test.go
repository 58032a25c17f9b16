package api

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/processor"
	"github.com/traversefi/traverse/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:       logging.ErrorLevel,
		Output:      io.Discard,
		ServiceName: "test",
	})
}

// idleEngine satisfies engine.TxEngine with no behaviour beyond
// counting cancellations. The session store never drives the pipeline
// past Initialise.
type idleEngine struct {
	cancelCalls atomic.Int32
}

func (e *idleEngine) Initialise(ctx context.Context) (pending.Tx, error) {
	return pending.Tx{}, nil
}

func (e *idleEngine) UpdateAmount(ctx context.Context, current pending.Tx, amount money.Money) (pending.Tx, error) {
	return current, nil
}

func (e *idleEngine) UpdateFeeLevel(ctx context.Context, current pending.Tx, level pending.FeeLevel, custom *money.Money) (pending.Tx, error) {
	return current, nil
}

func (e *idleEngine) SetOption(ctx context.Context, current pending.Tx, opt pending.Confirmation) (pending.Tx, error) {
	return current, nil
}

func (e *idleEngine) ValidateAmount(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	return current, nil
}

func (e *idleEngine) ValidateAll(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	return current, nil
}

func (e *idleEngine) BuildConfirmations(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	return current, nil
}

func (e *idleEngine) Execute(ctx context.Context, current pending.Tx, secondaryCredential string) (engine.Result, error) {
	return engine.Result{}, nil
}

func (e *idleEngine) Cancel(ctx context.Context, current pending.Tx) error {
	e.cancelCalls.Add(1)
	return nil
}

func (e *idleEngine) AcceptsFiatInput() bool { return false }

func (e *idleEngine) AffectedCaches() []string { return nil }

func newTestSession(t *testing.T, store *sessionStore, owner string) (*session, *idleEngine) {
	t.Helper()

	eng := &idleEngine{}
	proc := processor.New(eng, testLogger())
	require.NoError(t, proc.Initialise(context.Background()))
	t.Cleanup(proc.Reset)

	return store.create(owner, nil, proc), eng
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	sess, _ := newTestSession(t, store, "alice")

	assert.NotEmpty(t, sess.id)
	assert.Equal(t, "alice", sess.owner)
	assert.False(t, sess.createdAt.IsZero())

	got, ok := store.get(sess.id)
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestSessionStoreDistinctIDs(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	first, _ := newTestSession(t, store, "alice")
	second, _ := newTestSession(t, store, "alice")

	assert.NotEqual(t, first.id, second.id)
}

func TestSessionStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := newSessionStore()

	_, ok := store.get("no-such-session")
	assert.False(t, ok)
}

func TestSessionStoreRemove(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	sess, eng := newTestSession(t, store, "alice")

	store.remove(sess.id)

	_, ok := store.get(sess.id)
	assert.False(t, ok)

	// Removal detaches the session without cancelling the transfer.
	assert.Equal(t, int32(0), eng.cancelCalls.Load())
}

func TestSessionStoreCancelAll(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	first, firstEng := newTestSession(t, store, "alice")
	second, secondEng := newTestSession(t, store, "bob")

	store.cancelAll(context.Background())

	_, ok := store.get(first.id)
	assert.False(t, ok)
	_, ok = store.get(second.id)
	assert.False(t, ok)

	assert.Equal(t, int32(1), firstEng.cancelCalls.Load())
	assert.Equal(t, int32(1), secondEng.cancelCalls.Load())
}

func TestSessionStoreCancelAllEmpty(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	store.cancelAll(context.Background())
}
