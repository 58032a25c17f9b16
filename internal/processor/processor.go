// Package processor binds one transfer engine to one live transfer and
// exposes the single external command surface. It guarantees at-most-one
// in-flight snapshot: publications are serialised, results derived from
// superseded amounts are discarded, and execution happens at most once.
package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
	"github.com/traversefi/traverse/pkg/errors"
	"github.com/traversefi/traverse/pkg/logging"
	"github.com/traversefi/traverse/pkg/metrics"
)

// CacheInvalidator drops read-through caches after a transfer settles so
// subsequent balance reads reflect the debit.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys []string) error
}

// Processor orchestrates one transfer. It is not reusable: after Reset or
// Cancel a new processor must be constructed.
type Processor struct {
	eng     engine.TxEngine
	logger  *logging.Logger
	metrics *metrics.Metrics
	caches  CacheInvalidator

	ctx    context.Context
	cancel context.CancelFunc

	// cmdMu serialises snapshot publication: every command that stores a
	// new snapshot holds it, so consumers never observe an older snapshot
	// after a newer one.
	cmdMu       sync.Mutex
	current     pending.Tx
	seq         int64
	initialised bool
	closed      bool

	// amountGen stamps each amount update; a result carrying a stale
	// stamp is discarded instead of published.
	amountGen atomic.Int64

	executing atomic.Bool

	subMu   sync.Mutex
	subs    map[int]chan pending.Tx
	nextSub int
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithCacheInvalidator attaches the cache layer invalidated after execute.
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(p *Processor) { p.caches = c }
}

// New creates a processor bound to one engine instance. The engine must
// not be shared with another processor.
func New(eng engine.TxEngine, logger *logging.Logger, opts ...Option) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		eng:    eng,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan pending.Tx),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialise builds and publishes the first snapshot.
func (p *Processor) Initialise(ctx context.Context) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.closed {
		return errors.ErrProcessorClosed
	}
	if p.initialised {
		return errors.ErrAlreadyInitialised
	}

	tx, err := p.observe(errors.OpInitialise, func() (pending.Tx, error) {
		return p.eng.Initialise(ctx)
	})
	if err != nil {
		return errors.TransferWrap(err, errors.OpInitialise, "engine initialise failed")
	}

	p.initialised = true
	p.store(tx)
	return nil
}

// UpdateAmount recomputes the snapshot for a new amount, then re-validates
// amount rules. A zero amount on a never-attempted transfer keeps the
// state uninitialised instead of warning about insufficient funds. Rapidly
// superseded calls are safe: only the result matching the most recent
// amount is published.
func (p *Processor) UpdateAmount(ctx context.Context, amount money.Money) error {
	p.cmdMu.Lock()
	if err := p.readyLocked(); err != nil {
		p.cmdMu.Unlock()
		return err
	}
	current := p.current
	baseSeq := p.seq
	p.cmdMu.Unlock()

	if !amount.Currency.Equal(current.Amount.Currency) && !p.eng.AcceptsFiatInput() {
		return errors.ErrFiatInputUnsupported
	}

	gen := p.amountGen.Add(1)

	tx, err := p.observe(errors.OpUpdateAmount, func() (pending.Tx, error) {
		updated, err := p.eng.UpdateAmount(ctx, current, amount)
		if err != nil {
			return pending.Tx{}, err
		}
		return p.eng.ValidateAmount(ctx, updated)
	})
	if err != nil {
		return errors.TransferWrap(err, errors.OpUpdateAmount, "engine amount update failed")
	}

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.closed {
		return errors.ErrProcessorClosed
	}
	if gen != p.amountGen.Load() {
		// A newer amount superseded this one while the engine resolved.
		return nil
	}
	if p.seq != baseSeq {
		// Another command replaced the snapshot meanwhile; re-derive
		// from the latest one so its changes are not lost.
		tx, err = p.observe(errors.OpUpdateAmount, func() (pending.Tx, error) {
			updated, err := p.eng.UpdateAmount(ctx, p.current, amount)
			if err != nil {
				return pending.Tx{}, err
			}
			return p.eng.ValidateAmount(ctx, updated)
		})
		if err != nil {
			return errors.TransferWrap(err, errors.OpUpdateAmount, "engine amount update failed")
		}
	}

	p.countValidation(tx.State)
	p.store(tx)
	return nil
}

// UpdateFeeLevel switches the fee tier and re-validates. Levels outside
// the snapshot's available set are rejected without mutating anything.
func (p *Processor) UpdateFeeLevel(ctx context.Context, level pending.FeeLevel, custom *money.Money) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if err := p.readyLocked(); err != nil {
		return err
	}
	if !p.current.FeeSelection.Supports(level) {
		return pending.ErrFeeLevelUnavailable
	}

	tx, err := p.observe(errors.OpUpdateFeeLevel, func() (pending.Tx, error) {
		updated, err := p.eng.UpdateFeeLevel(ctx, p.current, level, custom)
		if err != nil {
			return pending.Tx{}, err
		}
		return p.eng.ValidateAmount(ctx, updated)
	})
	if err != nil {
		return errors.TransferWrap(err, errors.OpUpdateFeeLevel, "engine fee update failed")
	}

	p.countValidation(tx.State)
	p.store(tx)
	return nil
}

// SetOption applies a user edit to a confirmation option. The option must
// already be present and editable in the snapshot: it has to have been
// offered before it can be set.
func (p *Processor) SetOption(ctx context.Context, opt pending.Confirmation) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if err := p.readyLocked(); err != nil {
		return err
	}

	existing, ok := p.current.Confirmations.Get(opt.Tag)
	if !ok || !existing.Editable {
		return errors.ErrOptionNotOffered
	}

	tx, err := p.observe(errors.OpSetOption, func() (pending.Tx, error) {
		updated, err := p.eng.SetOption(ctx, p.current, opt)
		if err != nil {
			return pending.Tx{}, err
		}
		return p.eng.ValidateAll(ctx, updated)
	})
	if err != nil {
		return errors.TransferWrap(err, errors.OpSetOption, "engine option update failed")
	}

	p.countValidation(tx.State)
	p.store(tx)
	return nil
}

// ValidateAll rebuilds confirmations and runs the full rule set, as before
// showing a final review step.
func (p *Processor) ValidateAll(ctx context.Context) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if err := p.readyLocked(); err != nil {
		return err
	}

	tx, err := p.validateAllLocked(ctx)
	if err != nil {
		return err
	}

	p.store(tx)
	return nil
}

func (p *Processor) validateAllLocked(ctx context.Context) (pending.Tx, error) {
	tx, err := p.observe(errors.OpValidateAll, func() (pending.Tx, error) {
		rebuilt, err := p.eng.BuildConfirmations(ctx, p.current)
		if err != nil {
			return pending.Tx{}, err
		}
		return p.eng.ValidateAll(ctx, rebuilt)
	})
	if err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpValidateAll, "engine validation failed")
	}

	p.countValidation(tx.State)
	return tx, nil
}

// Execute re-validates synchronously and performs the transfer only from
// CAN_EXECUTE. Concurrent calls race on an in-flight flag: exactly one
// reaches the engine, the loser is rejected before any side effect.
func (p *Processor) Execute(ctx context.Context, secondaryCredential string) (engine.Result, error) {
	if !p.executing.CompareAndSwap(false, true) {
		return engine.Result{}, errors.ErrTransferInFlight
	}
	defer p.executing.Store(false)

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if err := p.readyLocked(); err != nil {
		return engine.Result{}, err
	}

	tx, err := p.validateAllLocked(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	p.store(tx)

	if tx.State != validation.CanExecute {
		return engine.Result{}, blockedError(tx.State)
	}

	started := time.Now()
	res, err := p.eng.Execute(ctx, tx, secondaryCredential)
	p.observeDuration(errors.OpExecute, time.Since(started))
	if err != nil {
		var approval *errors.ApprovalRequired
		if errors.As(err, &approval) {
			// Not a failure: the transfer waits on an out-of-band
			// approval and the snapshot stays live.
			return engine.Result{}, approval
		}
		p.countTransfer("failed")
		return engine.Result{}, err
	}

	p.countTransfer("executed")

	if p.caches != nil {
		if err := p.caches.Invalidate(ctx, p.eng.AffectedCaches()); err != nil {
			p.logger.Warn("cache invalidation after execute failed", "error", err)
		}
	}

	p.store(tx.PushStep(pending.StepInProgress))
	return res, nil
}

// Cancel abandons the transfer. Engine cancel failures never block the
// consumer; the processor is released regardless.
func (p *Processor) Cancel(ctx context.Context) {
	p.cmdMu.Lock()
	current := p.current
	initialised := p.initialised
	p.cmdMu.Unlock()

	if initialised {
		if err := p.eng.Cancel(ctx, current); err != nil {
			p.logger.Debug("engine cancel failed", "error", err)
		}
	}
	p.Reset()
}

// Reset cancels all outstanding work and detaches the engine. The
// processor is unusable afterwards.
func (p *Processor) Reset() {
	p.cmdMu.Lock()
	if p.closed {
		p.cmdMu.Unlock()
		return
	}
	p.closed = true
	p.cmdMu.Unlock()

	p.cancel()

	p.subMu.Lock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.subMu.Unlock()
}

// Snapshot returns the current snapshot.
func (p *Processor) Snapshot() (pending.Tx, error) {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	if err := p.readyLocked(); err != nil {
		return pending.Tx{}, err
	}
	return p.current, nil
}

// Subscribe streams snapshots with replay-latest semantics: a new
// subscriber immediately receives the current snapshot, then every
// subsequent publication in order.
func (p *Processor) Subscribe(ctx context.Context) <-chan pending.Tx {
	ch := make(chan pending.Tx, 1)

	p.cmdMu.Lock()
	closed := p.closed
	if p.initialised && !closed {
		ch <- p.current
	}
	p.cmdMu.Unlock()

	if closed {
		close(ch)
		return ch
	}

	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.ctx.Done():
		}
		p.subMu.Lock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
		p.subMu.Unlock()
	}()

	return ch
}

// store records and publishes a new snapshot. Callers hold cmdMu.
func (p *Processor) store(tx pending.Tx) {
	p.current = tx
	p.seq++

	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- tx:
		default:
			// Replace the undelivered older snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- tx
		}
	}
}

func (p *Processor) readyLocked() error {
	if p.closed {
		return errors.ErrProcessorClosed
	}
	if !p.initialised {
		return errors.ErrNotInitialised
	}
	return nil
}

// observe runs an engine call, recording its duration.
func (p *Processor) observe(op string, fn func() (pending.Tx, error)) (pending.Tx, error) {
	started := time.Now()
	tx, err := fn()
	p.observeDuration(op, time.Since(started))
	return tx, err
}

func (p *Processor) observeDuration(op string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.EngineCallDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

func (p *Processor) countValidation(state validation.State) {
	if p.metrics != nil {
		p.metrics.ValidationOutcomes.WithLabelValues(string(state)).Inc()
	}
}

func (p *Processor) countTransfer(outcome string) {
	if p.metrics != nil {
		p.metrics.TransferCount.WithLabelValues(outcome).Inc()
	}
}

// blockedError maps a blocking validation state onto the transfer error
// taxonomy for refused executions.
func blockedError(state validation.State) error {
	switch state {
	case validation.InsufficientFunds, validation.InsufficientGas:
		return errors.NewTransferError(errors.TransferErrInsufficientBalance, state.Message(), errors.ErrExecutionBlocked)
	case validation.InvalidAddress, validation.InvalidDomain, validation.AddressIsContract:
		return errors.NewTransferError(errors.TransferErrInvalidAddress, state.Message(), errors.ErrExecutionBlocked)
	case validation.InvoiceExpired:
		return errors.NewTransferError(errors.TransferErrQuoteExpired, state.Message(), errors.ErrExecutionBlocked)
	case validation.PendingOrdersLimitReached:
		return errors.NewTransferError(errors.TransferErrOrderLimitReached, state.Message(), errors.ErrExecutionBlocked)
	case validation.HasTxInFlight:
		return errors.ErrTransferInFlight
	default:
		return errors.TransferWrap(errors.ErrExecutionBlocked, errors.OpExecute, state.Message())
	}
}
