// Package teller is the single entry point into the credit protocol. It
// serialises every mutating call, runs it as one unit of work over the
// state overlay and only publishes the events of units that commit.
package teller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ripe/core/events"
	"ripe/core/state"
	"ripe/native/auction"
	"ripe/native/credit"
	"ripe/native/deleverage"
	"ripe/native/ledger"
	"ripe/native/mission"
	"ripe/native/oracle"
	"ripe/native/token"
	"ripe/native/vault"
	"ripe/observability"
)

var (
	errNilTeller = errors.New("teller: not configured")

	ErrNoPerms                = errors.New("teller: no perms")
	ErrInvalidUser            = errors.New("teller: invalid user")
	ErrInvalidAmount          = errors.New("teller: invalid amount")
	ErrDepositsDisabled       = errors.New("teller: asset deposits disabled")
	ErrWithdrawalsDisabled    = errors.New("teller: asset withdrawals disabled")
	ErrCannotWithdrawAnything = errors.New("teller: cannot withdraw anything")
)

const tracerName = "ripe/native/teller"

var blockKey = []byte("teller/block")

// Deps groups the components the teller dispatches to.
type Deps struct {
	State      *state.Manager
	Book       *token.Book
	Mission    *mission.Control
	Vaults     *vault.Registry
	Ledger     *ledger.Ledger
	Credit     *credit.Engine
	Deleverage *deleverage.Engine
	Auctions   *auction.Engine
}

// Teller serialises access to the protocol.
type Teller struct {
	mu sync.RWMutex

	st         *state.Manager
	book       *token.Book
	mission    *mission.Control
	vaults     *vault.Registry
	ledger     *ledger.Ledger
	credit     *credit.Engine
	deleverage *deleverage.Engine
	auctions   *auction.Engine

	buffer  *events.Buffer
	sink    events.Emitter
	logger  *slog.Logger
	metrics *observability.CreditMetricsSet
	tracer  trace.Tracer

	feed    *oracle.ManualSource
	block   uint64
	onBlock []func(uint64)
}

// New wires a teller over deps. The engines' emitters are redirected into
// the teller's buffer so events only leave through committed units.
func New(deps Deps) *Teller {
	t := &Teller{
		st:         deps.State,
		book:       deps.Book,
		mission:    deps.Mission,
		vaults:     deps.Vaults,
		ledger:     deps.Ledger,
		credit:     deps.Credit,
		deleverage: deps.Deleverage,
		auctions:   deps.Auctions,
		buffer:     &events.Buffer{},
		sink:       events.NoopEmitter{},
		tracer:     otel.Tracer(tracerName),
	}
	deps.Credit.SetEmitter(t.buffer)
	deps.Deleverage.SetEmitter(t.buffer)
	deps.Auctions.SetEmitter(t.buffer)
	t.OnBlock(deps.Credit.SetBlockHeight)
	t.OnBlock(deps.Deleverage.SetBlockHeight)
	t.OnBlock(deps.Auctions.SetBlockHeight)
	return t
}

// SetEmitter installs the destination of committed events.
func (t *Teller) SetEmitter(emitter events.Emitter) {
	if t == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	t.mu.Lock()
	t.sink = emitter
	t.mu.Unlock()
}

// SetLogger installs the logger used by the teller and every engine.
func (t *Teller) SetLogger(logger *slog.Logger) {
	if t == nil {
		return
	}
	t.logger = logger
	t.credit.SetLogger(logger)
	t.deleverage.SetLogger(logger)
	t.auctions.SetLogger(logger)
}

func (t *Teller) log() *slog.Logger {
	if t.logger == nil {
		return slog.Default()
	}
	return t.logger
}

// SetMetrics installs the collector set updated after every unit of work.
func (t *Teller) SetMetrics(m *observability.CreditMetricsSet) {
	if t == nil {
		return
	}
	t.metrics = m
}

// OnBlock registers a hook run by AdvanceBlock.
func (t *Teller) OnBlock(fn func(uint64)) {
	if t == nil || fn == nil {
		return
	}
	t.onBlock = append(t.onBlock, fn)
}

// AdvanceBlock moves every engine and price source to height and persists
// it. Heights never move backwards, including across restarts.
func (t *Teller) AdvanceBlock(height uint64) error {
	if err := t.ready(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if height < t.block {
		return ErrInvalidAmount
	}
	if err := t.st.Begin(); err != nil {
		return err
	}
	if err := t.st.KVPut(blockKey, height); err != nil {
		t.st.Rollback()
		return err
	}
	if err := t.st.Commit(); err != nil {
		return fmt.Errorf("teller: persist block: %w", err)
	}
	t.setBlock(height)
	return nil
}

// restoreBlock reloads the persisted height and replays it through the
// block hooks.
func (t *Teller) restoreBlock() error {
	var height uint64
	ok, err := t.st.KVGet(blockKey, &height)
	if err != nil {
		return fmt.Errorf("teller: load block: %w", err)
	}
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setBlock(height)
	return nil
}

func (t *Teller) setBlock(height uint64) {
	t.block = height
	for _, fn := range t.onBlock {
		fn(height)
	}
}

// Block returns the current block height.
func (t *Teller) Block() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.block
}

func (t *Teller) ready() error {
	if t == nil || t.st == nil || t.credit == nil || t.deleverage == nil || t.auctions == nil || t.ledger == nil {
		return errNilTeller
	}
	return nil
}

// mutate runs fn as one unit of work. A failing fn leaves the committed
// state untouched and drops the events it produced.
func (t *Teller) mutate(ctx context.Context, op string, caller common.Address, fn func() error) (err error) {
	if err := t.ready(); err != nil {
		return err
	}
	_, span := t.tracer.Start(ctx, "teller."+op, trace.WithAttributes(
		attribute.String("caller", caller.Hex()),
	))
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		t.metrics.ObserveOperation(op, err, time.Since(started))
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.st.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		t.st.Rollback()
		t.buffer.Discard()
		t.log().Debug("teller: unit of work rolled back", "op", op, "caller", caller.Hex(), "error", err)
		return err
	}
	if err := t.st.Commit(); err != nil {
		t.buffer.Discard()
		t.log().Error("teller: commit failed", "op", op, "error", err)
		return err
	}
	t.buffer.Flush(t.sink)
	t.publishTotals()
	return nil
}

// view runs fn against committed state under the read lock.
func (t *Teller) view(ctx context.Context, op string, fn func() error) error {
	if err := t.ready(); err != nil {
		return err
	}
	_, span := t.tracer.Start(ctx, "teller."+op)
	defer span.End()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (t *Teller) publishTotals() {
	if t.metrics == nil {
		return
	}
	totals, err := t.totals()
	if err != nil {
		t.log().Warn("teller: totals unavailable", "error", err)
		return
	}
	t.metrics.SetTotals(totals.TotalDebt, totals.BadDebt, totals.ActiveAuctions)
}
