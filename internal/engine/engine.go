package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/store"
)

// Request is one inbound message delivered for execution together with
// the resource list the caller resolved for it.
type Request struct {
	Envelope  ir.Envelope   `json:"envelope"`
	Resources []ir.Resource `json:"resources"`

	// At overrides the engine's time source when non-zero. Replay uses it
	// to execute each message at the time it originally executed.
	At int64 `json:"at,omitempty"`
}

// Status is the outcome class of an execution.
type Status string

const (
	// StatusComplete means every stage succeeded and all effects landed.
	StatusComplete Status = "complete"

	// StatusRejected means the message failed before its slot was consumed.
	// Nothing was persisted; a corrected request may be retried.
	StatusRejected Status = "rejected"

	// StatusFailed means the message failed after its slot was consumed.
	// No mutation landed and the slot is spent.
	StatusFailed Status = "failed"
)

// Receipt describes what an execution did.
type Receipt struct {
	ExecutionID   string              `json:"execution_id"`
	Digest        string              `json:"digest"`
	GUID          ir.Bytes32          `json:"guid"`
	Status        Status              `json:"status"`
	Stage         Stage               `json:"stage"`
	Kind          string              `json:"kind,omitempty"`
	Code          ir.ErrorCode        `json:"code,omitempty"`
	Error         string              `json:"error,omitempty"`
	At            int64               `json:"at"`
	PayloadHash   *ir.Bytes32         `json:"payload_hash,omitempty"`
	AppState      *ir.AppState        `json:"app_state,omitempty"`
	Ledger        *ir.LedgerRecord    `json:"ledger,omitempty"`
	LedgerAccount *solana.PublicKey   `json:"ledger_account,omitempty"`
	Event         *ir.DepositEvent    `json:"event,omitempty"`
	Ack           *ir.OutboundMessage `json:"ack,omitempty"`
	Call          *ir.ExternalCall    `json:"call,omitempty"`
}

// Engine executes inbound messages for one deployment.
//
// Thread-safety model:
//   - Execute(): safe from any goroutine; the store serializes writers
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store     *store.Store
	variant   codec.Variant
	clock     TimeSource
	ids       IDGenerator
	invoker   Invoker
	acks      bool
	observers []Observer
	log       *slog.Logger
	tickets   *Clock
	queue     *requestQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for ledger and event timestamps.
// Default: WallClock.
func WithClock(c TimeSource) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the execution id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithInvoker sets how external calls are issued.
// Default: JournalInvoker.
func WithInvoker(inv Invoker) Option {
	return func(e *Engine) {
		e.invoker = inv
	}
}

// WithAcknowledgements makes every successful increment compose an ACK
// carrying the new counter value.
func WithAcknowledgements(on bool) Option {
	return func(e *Engine) {
		e.acks = on
	}
}

// WithObserver adds an execution observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine executing variant's message formats against s.
func New(s *store.Store, variant codec.Variant, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		variant: variant,
		clock:   WallClock{},
		ids:     UUIDv7Generator{},
		invoker: JournalInvoker{},
		log:     slog.Default(),
		tickets: NewClock(),
		queue:   newRequestQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Variant returns the message variant the engine executes.
func (e *Engine) Variant() codec.Variant {
	return e.variant
}

// Enqueue submits a request for execution by the Run loop and returns the
// channel its result will be delivered on. The channel is buffered; the
// loop never blocks on a caller that stopped listening.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(req Request) (<-chan Result, bool) {
	reply := make(chan Result, 1)
	ok := e.queue.Enqueue(job{ticket: e.tickets.Next(), req: req, reply: reply})
	if !ok {
		return nil, false
	}
	return reply, true
}

// Run starts the single-writer execution loop.
// Blocks until context is cancelled or Stop() is called; after Stop the
// loop drains queued requests before returning.
//
// ERROR HANDLING: A failed execution is logged with its ticket and
// delivered to the caller; the loop continues with the next request. No
// request is retried.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "variant", e.variant.String())

	for {
		j, ok := e.queue.TryDequeue()
		if ok {
			rc, err := e.Execute(ctx, j.req)
			if err != nil {
				e.log.Warn("request failed",
					"ticket", j.ticket,
					"execution_id", rc.ExecutionID,
					"status", rc.Status,
					"error", err,
				)
			}
			j.reply <- Result{Ticket: j.ticket, Receipt: rc, Err: err}
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately.
			// A stale signal on an open queue just loops back.
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.log.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the request queue, which will cause Run() to return once the
// queue is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// State returns the current application state, for callers that want to
// read back the effect of a batch of executions.
func (e *Engine) State(ctx context.Context) (store.Snapshot, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read state: %w", err)
	}
	return snap, nil
}
