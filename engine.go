package mentor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine is the single entry point for the quiz tool: it routes questions
// through admission governance before the model call and quiz answers through
// the review scheduler and the store.
type Engine struct {
	model Model
	store Store

	mu        sync.RWMutex // guards cfg, scheduler, prices across Reconfigure
	cfg       Config
	scheduler *Scheduler
	prices    PriceTable

	rate     *RateWindow
	governor *Governor
	ledger   Ledger
	meter    Meter
	logger   *slog.Logger
	clock    func() time.Time

	items *itemLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger sets the budget ledger.
func WithLedger(l Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithScheduler sets the review scheduler.
func WithScheduler(s *Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithPrices sets the price table used for estimates and cost attribution.
func WithPrices(p PriceTable) Option {
	return func(e *Engine) { e.prices = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source. Intended for tests.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.clock = fn }
}

// NewEngine creates a new Engine with the given config, model, and store.
// Default components (MemoryLedger at the configured cap, a no-op meter, a
// scheduler built from cfg.Review) are used unless overridden via options.
func NewEngine(cfg Config, model Model, store Store, opts ...Option) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("mentor: a model is required")
	}
	if store == nil {
		return nil, fmt.Errorf("mentor: a store is required")
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		model: model,
		store: store,
		items: newItemLocks(),
	}

	for _, opt := range opts {
		opt(e)
	}

	// Apply defaults after options.
	if e.ledger == nil {
		e.ledger = NewMemoryLedger(cfg.Budget.Cap)
	}
	if e.meter == nil {
		e.meter = &noopMeter{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.scheduler == nil {
		sched, err := NewScheduler(cfg.Review)
		if err != nil {
			return nil, err
		}
		e.scheduler = sched
	}
	if e.prices.Models == nil {
		if cfg.Model.Prices.Models != nil {
			e.prices = cfg.Model.Prices
		} else {
			e.prices = DefaultPrices()
		}
	}

	rate, err := NewRateWindow(cfg.Session.RequestLimit, cfg.Session.Window.Std(), cfg.Session.MaxTracked)
	if err != nil {
		return nil, err
	}
	e.rate = rate
	e.governor = NewGovernor(rate, e.ledger)

	// Seed the ledger from the persisted budget snapshot if the ledger
	// supports it. Durable ledgers carry their own state.
	if init, ok := e.ledger.(LedgerInitializer); ok {
		rec, err := store.GetBudget(context.Background())
		switch {
		case err == nil:
			init.RestoreSpent(rec.Spent)
		case errors.Is(err, ErrNotFound):
			// First run, nothing to restore.
		default:
			return nil, fmt.Errorf("mentor: restore budget: %w", err)
		}
	}

	return e, nil
}

// AskQuestion routes a question through admission and on to the model.
// Denials surface as ErrRateLimited / ErrBudgetExceeded; branch with
// IsDenied. A transient model failure is retried at most once, behind a
// fresh admission check; a denial is final either way. The budget
// reservation of every attempt is settled no matter how the call went.
func (e *Engine) AskQuestion(ctx context.Context, sessionID, question string) (Answer, error) {
	if sessionID == "" {
		return Answer{}, fmt.Errorf("mentor: session id is required")
	}
	if question == "" {
		return Answer{}, fmt.Errorf("mentor: question is empty")
	}

	cfg, _, prices := e.snapshot()

	req := ModelRequest{
		Prompt: question,
		System: cfg.Model.System,
	}
	if cfg.Model.MaxTokens > 0 {
		req.MaxTokens = IntPtr(cfg.Model.MaxTokens)
	}
	if cfg.Model.Temperature != nil {
		req.Temperature = cfg.Model.Temperature
	}

	estimated := EstimateCost(req, cfg.Model.Name, prices)

	maxAttempts := 2
	if cfg.Model.DisableRetry {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Answer{}, &AskError{Err: err, SessionID: sessionID, Model: cfg.Model.Name, Attempts: attempt - 1}
		}

		now := e.clock()
		adm, err := e.governor.Admit(ctx, sessionID, estimated, now)
		if err != nil {
			return Answer{}, err
		}

		e.meter.OnAdmit(AdmitEvent{
			SessionID:     sessionID,
			Granted:       adm.Granted,
			Reason:        adm.Reason,
			EstimatedCost: estimated,
			AttemptNum:    attempt,
		})

		if !adm.Granted {
			if adm.Reason == DenyBudget {
				return Answer{}, ErrBudgetExceeded
			}
			return Answer{}, ErrRateLimited
		}

		answer, err := e.call(ctx, cfg, prices, sessionID, req, adm.Ticket)
		if err != nil {
			lastErr = err
			if IsFatal(err) {
				return Answer{}, &AskError{Err: err, SessionID: sessionID, Model: cfg.Model.Name, Attempts: attempt}
			}
			continue
		}

		answer.SessionID = sessionID
		answer.Attempts = attempt
		e.updateSession(sessionID, now, 1, answer.Cost)
		return answer, nil
	}

	return Answer{}, &AskError{Err: lastErr, SessionID: sessionID, Model: cfg.Model.Name, Attempts: maxAttempts}
}

// call performs the model call and always settles the ticket. Settlement uses
// a fresh context so a canceled or timed-out request cannot leave the
// reservation outstanding.
func (e *Engine) call(ctx context.Context, cfg Config, prices PriceTable, sessionID string, req ModelRequest, ticket Ticket) (Answer, error) {
	callCtx := ctx
	if d := cfg.Model.CallTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	resp, callErr := e.model.Call(callCtx, req)
	duration := time.Since(start)

	modelName := resp.Model
	if modelName == "" {
		modelName = cfg.Model.Name
	}

	// A failed or timed-out call may still have incurred partial cost; it
	// settles at zero when the model reports none.
	cost := resp.Cost
	if cost == 0 && resp.Usage.TotalTokens > 0 {
		cost = prices.CostOf(modelName, resp.Usage)
	}

	if err := e.ledger.Settle(context.Background(), ticket, cost); err != nil {
		e.logger.Error("budget settle failed", "ticket", ticket.ID, "error", err)
	} else if spent, err := e.ledger.Spent(context.Background()); err == nil && spent > cfg.Budget.Cap {
		e.logger.Warn("budget cap overshot by settled cost",
			"spent", spent, "cap", cfg.Budget.Cap, "ticket", ticket.ID)
	}

	e.meter.OnResult(ResultEvent{
		SessionID: sessionID,
		Model:     modelName,
		Success:   callErr == nil,
		Duration:  duration,
		Usage:     resp.Usage,
		Cost:      cost,
		Error:     callErr,
	})

	if callErr != nil {
		return Answer{}, callErr
	}

	return Answer{
		Text:  resp.Text,
		Model: modelName,
		Usage: resp.Usage,
		Cost:  cost,
	}, nil
}

// AnswerQuizItem applies a recall grade to a quiz item and returns the next
// due time. Reviews are not rate limited: they never invoke the model.
// Corrupt stored state is reset to initial values and logged, not propagated.
func (e *Engine) AnswerQuizItem(ctx context.Context, sessionID, itemID string, recall Recall) (time.Time, error) {
	if !recall.IsValid() {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidRecall, int(recall))
	}

	_, sched, _ := e.snapshot()

	release := e.items.acquire(itemID)
	defer release()

	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return time.Time{}, err
	}

	now := e.clock()

	if err := item.State.Validate(); err != nil {
		e.logger.Warn("quiz item state corrupt, resetting",
			"item", itemID, "error", err)
		item.State = sched.InitialState(now)
	}

	next, err := sched.Review(item.State, recall, now)
	if err != nil {
		return time.Time{}, err
	}

	item.State = next
	if err := e.store.PutItem(ctx, item); err != nil {
		return time.Time{}, fmt.Errorf("mentor: store review: %w", err)
	}

	e.meter.OnReview(ReviewEvent{
		SessionID:    sessionID,
		ItemID:       itemID,
		Recall:       recall,
		Repetitions:  next.Repetitions,
		IntervalDays: next.IntervalDays,
		Due:          next.Due,
	})

	e.updateSession(sessionID, now, 0, 0)
	return next.Due, nil
}

// DueItems returns the IDs of quiz items due at or before now, soonest first.
// A zero now means the current time.
func (e *Engine) DueItems(ctx context.Context, sessionID string, now time.Time) ([]string, error) {
	if now.IsZero() {
		now = e.clock()
	}
	ids, err := e.store.DueBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("mentor: list due items: %w", err)
	}
	e.logger.Debug("due items listed", "session", sessionID, "count", len(ids))
	return ids, nil
}

// AddItem introduces a quiz item. A missing ID is generated, a zero State is
// initialized to the scheduler's initial state, and a non-zero State must be
// valid.
func (e *Engine) AddItem(ctx context.Context, item QuizItem) (QuizItem, error) {
	_, sched, _ := e.snapshot()

	now := e.clock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.State == (ReviewState{}) {
		item.State = sched.InitialState(now)
	} else if err := item.State.Validate(); err != nil {
		return QuizItem{}, err
	}

	if err := e.store.PutItem(ctx, item); err != nil {
		return QuizItem{}, fmt.Errorf("mentor: store item: %w", err)
	}
	return item, nil
}

// Item returns the quiz item with the given ID.
func (e *Engine) Item(ctx context.Context, id string) (QuizItem, error) {
	return e.store.GetItem(ctx, id)
}

// Preview returns the state each recall grade would produce for an item
// without recording a review. Corrupt stored state previews from the initial
// state, matching what answering the item would do. A zero now means the
// current time.
func (e *Engine) Preview(ctx context.Context, itemID string, now time.Time) (map[Recall]ReviewState, error) {
	_, sched, _ := e.snapshot()

	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = e.clock()
	}
	if err := item.State.Validate(); err != nil {
		item.State = sched.InitialState(now)
	}
	return sched.Preview(item.State, now)
}

// Session returns the audit record for one session.
func (e *Engine) Session(ctx context.Context, id string) (SessionRecord, error) {
	return e.store.GetSession(ctx, id)
}

// Sessions returns up to limit session records, most recently active first.
func (e *Engine) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	return e.store.Sessions(ctx, limit)
}

// Budget returns the current budget state.
func (e *Engine) Budget(ctx context.Context) (BudgetRecord, error) {
	cfg, _, _ := e.snapshot()
	spent, err := e.ledger.Spent(ctx)
	if err != nil {
		return BudgetRecord{}, fmt.Errorf("mentor: read ledger: %w", err)
	}
	return BudgetRecord{Spent: spent, Cap: cfg.Budget.Cap, UpdatedAt: e.clock()}, nil
}

// SnapshotBudget persists the current budget state to the store.
func (e *Engine) SnapshotBudget(ctx context.Context) error {
	rec, err := e.Budget(ctx)
	if err != nil {
		return err
	}
	if err := e.store.PutBudget(ctx, rec); err != nil {
		return fmt.Errorf("mentor: store budget: %w", err)
	}
	return nil
}

// ResetBudget clears the settled spend and persists the cleared snapshot.
// Administrative use only; a budget denial stays terminal until this is
// called.
func (e *Engine) ResetBudget(ctx context.Context) error {
	if err := e.ledger.Reset(ctx); err != nil {
		return fmt.Errorf("mentor: reset ledger: %w", err)
	}
	e.logger.Info("budget reset")
	return e.SnapshotBudget(ctx)
}

// EvictIdleSessions drops rate state for sessions idle longer than the
// configured timeout and returns how many were evicted.
func (e *Engine) EvictIdleSessions(now time.Time) int {
	cfg, _, _ := e.snapshot()
	idle := cfg.Session.IdleTimeout.Std()
	if idle <= 0 {
		return 0
	}
	evicted := e.rate.EvictIdle(now.Add(-idle))
	if evicted > 0 {
		e.logger.Debug("idle sessions evicted", "count", evicted)
	}
	return evicted
}

// Reconfigure applies a new configuration to a running engine. Rate limits,
// the budget cap (for ledgers that accept one), the scheduler, and prices are
// replaced; the model and store collaborators are not.
func (e *Engine) Reconfigure(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	sched, err := NewScheduler(cfg.Review)
	if err != nil {
		return err
	}

	if err := e.rate.SetLimit(cfg.Session.RequestLimit, cfg.Session.Window.Std()); err != nil {
		return err
	}
	if init, ok := e.ledger.(LedgerInitializer); ok {
		init.SetLimit(cfg.Budget.Cap)
	}

	e.mu.Lock()
	e.cfg = cfg
	e.scheduler = sched
	if cfg.Model.Prices.Models != nil {
		e.prices = cfg.Model.Prices
	}
	e.mu.Unlock()

	e.logger.Info("configuration applied",
		"request_limit", cfg.Session.RequestLimit,
		"window", cfg.Session.Window.Std(),
		"budget_cap", cfg.Budget.Cap,
	)
	return nil
}

func (e *Engine) snapshot() (Config, *Scheduler, PriceTable) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.scheduler, e.prices
}

// updateSession refreshes the session's audit record. Bookkeeping outlives
// the request context, and its failures are logged rather than surfaced.
func (e *Engine) updateSession(sessionID string, now time.Time, questions int64, spend float64) {
	ctx := context.Background()

	rec, err := e.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		rec = SessionRecord{ID: sessionID, CreatedAt: now}
	} else if err != nil {
		e.logger.Warn("session record read failed", "session", sessionID, "error", err)
		return
	}

	rec.LastActiveAt = now
	rec.Questions += questions
	rec.Spend += spend
	if err := e.store.PutSession(ctx, rec); err != nil {
		e.logger.Warn("session record write failed", "session", sessionID, "error", err)
	}
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnAdmit(AdmitEvent)   {}
func (m *noopMeter) OnResult(ResultEvent) {}
func (m *noopMeter) OnReview(ReviewEvent) {}
