// Package autosave tracks dirty records, debounces and batches writes to
// the persistence boundary, retries failed batches with a bounded budget,
// and exposes a subscribable state snapshot to the presentation layer.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/planwise/schedcore/internal/events"
	"github.com/planwise/schedcore/internal/logging"
	"github.com/planwise/schedcore/internal/store"
)

// Key addresses one pending record.
type Key struct {
	Table    string
	RecordID string
}

// State is the snapshot handed to subscribers on every transition.
type State struct {
	IsDirty      bool
	IsSaving     bool
	LastSaved    time.Time
	LastError    error
	PendingCount int
}

// Options are the engine tunables. Zero values fall back to the spec'd
// defaults.
type Options struct {
	Debounce      time.Duration
	FlushInterval time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

func (o *Options) applyDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = time.Second
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
}

type pendingRecord struct {
	payload map[string]any
	seq     uint64
}

// Engine is constructed once per editing session and injected wherever
// dirty-marking is needed; it is never a package-level singleton.
//
// The saving flag is the sole mutual-exclusion mechanism: at most one
// flush is in flight system-wide, so a debounce-triggered flush and a
// periodic-tick flush racing each other never issue duplicate writes.
type Engine struct {
	store    store.Store
	registry *Registry
	logger   *logging.Logger

	mu      sync.Mutex
	opts    Options
	pending map[Key]*pendingRecord
	timers  map[Key]*time.Timer
	seq     uint64

	saving    bool
	lastSaved time.Time
	lastError error
	retries   int

	subscribers map[int]func(State)
	nextSubID   int

	bus   *events.Bus
	group singleflight.Group

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool

	now func() time.Time
}

func New(st store.Store, reg *Registry, opts Options, logger *logging.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:       st,
		registry:    reg,
		logger:      logger,
		opts:        opts,
		pending:     make(map[Key]*pendingRecord),
		timers:      make(map[Key]*time.Timer),
		subscribers: make(map[int]func(State)),
		stop:        make(chan struct{}),
		now:         time.Now,
	}
}

// SetEventBus wires an optional bus; every state transition is also
// published as EventAutoSaveState.
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bus = bus
}

// SetOptions swaps the tunables, used by config hot reload. Already
// scheduled debounce timers keep their old delay.
func (e *Engine) SetOptions(opts Options) {
	opts.applyDefaults()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = opts
}

// MarkDirty stores the payload under (table, recordID) — last write wins,
// no merge — clears the last error, and (re)starts the key's debounce
// timer.
func (e *Engine) MarkDirty(table, recordID string, payload map[string]any) {
	key := Key{Table: table, RecordID: recordID}

	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}

	e.mu.Lock()
	e.seq++
	e.pending[key] = &pendingRecord{payload: cp, seq: e.seq}
	e.lastError = nil
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = time.AfterFunc(e.opts.Debounce, func() {
		e.onDebounce(key)
	})
	state, subs := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(state, subs)
}

func (e *Engine) onDebounce(key Key) {
	e.mu.Lock()
	delete(e.timers, key)
	skip := e.saving || len(e.pending) == 0
	e.mu.Unlock()
	if skip {
		// An in-flight flush snapshots the latest payloads anyway, and
		// anything it misses is caught by the periodic tick.
		return
	}
	if err := e.Flush(context.Background()); err != nil {
		e.logger.Warnf("autosave: debounced flush: %v", err)
	}
}

// Flush persists all pending records. Concurrent callers coalesce into a
// single attempt; the result is shared.
func (e *Engine) Flush(ctx context.Context) error {
	_, err, _ := e.group.Do("flush", func() (any, error) {
		return nil, e.flushOnce(ctx)
	})
	return err
}

// ForceSave triggers an immediate flush bypassing debounce, used before
// destructive navigation.
func (e *Engine) ForceSave(ctx context.Context) error {
	e.mu.Lock()
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
	e.mu.Unlock()
	return e.Flush(ctx)
}

// ClearDirty discards all pending changes without persisting. Explicit
// user-initiated discard only.
func (e *Engine) ClearDirty() {
	e.mu.Lock()
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
	e.pending = make(map[Key]*pendingRecord)
	e.lastError = nil
	e.retries = 0
	state, subs := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(state, subs)
}

// Subscribe registers a callback invoked with a state snapshot on every
// transition. The returned unregister function is idempotent.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// State returns the current snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, _ := e.snapshotLocked()
	return state
}

// Start launches the periodic flush ticker, which guarantees eventual
// persistence even under continuous rapid edits that keep resetting the
// per-key debounce timers.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	interval := e.opts.FlushInterval
	stop := e.stop
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.mu.Lock()
				due := len(e.pending) > 0 && !e.saving
				e.mu.Unlock()
				if due {
					if err := e.Flush(context.Background()); err != nil {
						e.logger.Warnf("autosave: periodic flush: %v", err)
					}
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the periodic ticker and cancels scheduled debounce timers.
// Pending changes are left in place; call ForceSave first to persist them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stop)
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
	e.mu.Unlock()
	e.wg.Wait()

	e.mu.Lock()
	e.stop = make(chan struct{})
	e.mu.Unlock()
}

func (e *Engine) flushOnce(ctx context.Context) error {
	e.mu.Lock()
	if e.saving || len(e.pending) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.saving = true
	snapshot := make(map[Key]pendingRecord, len(e.pending))
	for key, rec := range e.pending {
		snapshot[key] = *rec
	}
	state, subs := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(state, subs)

	failures := e.writeBatch(ctx, snapshot)

	e.mu.Lock()
	for key, rec := range snapshot {
		if _, failed := failures[key]; failed {
			continue
		}
		// Drop the record only if it was not re-marked mid-flight;
		// last-writer-wins must survive a concurrent edit.
		if cur, ok := e.pending[key]; ok && cur.seq == rec.seq {
			delete(e.pending, key)
		}
	}
	e.saving = false

	var summary error
	if len(failures) == 0 {
		e.lastSaved = e.now()
		e.lastError = nil
		e.retries = 0
	} else {
		summary = fmt.Errorf("%d record(s) failed to save", len(failures))
		e.lastError = summary
		if e.retries < e.opts.MaxRetries {
			e.retries++
			attempt := e.retries
			delay := e.opts.RetryDelay
			time.AfterFunc(delay, e.retryFlush)
			e.logger.Warnf("autosave: %d record(s) failed, retry %d/%d in %s",
				len(failures), attempt, e.opts.MaxRetries, delay)
		} else {
			// Retry budget spent. Failed records stay pending so a future
			// edit or periodic tick retries them, with a fresh budget.
			e.retries = 0
			e.logger.Errorf("autosave: %d record(s) still failing after %d retries",
				len(failures), e.opts.MaxRetries)
		}
	}
	state, subs = e.snapshotLocked()
	e.mu.Unlock()
	e.notify(state, subs)

	return summary
}

func (e *Engine) retryFlush() {
	e.mu.Lock()
	due := len(e.pending) > 0 && !e.saving
	e.mu.Unlock()
	if !due {
		return
	}
	if err := e.Flush(context.Background()); err != nil {
		e.logger.Warnf("autosave: retry flush: %v", err)
	}
}

// writeBatch attempts every record independently; one record's failure
// does not block the others. Returns the per-key errors.
func (e *Engine) writeBatch(ctx context.Context, snapshot map[Key]pendingRecord) map[Key]error {
	failures := make(map[Key]error)
	for key, rec := range snapshot {
		if err := e.writeRecord(ctx, key, rec.payload); err != nil {
			failures[key] = err
			e.logger.Warnf("autosave: write %s/%s: %v", key.Table, key.RecordID, err)
		}
	}
	return failures
}

func (e *Engine) writeRecord(ctx context.Context, key Key, payload map[string]any) error {
	spec, ok := e.registry.Get(key.Table)
	if !ok {
		return fmt.Errorf("no table spec registered for %q", key.Table)
	}

	if errs := spec.Validate(payload); len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	payload = spec.Transform(payload)

	// Project only the configured fields plus the primary key and the
	// update timestamp.
	projected := make(map[string]any, len(payload)+2)
	for _, field := range spec.Fields() {
		if v, ok := payload[field]; ok {
			projected[field] = v
		}
	}
	projected[spec.PrimaryKey()] = key.RecordID
	projected["updated_at"] = e.now().UTC().Format(time.RFC3339)

	return e.store.Update(ctx, key.Table, key.RecordID, projected)
}

// snapshotLocked builds the state snapshot and copies the subscriber list
// while e.mu is held; callers notify after unlocking.
func (e *Engine) snapshotLocked() (State, []func(State)) {
	state := State{
		IsDirty:      len(e.pending) > 0,
		IsSaving:     e.saving,
		LastSaved:    e.lastSaved,
		LastError:    e.lastError,
		PendingCount: len(e.pending),
	}
	subs := make([]func(State), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	return state, subs
}

func (e *Engine) notify(state State, subs []func(State)) {
	for _, fn := range subs {
		fn(state)
	}
	e.mu.Lock()
	bus := e.bus
	e.mu.Unlock()
	if bus != nil {
		bus.Publish(events.EventAutoSaveState, state)
	}
}
