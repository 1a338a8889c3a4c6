// Package alarm implements the Alarm Queue (component C4): a persistent,
// multi-typed timer queue collapsed onto a single underlying timer, mirroring
// a runtime that only ever grants one outstanding alarm per actor. The room
// actor schedules SEAT_EXPIRATION, PAUSE_TIMEOUT, PAUSE_DEBOUNCE,
// TURN_TIMEOUT, and INVITE_EXPIRATION entries here instead of holding its own
// timers, so every pending deadline survives a process restart by way of the
// Storage Facade.
package alarm

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the alarm kinds the room actor schedules, per spec
// section 3 (AlarmEntry) and section 4.2.
type Type string

const (
	SeatExpiration   Type = "SEAT_EXPIRATION"
	PauseTimeout     Type = "PAUSE_TIMEOUT"
	PauseDebounce    Type = "PAUSE_DEBOUNCE"
	TurnTimeout      Type = "TURN_TIMEOUT"
	InviteExpiration Type = "INVITE_EXPIRATION"
)

// Entry is one scheduled deadline. Key disambiguates entries of the same
// Type (e.g. one SEAT_EXPIRATION per vacated seat), so Cancel/CancelWhere
// can target a single entry without clearing every alarm of that type.
type Entry struct {
	ID      string    `json:"id"`
	Type    Type      `json:"type"`
	Key     string    `json:"key"`
	FireAt  time.Time `json:"fireAt"`
	Payload any       `json:"payload,omitempty"`
}

// Sink mirrors storage.Sink structurally; the alarm package defines its own
// copy rather than importing instrumentation, keeping it a leaf dependency
// alongside storage.
type Sink interface {
	Emit(ctx context.Context, event string, fields map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(context.Context, string, map[string]any) {}

// Persister is the subset of storage.Facade the queue needs. Declared
// locally (rather than importing internal/v1/storage) for the same
// leaf-dependency reason as Sink.
type Persister interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
}

// record is what gets persisted under persistKey on every mutation.
type record struct {
	Entries []Entry `json:"entries"`
}

// Clock abstracts time so tests can control firing without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the minimal *time.Timer surface the queue needs, so tests can
// substitute a fake.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is the production Clock, backed by the standard library.
var RealClock Clock = realClock{}

// OnFire is invoked when an entry's deadline elapses. It is called with the
// queue's internal lock released, so the callback may safely re-enter the
// room actor's own lock without deadlocking.
type OnFire func(ctx context.Context, entry Entry)

const persistKey = "alarm_queue"

// Queue holds every pending alarm for one room and multiplexes them onto a
// single standing timer, the way a Durable Object multiplexes arbitrary
// application deadlines onto its one alarm primitive.
type Queue struct {
	mu      sync.Mutex
	entries map[string]Entry
	timer   Timer
	clock   Clock
	persist Persister
	sink    Sink
	onFire  OnFire
	ctx     context.Context
}

// New builds an empty Queue. Load should be called once at room startup to
// recover any entries that survived a restart.
func New(ctx context.Context, persist Persister, sink Sink, clock Clock, onFire OnFire) *Queue {
	if sink == nil {
		sink = noopSink{}
	}
	if clock == nil {
		clock = RealClock
	}
	return &Queue{
		entries: make(map[string]Entry),
		clock:   clock,
		persist: persist,
		sink:    sink,
		onFire:  onFire,
		ctx:     ctx,
	}
}

// Load recovers persisted entries from storage and re-arms the timer for
// the earliest one. Entries whose deadline has already elapsed fire
// immediately (on a fresh goroutine) rather than being silently dropped.
func (q *Queue) Load(ctx context.Context) error {
	raw, err := q.persist.Get(ctx, persistKey)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	var rec record
	if err := unmarshal(raw, &rec); err != nil {
		// A corrupted alarm_queue record self-heals to empty rather than
		// blocking room startup, per spec section 7 (STATE_CORRUPTION).
		q.sink.Emit(ctx, "alarm.load.corrupt", map[string]any{"error": err.Error()})
		return q.persistLocked(ctx)
	}

	q.mu.Lock()
	for _, e := range rec.Entries {
		q.entries[e.ID] = e
	}
	q.mu.Unlock()

	q.rearm()
	q.sink.Emit(ctx, "alarm.load.recovered", map[string]any{"count": len(rec.Entries)})
	return nil
}

// Schedule adds or replaces the alarm identified by (typ, key) and persists
// the updated queue before returning, so a crash between Schedule returning
// and the next fire can never lose the entry.
func (q *Queue) Schedule(ctx context.Context, typ Type, key string, fireAt time.Time, payload any) (Entry, error) {
	q.mu.Lock()
	// Replace any existing entry for this (type, key) pair rather than
	// stacking duplicates — e.g. re-scheduling PAUSE_DEBOUNCE on a second
	// tab's disconnect replaces the first tab's pending debounce alarm.
	for id, e := range q.entries {
		if e.Type == typ && e.Key == key {
			delete(q.entries, id)
		}
	}
	entry := Entry{ID: uuid.NewString(), Type: typ, Key: key, FireAt: fireAt, Payload: payload}
	q.entries[entry.ID] = entry
	err := q.persistLocked(ctx)
	q.mu.Unlock()
	if err != nil {
		return Entry{}, err
	}

	q.rearm()
	q.sink.Emit(ctx, "alarm.scheduled", map[string]any{"type": string(typ), "key": key, "fireAt": fireAt})
	return entry, nil
}

// Cancel removes a single entry by ID.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	_, existed := q.entries[id]
	delete(q.entries, id)
	err := q.persistLocked(ctx)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	if existed {
		q.sink.Emit(ctx, "alarm.cancelled", map[string]any{"id": id})
	}
	q.rearm()
	return nil
}

// CancelWhere removes every entry of typ matching key (e.g. clearing a
// seat's SEAT_EXPIRATION alarm on reclaim, or an invite's INVITE_EXPIRATION
// alarm on acceptance/decline).
func (q *Queue) CancelWhere(ctx context.Context, typ Type, key string) error {
	q.mu.Lock()
	removed := 0
	for id, e := range q.entries {
		if e.Type == typ && e.Key == key {
			delete(q.entries, id)
			removed++
		}
	}
	err := q.persistLocked(ctx)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	if removed > 0 {
		q.sink.Emit(ctx, "alarm.cancelled.where", map[string]any{"type": string(typ), "key": key, "count": removed})
	}
	q.rearm()
	return nil
}

// Entries returns a snapshot of every pending alarm, sorted by FireAt, for
// inspection/tests.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// rearm cancels any standing timer and arms a new one for the earliest
// pending entry, collapsing however many entries exist onto the single
// timer primitive.
func (q *Queue) rearm() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	var earliest *Entry
	for i := range q.entries {
		e := q.entries[i]
		if earliest == nil || e.FireAt.Before(earliest.FireAt) {
			earliest = &e
		}
	}
	if earliest == nil {
		q.mu.Unlock()
		return
	}
	d := earliest.FireAt.Sub(q.clock.Now())
	if d < 0 {
		d = 0
	}
	id := earliest.ID
	q.timer = q.clock.AfterFunc(d, func() { q.fire(id) })
	q.mu.Unlock()
}

// fire delivers one entry to onFire after releasing the internal lock, then
// re-arms for whatever is next. The room actor's onFire callback commonly
// re-enters its own mutex, so the lock must not be held across the call.
func (q *Queue) fire(id string) {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if ok {
		delete(q.entries, id)
	}
	_ = q.persistLocked(q.ctx)
	q.mu.Unlock()

	if !ok {
		return
	}

	q.sink.Emit(q.ctx, "alarm.fired", map[string]any{"type": string(entry.Type), "key": entry.Key})
	if q.onFire != nil {
		q.onFire(q.ctx, entry)
	}
	q.rearm()
}

// persistLocked writes the current entry set to storage. Caller must hold q.mu.
func (q *Queue) persistLocked(ctx context.Context) error {
	rec := record{Entries: make([]Entry, 0, len(q.entries))}
	for _, e := range q.entries {
		rec.Entries = append(rec.Entries, e)
	}
	sort.Slice(rec.Entries, func(i, j int) bool { return rec.Entries[i].FireAt.Before(rec.Entries[j].FireAt) })
	return q.persist.Put(ctx, persistKey, rec)
}
