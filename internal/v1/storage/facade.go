// Package storage implements the Storage Facade (component C7): a narrow
// key-value interface the room actor uses for every durable read and write.
// Writes are durable before returning; reads after a successful write
// observe that write (read-your-writes within the actor), and absent keys
// return a tagged not-found error rather than an ambiguous nil.
//
// The production implementation is backed by Redis, following the same
// shape as the teacher's internal/v1/bus.Service (a *redis.Client wrapped
// with a circuit breaker and structured logging); MemoryFacade backs tests
// and single-instance/no-Redis development the same way the teacher's Hub
// falls back to single-instance mode when its BusService is nil.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key has never been written (or was
// deleted). Callers must not conflate it with a stored JSON null.
type ErrNotFound struct{ Key string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("storage: key %q not found", e.Key) }

// NotFound lets callers outside this package (e.g. internal/v1/alarm, which
// deliberately avoids importing storage) duck-type against ErrNotFound
// without a direct dependency.
func (e *ErrNotFound) NotFound() bool { return true }

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// Sink is the minimal structured-event interface the facade needs. It is
// satisfied structurally by *instrumentation.Emitter without this package
// importing instrumentation — keeping storage a leaf dependency, per the
// room actor's declared build order (Storage Facade before Instrumentation).
type Sink interface {
	Emit(ctx context.Context, event string, fields map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(context.Context, string, map[string]any) {}

// Facade is the full C7 contract: get/put/delete/list over JSON-encodable
// records, fixed to the six keys the room actor uses (room, game, seats,
// chat, alarm_queue, invites), namespaced per room by the caller.
type Facade interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// RedisFacade persists every key under a room-scoped Redis hash so that a
// whole room's durable state can be wiped with a single DEL on abandonment.
type RedisFacade struct {
	client    *redis.Client
	hashKey   string // e.g. "room:ABC123:state"
	sink      Sink
	operation string // label for metrics/instrumentation, e.g. "redis"
}

// NewRedisFacade builds a Facade backed by Redis. hashKey should be unique
// per room (callers typically use fmt.Sprintf("room:%s:state", roomCode)).
func NewRedisFacade(client *redis.Client, hashKey string, sink Sink) *RedisFacade {
	if sink == nil {
		sink = noopSink{}
	}
	return &RedisFacade{client: client, hashKey: hashKey, sink: sink, operation: "redis"}
}

func (f *RedisFacade) Get(ctx context.Context, key string) (json.RawMessage, error) {
	start := time.Now()
	f.sink.Emit(ctx, "storage.read.start", map[string]any{"key": key})

	raw, err := f.client.HGet(ctx, f.hashKey, key).Bytes()
	dur := time.Since(start)

	if err == redis.Nil {
		f.sink.Emit(ctx, "storage.read.end", map[string]any{"key": key, "success": true, "found": false, "durationMs": dur.Milliseconds()})
		return nil, &ErrNotFound{Key: key}
	}
	if err != nil {
		f.sink.Emit(ctx, "storage.read.end", map[string]any{"key": key, "success": false, "durationMs": dur.Milliseconds(), "error": err.Error()})
		return nil, fmt.Errorf("storage: redis get %q: %w", key, err)
	}

	f.sink.Emit(ctx, "storage.read.end", map[string]any{"key": key, "success": true, "found": true, "durationMs": dur.Milliseconds()})
	return json.RawMessage(raw), nil
}

func (f *RedisFacade) Put(ctx context.Context, key string, value any) error {
	start := time.Now()
	f.sink.Emit(ctx, "storage.write.start", map[string]any{"key": key})

	data, err := json.Marshal(value)
	if err != nil {
		f.sink.Emit(ctx, "storage.write.end", map[string]any{"key": key, "success": false, "error": err.Error()})
		return fmt.Errorf("storage: marshal %q: %w", key, err)
	}

	err = f.client.HSet(ctx, f.hashKey, key, data).Err()
	dur := time.Since(start)
	if err != nil {
		f.sink.Emit(ctx, "storage.write.end", map[string]any{"key": key, "success": false, "durationMs": dur.Milliseconds(), "error": err.Error()})
		return fmt.Errorf("storage: redis put %q: %w", key, err)
	}

	f.sink.Emit(ctx, "storage.write.end", map[string]any{"key": key, "success": true, "durationMs": dur.Milliseconds()})
	return nil
}

func (f *RedisFacade) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := f.client.HDel(ctx, f.hashKey, key).Err()
	dur := time.Since(start)
	f.sink.Emit(ctx, "storage.delete", map[string]any{"key": key, "success": err == nil, "durationMs": dur.Milliseconds()})
	if err != nil {
		return fmt.Errorf("storage: redis delete %q: %w", key, err)
	}
	return nil
}

func (f *RedisFacade) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := f.client.HKeys(ctx, f.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: redis list %q: %w", prefix, err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemoryFacade is an in-process Facade for tests and single-instance/dev
// deployments without Redis. Reads-after-writes are trivially consistent
// since both happen against the same guarded map.
type MemoryFacade struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
	sink Sink
}

func NewMemoryFacade(sink Sink) *MemoryFacade {
	if sink == nil {
		sink = noopSink{}
	}
	return &MemoryFacade{data: make(map[string]json.RawMessage), sink: sink}
}

func (f *MemoryFacade) Get(ctx context.Context, key string) (json.RawMessage, error) {
	f.sink.Emit(ctx, "storage.read.start", map[string]any{"key": key})
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		f.sink.Emit(ctx, "storage.read.end", map[string]any{"key": key, "success": true, "found": false})
		return nil, &ErrNotFound{Key: key}
	}
	f.sink.Emit(ctx, "storage.read.end", map[string]any{"key": key, "success": true, "found": true})
	return v, nil
}

func (f *MemoryFacade) Put(ctx context.Context, key string, value any) error {
	f.sink.Emit(ctx, "storage.write.start", map[string]any{"key": key})
	data, err := json.Marshal(value)
	if err != nil {
		f.sink.Emit(ctx, "storage.write.end", map[string]any{"key": key, "success": false, "error": err.Error()})
		return fmt.Errorf("storage: marshal %q: %w", key, err)
	}
	f.mu.Lock()
	f.data[key] = data
	f.mu.Unlock()
	f.sink.Emit(ctx, "storage.write.end", map[string]any{"key": key, "success": true})
	return nil
}

func (f *MemoryFacade) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	delete(f.data, key)
	f.mu.Unlock()
	f.sink.Emit(ctx, "storage.delete", map[string]any{"key": key, "success": true})
	return nil
}

func (f *MemoryFacade) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.data))
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Versioned wraps every top-level value the room actor persists with an
// explicit schema version, per spec section 6.3: "unknown-version reads
// fail closed".
type Versioned[T any] struct {
	Version int `json:"version"`
	Data    T   `json:"data"`
}

// ErrUnknownVersion is returned by GetVersioned when the stored record's
// version does not match the version the caller expects.
type ErrUnknownVersion struct {
	Key             string
	Got, Want       int
}

func (e *ErrUnknownVersion) Error() string {
	return fmt.Sprintf("storage: key %q has version %d, want %d", e.Key, e.Got, e.Want)
}

// PutVersioned stores value wrapped with the given schema version.
func PutVersioned[T any](ctx context.Context, f Facade, key string, version int, value T) error {
	return f.Put(ctx, key, Versioned[T]{Version: version, Data: value})
}

// GetVersioned reads back a value written by PutVersioned, failing closed
// (returning ErrUnknownVersion, never a zero-value guess) if the stored
// version doesn't match wantVersion.
func GetVersioned[T any](ctx context.Context, f Facade, key string, wantVersion int) (T, error) {
	var zero T
	raw, err := f.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	var env Versioned[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("storage: unmarshal %q: %w", key, err)
	}
	if env.Version != wantVersion {
		return zero, &ErrUnknownVersion{Key: key, Got: env.Version, Want: wantVersion}
	}
	return env.Data, nil
}
