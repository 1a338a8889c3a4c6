// Package instrumentation implements the structured-event stream (component C8
// in the room actor design): one JSON object per line, validated against a
// discriminated-union schema before it ever reaches the log sink.
//
// This mirrors the teacher's internal/v1/logging package (a package-level
// zap.Logger wrapped by a small set of helpers) but adds the schema
// validation and requestId/correlationId stamping the room actor's
// broadcast and storage layers depend on.
package instrumentation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Level mirrors the handful of severities the room actor's events use.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is the canonical shape every structured event is validated against.
// Every entry carries {ts, level, component, event, requestId,
// correlationId?, roomCode?, userId?} plus event-specific Fields, per spec
// section 4.8.
type Entry struct {
	Ts            time.Time      `validate:"required"`
	Level         Level          `validate:"required,oneof=debug info warn error"`
	Component     string         `validate:"required"`
	Event         string         `validate:"required"`
	RequestID     uint64         `validate:"required"`
	CorrelationID string         `validate:"omitempty"`
	RoomCode      string         `validate:"omitempty"`
	UserID        string         `validate:"omitempty"`
	Fields        map[string]any `validate:"-"`
}

// contextKey namespaces values this package reads out of context.Context,
// matching the pattern of internal/v1/logging's contextKey.
type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RoomCodeKey      contextKey = "room_code"
	UserIDKey        contextKey = "user_id"
)

// Emitter validates and writes structured events. It is the production
// implementation of the Sink interface expected by internal/v1/storage and
// internal/v1/alarm (those packages define their own minimal Sink interface
// to avoid importing this package directly — Emitter satisfies it
// structurally).
type Emitter struct {
	logger      *zap.Logger
	component   string
	validate    *validator.Validate
	development bool
	requestSeq  uint64
}

// NewEmitter builds an Emitter bound to one component name (e.g. "storage",
// "alarm", "room", "broadcast"). development controls whether schema
// validation failures panic (as the spec requires "development builds") or
// are merely logged and swallowed (production).
func NewEmitter(logger *zap.Logger, component string, development bool) *Emitter {
	return &Emitter{
		logger:      logger,
		component:   component,
		validate:    validator.New(),
		development: development,
	}
}

// NextRequestID returns a monotonically increasing, process-local request ID.
// The room actor stamps one of these on every inbound message so all
// downstream events and broadcasts it causes can be correlated.
func (e *Emitter) NextRequestID() uint64 {
	return atomic.AddUint64(&e.requestSeq, 1)
}

// Emit validates and writes a structured event. It satisfies the Sink
// interface used by internal/v1/storage and internal/v1/alarm:
//
//	type Sink interface { Emit(ctx context.Context, event string, fields map[string]any) }
func (e *Emitter) Emit(ctx context.Context, event string, fields map[string]any) {
	e.EmitLevel(ctx, LevelInfo, event, fields)
}

// EmitLevel is the full form, used directly by the room actor when it needs
// a level other than info (e.g. state.transition.rejected at warn,
// error.handler.failed at error).
func (e *Emitter) EmitLevel(ctx context.Context, level Level, event string, fields map[string]any) {
	entry := Entry{
		Ts:        time.Now(),
		Level:     level,
		Component: e.component,
		Event:     event,
		RequestID: e.NextRequestID(),
		Fields:    fields,
	}
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		entry.CorrelationID = cid
	}
	if code, ok := ctx.Value(RoomCodeKey).(string); ok {
		entry.RoomCode = code
	}
	if uid, ok := ctx.Value(UserIDKey).(string); ok {
		entry.UserID = uid
	}

	if err := e.validate.Struct(entry); err != nil {
		e.logger.Error("instrumentation event failed schema validation",
			zap.String("event", event), zap.Error(err))
		e.EmitLevel(ctx, LevelError, "error.instrumentation.failed", map[string]any{
			"originalEvent": event,
			"reason":        err.Error(),
		})
		if e.development {
			panic(fmt.Sprintf("instrumentation: event %q failed schema validation: %v", event, err))
		}
		return
	}

	zf := make([]zap.Field, 0, len(fields)+6)
	zf = append(zf,
		zap.Time("ts", entry.Ts),
		zap.String("component", entry.Component),
		zap.String("event", entry.Event),
		zap.Uint64("requestId", entry.RequestID),
	)
	if entry.CorrelationID != "" {
		zf = append(zf, zap.String("correlationId", entry.CorrelationID))
	}
	if entry.RoomCode != "" {
		zf = append(zf, zap.String("roomCode", entry.RoomCode))
	}
	if entry.UserID != "" {
		zf = append(zf, zap.String("userId", entry.UserID))
	}
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}

	switch level {
	case LevelDebug:
		e.logger.Debug(event, zf...)
	case LevelWarn:
		e.logger.Warn(event, zf...)
	case LevelError:
		e.logger.Error(event, zf...)
	default:
		e.logger.Info(event, zf...)
	}
}

// WithCorrelationID returns a derived context carrying the client-supplied
// correlation ID so every event emitted while handling one inbound message
// propagates it automatically (spec section 4.7).
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// WithRoomCode annotates ctx with the owning room's code.
func WithRoomCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, RoomCodeKey, code)
}

// WithUserID annotates ctx with the acting user's ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// CorrelationIDFromContext returns the correlation ID stashed by
// WithCorrelationID, or "" if ctx carries none. The broadcast layer uses
// this to stamp the in-flight command's correlationId onto every event it
// causes, per spec section 4.7.
func CorrelationIDFromContext(ctx context.Context) string {
	cid, _ := ctx.Value(CorrelationIDKey).(string)
	return cid
}
