package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/verlyn13/dicee-sub002/internal/v1/alarm"
	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
	"github.com/verlyn13/dicee-sub002/internal/v1/lobby"
	"github.com/verlyn13/dicee-sub002/internal/v1/storage"
)

// AIPolicy decides what command an AI-controlled seat takes when its turn
// timer expires. The policy itself -- which category to pick, whether to
// reroll -- is explicitly out of scope (spec sections 1 and 9); Room only
// calls the hook.
type AIPolicy interface {
	NextCommand(ctx context.Context, view GameStateView) (Command, bool)
}

// GameStateView is the read-only slice of game state an AIPolicy needs.
type GameStateView struct {
	Code       Code
	TurnIndex  int
	RollNumber int
	Dice       [5]int
	Kept       [5]bool
	Scorecard  Scorecard
}

// Command is a decoded instruction an AIPolicy may return -- either a
// DICE_ROLL or a CATEGORY_SCORE, reusing the same payload shapes clients
// send.
type Command struct {
	Type    string
	Roll    *DiceRollPayload
	Score   *CategoryScorePayload
}

// Room is the per-room session actor (spec section 2). Its entry points
// (connect, dispatch, handleDisconnect, handleLobbyMessage and the alarm
// callback) acquire r.mu for the duration of the call, giving the
// single-threaded-per-instance semantics the spec requires even though the
// Go runtime itself is free to run many rooms concurrently.
type Room struct {
	mu sync.Mutex

	code   Code
	status Status
	hostID UserID
	cfg    Config

	createdAt time.Time
	startedAt time.Time
	pausedAt  time.Time

	seats       map[UserID]*Seat
	connections map[UserID]*Client

	game *GameState

	chat    ChatState
	invites map[string]PendingInvite

	alarms   *alarm.Queue
	storage  storage.Facade
	emit     *instrumentation.Emitter
	notifier *lobby.Notifier
	aiPolicy AIPolicy

	onEmpty func(Code)
}

// NewRoom constructs a Room in the waiting state, owned by hostID. Callers
// must call Load before serving any connections so persisted state (if any,
// e.g. after a hibernation-wake) is recovered.
func NewRoom(code Code, hostID UserID, cfg Config, facade storage.Facade, emit *instrumentation.Emitter, notifier *lobby.Notifier, aiPolicy AIPolicy, onEmpty func(Code)) *Room {
	r := &Room{
		code:        code,
		status:      StatusWaiting,
		hostID:      hostID,
		cfg:         cfg,
		createdAt:   time.Now(),
		seats:       make(map[UserID]*Seat),
		connections: make(map[UserID]*Client),
		chat: ChatState{
			Typing:    make(map[UserID]bool),
			Reactions: make(map[string]map[string]int),
		},
		invites:  make(map[string]PendingInvite),
		storage:  facade,
		emit:     emit,
		notifier: notifier,
		aiPolicy: aiPolicy,
		onEmpty:  onEmpty,
	}
	r.alarms = alarm.New(context.Background(), facade, emit, alarm.RealClock, r.onAlarmFire)
	return r
}

// Load recovers any persisted room/game/seats/chat/invites/alarm state. It
// is the room-level analogue of the alarm queue's own Load and must run
// before the room accepts connections.
func (r *Room) Load(ctx context.Context) error {
	if err := r.alarms.Load(ctx); err != nil {
		return err
	}

	if rec, err := storage.GetVersioned[RoomRecord](ctx, r.storage, "room", recordVersion); err == nil {
		r.status = rec.Status
		r.hostID = rec.HostID
		r.cfg = rec.Config
		r.createdAt = rec.CreatedAt
		r.startedAt = rec.StartedAt
		r.pausedAt = rec.PausedAt
	} else if !storage.IsNotFound(err) {
		r.heal(ctx, "room", err)
	}

	if seats, err := storage.GetVersioned[[]Seat](ctx, r.storage, "seats", recordVersion); err == nil {
		for i := range seats {
			s := seats[i]
			r.seats[s.UserID] = &s
		}
	} else if !storage.IsNotFound(err) {
		r.heal(ctx, "seats", err)
	}

	if game, err := storage.GetVersioned[GameState](ctx, r.storage, "game", recordVersion); err == nil {
		g := game
		r.game = &g
	} else if !storage.IsNotFound(err) {
		r.heal(ctx, "game", err)
	}

	if chat, err := storage.GetVersioned[ChatState](ctx, r.storage, "chat", recordVersion); err == nil {
		r.chat = chat
		if r.chat.Typing == nil {
			r.chat.Typing = make(map[UserID]bool)
		}
		if r.chat.Reactions == nil {
			r.chat.Reactions = make(map[string]map[string]int)
		}
	} else if !storage.IsNotFound(err) {
		r.heal(ctx, "chat", err)
	}

	if invites, err := storage.GetVersioned[map[string]PendingInvite](ctx, r.storage, "invites", recordVersion); err == nil {
		r.invites = invites
	} else if !storage.IsNotFound(err) {
		r.heal(ctx, "invites", err)
	}

	return nil
}

// heal implements the STATE_CORRUPTION self-heal spec section 7 requires:
// reset the offending key to its zero value, emit the error, and keep going
// rather than crash the actor.
func (r *Room) heal(ctx context.Context, key string, cause error) {
	_ = r.storage.Delete(ctx, key)
	r.emit.EmitLevel(ctx, instrumentation.LevelError, "error.state.corruption", map[string]any{
		"key":   key,
		"error": cause.Error(),
	})
}

func (r *Room) persistRoom(ctx context.Context) error {
	return storage.PutVersioned(ctx, r.storage, "room", recordVersion, RoomRecord{
		Code:      r.code,
		Status:    r.status,
		HostID:    r.hostID,
		Config:    r.cfg,
		CreatedAt: r.createdAt,
		StartedAt: r.startedAt,
		PausedAt:  r.pausedAt,
	})
}

func (r *Room) persistSeats(ctx context.Context) error {
	out := make([]Seat, 0, len(r.seats))
	for _, s := range r.seats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnOrder < out[j].TurnOrder })
	return storage.PutVersioned(ctx, r.storage, "seats", recordVersion, out)
}

func (r *Room) persistGame(ctx context.Context) error {
	if r.game == nil {
		return r.storage.Delete(ctx, "game")
	}
	return storage.PutVersioned(ctx, r.storage, "game", recordVersion, *r.game)
}

func (r *Room) persistChat(ctx context.Context) error {
	return storage.PutVersioned(ctx, r.storage, "chat", recordVersion, r.chat)
}

func (r *Room) persistInvites(ctx context.Context) error {
	return storage.PutVersioned(ctx, r.storage, "invites", recordVersion, r.invites)
}

// orderedSeats returns seats sorted by turn order, for turn advancement and
// the CONNECTED snapshot.
func (r *Room) orderedSeats() []*Seat {
	out := make([]*Seat, 0, len(r.seats))
	for _, s := range r.seats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnOrder < out[j].TurnOrder })
	return out
}

// isEmpty reports whether the room has no seated players and no connected
// sockets of any role, the condition under which the owning Hub reclaims it.
func (r *Room) isEmpty() bool {
	return len(r.seats) == 0 && len(r.connections) == 0
}
