// Package room implements the per-room session actor: connection manager,
// seat registry, game state machine, pause/abandon controller, broadcast
// bus, and the invite/chat subsystem. One Room instance owns everything for
// a single room code; handlers run to completion under the room's mutex
// the same way the teacher's session.Room serializes access to its maps.
package room

import (
	"encoding/json"
	"time"

	"github.com/verlyn13/dicee-sub002/internal/v1/dice"
)

// Code identifies a room by its short joinable code.
type Code string

// UserID identifies a user across reconnects.
type UserID string

// Role is the capacity a connected socket holds within a room.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
	RolePending   Role = "pending"
)

// Status is the room's lifecycle phase, per spec section 4.3.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusStarting  Status = "starting"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Config holds the room's per-instance settings, read once at creation from
// the process config (spec section 6.5) plus anything the host supplied at
// creation time.
type Config struct {
	MaxPlayers        int
	SpectatorsAllowed bool
	TurnTimeoutMs     int
	Public            bool
	ReclaimWindow     time.Duration
	PauseTimeout      time.Duration
	PauseDebounce     time.Duration
	InviteTTL         time.Duration
	MaxChatMessages   int
	MaxMessageLen     int
}

// recordVersion is the schema version stamped on every persisted top-level
// value (spec section 6.3). A version bump here must be paired with a
// migration or an explicit fail-closed decision in load().
const recordVersion = 1

// RoomRecord is the `room` storage key's value shape.
type RoomRecord struct {
	Code      Code      `json:"code"`
	Status    Status    `json:"status"`
	HostID    UserID    `json:"hostId"`
	Config    Config    `json:"config"`
	CreatedAt time.Time `json:"createdAt"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	PausedAt  time.Time `json:"pausedAt,omitempty"`
}

// Seat is one player slot, per spec section 3.
type Seat struct {
	UserID            UserID     `json:"userId"`
	DisplayName       string     `json:"displayName"`
	TurnOrder         int        `json:"turnOrder"`
	IsConnected       bool       `json:"isConnected"`
	ReconnectDeadline *time.Time `json:"reconnectDeadline,omitempty"`
	IsAI              bool       `json:"isAI"`
	AIProfileID       string     `json:"aiProfileId,omitempty"`
}

// Scorecard maps each category to its scored value. A category present in
// the map has been scored (even if the score is 0); absence means unscored.
type Scorecard map[dice.Category]int

// GameState is present only while room.Status is playing, paused, or
// completed (spec section 3).
type GameState struct {
	TurnIndex     int                  `json:"turnIndex"`
	RollNumber    int                  `json:"rollNumber"`
	CurrentDice   [5]int               `json:"currentDice"`
	KeptMask      [5]bool              `json:"keptMask"`
	Scorecards    map[UserID]Scorecard `json:"scorecards"`
	TurnStartedAt time.Time            `json:"turnStartedAt"`
}

// InviteStatus is the lifecycle state of a PendingInvite.
type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteAccepted  InviteStatus = "accepted"
	InviteDeclined  InviteStatus = "declined"
	InviteCancelled InviteStatus = "cancelled"
	InviteExpired   InviteStatus = "expired"
)

// PendingInvite is one outstanding invite, per spec section 4.10.
type PendingInvite struct {
	InviteID   string       `json:"inviteId"`
	FromUserID UserID       `json:"fromUserId"`
	ToUserID   UserID       `json:"toUserId"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	Status     InviteStatus `json:"status"`
}

// ChatMessage is one entry in the room's bounded chat log.
type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      UserID    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatState holds the room's chat log, typing flags, and reaction counts.
// It is not persisted across abandonment (spec section 4.10); it is kept in
// the storage facade only so a hibernation-wake within the same session can
// rebuild it.
type ChatState struct {
	Messages  []ChatMessage               `json:"messages"`
	Typing    map[UserID]bool             `json:"-"`
	Reactions map[string]map[string]int   `json:"reactions"`
}

// InboundMessage is the wire shape of every client-to-server message (spec
// section 6.1): `{type, payload?, correlationId?}`.
type InboundMessage struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// OutboundMessage is the wire shape of every server-to-client event (spec
// section 6.2): `{type: UPPER_SNAKE, payload, correlationId?}`.
type OutboundMessage struct {
	Type          string `json:"type"`
	Payload       any    `json:"payload,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Command payload shapes, spec section 6.1.
type DiceRollPayload struct {
	Kept [5]bool `json:"kept"`
}

type CategoryScorePayload struct {
	Category dice.Category `json:"category"`
}

type AddAIPlayerPayload struct {
	ProfileID string `json:"profileId"`
}

type RemoveAIPlayerPayload struct {
	PlayerID UserID `json:"playerId"`
}

type InviteTargetPayload struct {
	TargetUserID UserID `json:"targetUserId"`
}

type CancelInvitePayload struct {
	InviteID string `json:"inviteId"`
}

type ChatPayload struct {
	Content string `json:"content"`
}

type QuickChatPayload struct {
	Key string `json:"key"`
}

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

type ReactionPayload struct {
	MessageID string         `json:"messageId"`
	Emoji     string         `json:"emoji"`
	Action    ReactionAction `json:"action"`
}

// Outbound event type constants, spec section 6.2.
const (
	EventConnected          = "CONNECTED"
	EventPlayerJoined       = "PLAYER_JOINED"
	EventPlayerLeft         = "PLAYER_LEFT"
	EventPlayerDisconnected = "PLAYER_DISCONNECTED"
	EventAIPlayerJoined     = "AI_PLAYER_JOINED"
	EventAIPlayerRemoved    = "AI_PLAYER_REMOVED"
	EventGameStarting       = "GAME_STARTING"
	EventGameStarted        = "GAME_STARTED"
	EventTurnStarted        = "TURN_STARTED"
	EventDiceRolled         = "DICE_ROLLED"
	EventCategoryScored     = "CATEGORY_SCORED"
	EventGamePaused         = "GAME_PAUSED"
	EventGameResumed        = "GAME_RESUMED"
	EventGameOver           = "GAME_OVER"
	EventRematchStarted     = "REMATCH_STARTED"
	EventInviteSent         = "INVITE_SENT"
	EventInviteAccepted     = "INVITE_ACCEPTED"
	EventInviteDeclined     = "INVITE_DECLINED"
	EventInviteCancelled    = "INVITE_CANCELLED"
	EventInviteExpired      = "INVITE_EXPIRED"
	EventChatMessage        = "CHAT_MESSAGE"
	EventReactionUpdate     = "REACTION_UPDATE"
	EventTypingUpdate       = "TYPING_UPDATE"
	EventError              = "ERROR"
	EventPong               = "PONG"
)

// Inbound command type constants, spec section 6.1.
const (
	CmdStartGame       = "START_GAME"
	CmdDiceRoll        = "DICE_ROLL"
	CmdCategoryScore   = "CATEGORY_SCORE"
	CmdRematch         = "REMATCH"
	CmdAddAIPlayer     = "ADD_AI_PLAYER"
	CmdRemoveAIPlayer  = "REMOVE_AI_PLAYER"
	CmdSendInvite      = "SEND_INVITE"
	CmdCancelInvite    = "CANCEL_INVITE"
	CmdChat            = "CHAT"
	CmdQuickChat       = "QUICK_CHAT"
	CmdReaction        = "REACTION"
	CmdTypingStart     = "TYPING_START"
	CmdTypingStop      = "TYPING_STOP"
	CmdPing            = "PING"
)
