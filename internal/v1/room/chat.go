package room

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const typingDebounce = 5 * time.Second

var quickChatPresets = map[string]string{
	"gg":       "Good game!",
	"nice":     "Nice roll!",
	"oof":      "Ouch, rough one.",
	"hurry":    "Take your time... or don't.",
	"goodluck": "Good luck!",
}

// addChat appends a free-form message to the bounded chat log, trimming the
// oldest entry once MaxChatMessages is exceeded, per spec section 4.10.
func (r *Room) addChat(ctx context.Context, caller UserID, displayName string, payload ChatPayload) error {
	if len(payload.Content) == 0 {
		return newCommandError(ErrInvalidPayload, "chat message must not be empty")
	}
	if len(payload.Content) > r.cfg.MaxMessageLen {
		return newCommandError(ErrInvalidPayload, "chat message exceeds %d characters", r.cfg.MaxMessageLen)
	}
	return r.appendChatMessage(ctx, caller, displayName, payload.Content)
}

// addQuickChat appends one of a fixed set of preset messages.
func (r *Room) addQuickChat(ctx context.Context, caller UserID, displayName string, payload QuickChatPayload) error {
	content, ok := quickChatPresets[payload.Key]
	if !ok {
		return newCommandError(ErrInvalidPayload, "unknown quick chat key %q", payload.Key)
	}
	return r.appendChatMessage(ctx, caller, displayName, content)
}

func (r *Room) appendChatMessage(ctx context.Context, caller UserID, displayName, content string) error {
	msg := ChatMessage{
		ID:          uuid.NewString(),
		UserID:      caller,
		DisplayName: displayName,
		Content:     content,
		Timestamp:   time.Now(),
	}
	r.chat.Messages = append(r.chat.Messages, msg)
	if len(r.chat.Messages) > r.cfg.MaxChatMessages {
		r.chat.Messages = r.chat.Messages[len(r.chat.Messages)-r.cfg.MaxChatMessages:]
	}

	r.broadcast(ctx, EventChatMessage, msg, allInRoom())
	if err := r.persistChat(ctx); err != nil {
		r.emit.EmitLevel(ctx, "warn", "warn.storage.chat_persist_failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// setTyping sets or clears the typing flag for caller and broadcasts the
// update. A started indicator auto-clears after typingDebounce unless
// TYPING_STOP or a disconnect arrives first.
func (r *Room) setTyping(ctx context.Context, caller UserID, typing bool) {
	if r.chat.Typing == nil {
		r.chat.Typing = make(map[UserID]bool)
	}
	if typing {
		r.chat.Typing[caller] = true
		code, room := r.code, r
		time.AfterFunc(typingDebounce, func() {
			room.mu.Lock()
			defer room.mu.Unlock()
			if room.code != code {
				return
			}
			if room.chat.Typing[caller] {
				delete(room.chat.Typing, caller)
				room.broadcast(context.Background(), EventTypingUpdate, map[string]any{"userId": caller, "typing": false}, allInRoom())
			}
		})
	} else {
		delete(r.chat.Typing, caller)
	}
	r.broadcast(ctx, EventTypingUpdate, map[string]any{"userId": caller, "typing": typing}, allInRoom())
}

// setReaction mutates a message's per-emoji reaction counter.
func (r *Room) setReaction(ctx context.Context, payload ReactionPayload) error {
	found := false
	for _, m := range r.chat.Messages {
		if m.ID == payload.MessageID {
			found = true
			break
		}
	}
	if !found {
		return newCommandError(ErrInvalidPayload, "message %s not found", payload.MessageID)
	}

	if r.chat.Reactions == nil {
		r.chat.Reactions = make(map[string]map[string]int)
	}
	counts, ok := r.chat.Reactions[payload.MessageID]
	if !ok {
		counts = make(map[string]int)
		r.chat.Reactions[payload.MessageID] = counts
	}

	switch payload.Action {
	case ReactionAdd:
		counts[payload.Emoji]++
	case ReactionRemove:
		if counts[payload.Emoji] > 0 {
			counts[payload.Emoji]--
		}
	}

	r.broadcast(ctx, EventReactionUpdate, map[string]any{
		"messageId": payload.MessageID,
		"reactions": counts,
	}, allInRoom())
	return r.persistChat(ctx)
}

// clearTyping drops caller's typing flag without broadcasting, used on
// disconnect so a stale indicator doesn't outlive the socket.
func (r *Room) clearTyping(caller UserID) {
	delete(r.chat.Typing, caller)
}
