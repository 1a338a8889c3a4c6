package room

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verlyn13/dicee-sub002/internal/v1/alarm"
	"github.com/verlyn13/dicee-sub002/internal/v1/dice"
)

const maxRollsPerTurn = 3

// startGame transitions a waiting room into play, per spec section 4.3.
// Only the host may call this, and the room needs at least two seated
// players (AI seats count).
func (r *Room) startGame(ctx context.Context, caller UserID) error {
	if caller != r.hostID {
		return newCommandError(ErrNotHost, "only the host may start the game")
	}
	if r.status != StatusWaiting {
		return newCommandError(ErrInvalidState, "room %s is not waiting (status=%s)", r.code, r.status)
	}
	if len(r.seats) < 2 {
		return newCommandError(ErrInvalidState, "need at least two seated players to start")
	}

	scorecards := make(map[UserID]Scorecard, len(r.seats))
	for uid := range r.seats {
		scorecards[uid] = make(Scorecard)
	}

	r.cancelAllInvites(ctx)

	r.status = StatusStarting
	r.startedAt = time.Now()
	r.game = &GameState{
		TurnIndex:     0,
		RollNumber:    0,
		Scorecards:    scorecards,
		TurnStartedAt: r.startedAt,
	}

	r.broadcast(ctx, EventGameStarting, nil, allInRoom())

	r.status = StatusPlaying
	if err := r.persistRoom(ctx); err != nil {
		return err
	}
	if err := r.persistGame(ctx); err != nil {
		return err
	}

	r.broadcast(ctx, EventGameStarted, gameSnapshot(r.game), allInRoom())
	r.startTurn(ctx)
	r.notifyRoomStatus(ctx)
	return nil
}

// startTurn arms the turn timer and announces whose turn it is.
func (r *Room) startTurn(ctx context.Context) {
	seat, err := r.seatAtTurn(r.game.TurnIndex)
	if err != nil {
		return
	}
	r.game.RollNumber = 0
	r.game.CurrentDice = [5]int{}
	r.game.KeptMask = [5]bool{}
	r.game.TurnStartedAt = time.Now()

	deadline := r.game.TurnStartedAt.Add(time.Duration(r.cfg.TurnTimeoutMs) * time.Millisecond)
	if _, err := r.alarms.Schedule(ctx, alarm.TurnTimeout, string(r.code), deadline, string(seat.UserID)); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.schedule_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}

	r.broadcast(ctx, EventTurnStarted, map[string]any{
		"playerId":  seat.UserID,
		"turnIndex": r.game.TurnIndex,
	}, allInRoom())
}

// diceRoll handles a DICE_ROLL command: the current player rolls the dice
// not marked kept, up to three times per turn.
func (r *Room) diceRoll(ctx context.Context, caller UserID, payload DiceRollPayload) error {
	if err := r.requireCurrentPlayer(caller); err != nil {
		return err
	}
	if r.game.RollNumber >= maxRollsPerTurn {
		return newCommandError(ErrRollLimit, "no rolls remaining this turn")
	}

	for i := 0; i < 5; i++ {
		if r.game.RollNumber == 0 || !payload.Kept[i] {
			r.game.CurrentDice[i] = rollDie()
		}
	}
	r.game.KeptMask = payload.Kept
	r.game.RollNumber++

	if err := r.persistGame(ctx); err != nil {
		return err
	}

	r.broadcast(ctx, EventDiceRolled, map[string]any{
		"dice":       r.game.CurrentDice,
		"rollNumber": r.game.RollNumber,
		"rollsLeft":  maxRollsPerTurn - r.game.RollNumber,
	}, allInRoom())
	return nil
}

// categoryScore handles a CATEGORY_SCORE command: the current player
// commits their roll to an unfilled scorecard category and the turn
// advances.
func (r *Room) categoryScore(ctx context.Context, caller UserID, payload CategoryScorePayload) error {
	if err := r.requireCurrentPlayer(caller); err != nil {
		return err
	}
	if r.game.RollNumber == 0 {
		return newCommandError(ErrInvalidState, "must roll before scoring")
	}
	card := r.game.Scorecards[caller]
	if _, filled := card[payload.Category]; filled {
		return newCommandError(ErrCategoryUnavailable, "category %s already scored", payload.Category)
	}

	value, err := dice.ScoreCategory(r.game.CurrentDice, payload.Category)
	if err != nil {
		return newCommandError(ErrInvalidPayload, "%s", err)
	}
	card[payload.Category] = value
	r.game.Scorecards[caller] = card

	if err := r.alarms.CancelWhere(ctx, alarm.TurnTimeout, string(r.code)); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.cancel_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}

	r.broadcast(ctx, EventCategoryScored, map[string]any{
		"playerId": caller,
		"category": payload.Category,
		"value":    value,
	}, allInRoom())

	if err := r.persistGame(ctx); err != nil {
		return err
	}

	if r.isGameOver() {
		return r.finishGame(ctx)
	}

	r.advanceTurn()
	r.startTurn(ctx)
	return r.persistGame(ctx)
}

// advanceTurn moves TurnIndex to the next seated player in turn order.
func (r *Room) advanceTurn() {
	n := len(r.seats)
	if n == 0 {
		return
	}
	r.game.TurnIndex = (r.game.TurnIndex + 1) % n
}

// isGameOver reports whether every seated player has filled all thirteen
// categories.
func (r *Room) isGameOver() bool {
	for _, card := range r.game.Scorecards {
		if len(card) < len(dice.Categories) {
			return false
		}
	}
	return true
}

func (r *Room) finishGame(ctx context.Context) error {
	r.status = StatusCompleted
	results := make(map[UserID]int, len(r.game.Scorecards))
	for uid, card := range r.game.Scorecards {
		total := 0
		for _, v := range card {
			total += v
		}
		total += dice.UpperSectionBonus(card)
		results[uid] = total
	}

	r.broadcast(ctx, EventGameOver, map[string]any{"results": results}, allInRoom())
	r.notifyRoomStatus(ctx)
	return r.persistRoom(ctx)
}

// rematch resets the scorecards and re-enters the starting sequence without
// disturbing seat membership, per spec section 4.3.
func (r *Room) rematch(ctx context.Context, caller UserID) error {
	if caller != r.hostID {
		return newCommandError(ErrNotHost, "only the host may start a rematch")
	}
	if r.status != StatusCompleted {
		return newCommandError(ErrInvalidState, "room %s is not in a completed state", r.code)
	}
	r.status = StatusWaiting
	r.game = nil
	r.broadcast(ctx, EventRematchStarted, nil, allInRoom())
	return r.startGame(ctx, caller)
}

// addAIPlayer seats an AI-controlled player, per spec section 4.11.
func (r *Room) addAIPlayer(ctx context.Context, caller UserID, payload AddAIPlayerPayload) error {
	if caller != r.hostID {
		return newCommandError(ErrNotHost, "only the host may add an AI player")
	}
	if r.status != StatusWaiting {
		return newCommandError(ErrInvalidState, "cannot add an AI player once the game has started")
	}
	if len(r.seats) >= r.cfg.MaxPlayers {
		return newCommandError(ErrRoomFull, "room %s has no remaining seats", r.code)
	}

	aiID := UserID("ai-" + uuid.NewString())
	seat := &Seat{
		UserID:      aiID,
		DisplayName: "AI " + payload.ProfileID,
		TurnOrder:   len(r.seats),
		IsConnected: true,
		IsAI:        true,
		AIProfileID: payload.ProfileID,
	}
	r.seats[aiID] = seat

	r.broadcast(ctx, EventAIPlayerJoined, map[string]any{"playerId": aiID, "profileId": payload.ProfileID}, allInRoom())
	return r.persistSeats(ctx)
}

// removeAIPlayer un-seats a previously added AI player.
func (r *Room) removeAIPlayer(ctx context.Context, caller UserID, payload RemoveAIPlayerPayload) error {
	if caller != r.hostID {
		return newCommandError(ErrNotHost, "only the host may remove an AI player")
	}
	seat, ok := r.seats[payload.PlayerID]
	if !ok || !seat.IsAI {
		return newCommandError(ErrInvalidPayload, "%s is not an AI-controlled seat", payload.PlayerID)
	}
	r.releaseSeat(ctx, payload.PlayerID, "kick")
	r.broadcast(ctx, EventAIPlayerRemoved, map[string]any{"playerId": payload.PlayerID}, allInRoom())
	return r.persistSeats(ctx)
}

func (r *Room) requireCurrentPlayer(caller UserID) error {
	if r.status != StatusPlaying || r.game == nil {
		return newCommandError(ErrInvalidState, "no game in progress")
	}
	seat, err := r.seatAtTurn(r.game.TurnIndex)
	if err != nil {
		return newCommandError(ErrInvalidState, "%s", err)
	}
	if seat.UserID != caller {
		return newCommandError(ErrNotYourTurn, "it is %s's turn", seat.UserID)
	}
	return nil
}

func gameSnapshot(g *GameState) map[string]any {
	return map[string]any{
		"turnIndex":  g.TurnIndex,
		"scorecards": g.Scorecards,
	}
}

// rollDie is the one place math/rand is used; kept tiny and swappable.
var rollDie = func() int {
	return stdRollDie()
}
