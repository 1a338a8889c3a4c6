package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verlyn13/dicee-sub002/internal/v1/dice"
)

func TestStartGame_RequiresHostAndTwoPlayers(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")

	err := rm.startGame(ctx, "host-1")
	require.Error(t, err)
	assert.Equal(t, ErrInvalidState, err.(*CommandError).Kind)

	seatPlayer(t, rm, "u2", "Bob")
	err = rm.startGame(ctx, "u2")
	require.Error(t, err)
	assert.Equal(t, ErrNotHost, err.(*CommandError).Kind)

	err = rm.startGame(ctx, "host-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, rm.status)
	require.NotNil(t, rm.game)
}

func TestDiceRoll_EnforcesTurnAndRollLimit(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")
	seatPlayer(t, rm, "u2", "Bob")
	require.NoError(t, rm.startGame(ctx, "host-1"))

	err := rm.diceRoll(ctx, "u2", DiceRollPayload{})
	require.Error(t, err)
	assert.Equal(t, ErrNotYourTurn, err.(*CommandError).Kind)

	for i := 0; i < maxRollsPerTurn; i++ {
		require.NoError(t, rm.diceRoll(ctx, "host-1", DiceRollPayload{}))
	}
	err = rm.diceRoll(ctx, "host-1", DiceRollPayload{})
	require.Error(t, err)
	assert.Equal(t, ErrRollLimit, err.(*CommandError).Kind)
}

func TestCategoryScore_RejectsDoubleScoringAndAdvancesTurn(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")
	seatPlayer(t, rm, "u2", "Bob")
	require.NoError(t, rm.startGame(ctx, "host-1"))
	require.NoError(t, rm.diceRoll(ctx, "host-1", DiceRollPayload{}))

	require.NoError(t, rm.categoryScore(ctx, "host-1", CategoryScorePayload{Category: dice.Chance}))
	assert.Equal(t, 1, rm.game.TurnIndex)

	err := rm.diceRoll(ctx, "host-1", DiceRollPayload{})
	require.Error(t, err)
	assert.Equal(t, ErrNotYourTurn, err.(*CommandError).Kind)

	require.NoError(t, rm.diceRoll(ctx, "u2", DiceRollPayload{}))
	err = rm.categoryScore(ctx, "u2", CategoryScorePayload{Category: dice.Chance})
	require.NoError(t, err)

	require.NoError(t, rm.diceRoll(ctx, "host-1", DiceRollPayload{}))
	err = rm.categoryScore(ctx, "host-1", CategoryScorePayload{Category: dice.Chance})
	require.Error(t, err)
	assert.Equal(t, ErrCategoryUnavailable, err.(*CommandError).Kind)
}

func TestAddAndRemoveAIPlayer(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")

	require.NoError(t, rm.addAIPlayer(ctx, "host-1", AddAIPlayerPayload{ProfileID: "easy"}))
	require.Len(t, rm.seats, 2)

	var aiID UserID
	for uid, s := range rm.seats {
		if s.IsAI {
			aiID = uid
		}
	}
	require.NotEmpty(t, aiID)

	require.NoError(t, rm.removeAIPlayer(ctx, "host-1", RemoveAIPlayerPayload{PlayerID: aiID}))
	require.Len(t, rm.seats, 1)
}
