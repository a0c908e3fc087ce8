package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addScoredParticipation(t *testing.T, env *testEnv, contest *model.Contest, userID string, score int, cumtime int64) *model.ContestParticipation {
	t.Helper()
	env.addUser(userID)
	p := &model.ContestParticipation{
		ID:        "p-" + userID,
		ContestID: contest.ID,
		UserID:    userID,
		RealStart: contest.StartTime,
		Score:     score,
		CumTime:   cumtime,
		Virtual:   model.ParticipationLive,
	}
	require.NoError(t, env.participations.Create(context.Background(), nil, p))
	return p
}

func TestRankingOrderAndTies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	contest := env.runningContest("round1")
	require.NoError(t, env.contests.AddProblems(ctx, nil, contest.ID, []model.ContestProblem{
		{ID: "cp1", ContestID: contest.ID, Points: 100, Order: 0},
	}))

	addScoredParticipation(t, env, contest, "slow", 100, 50)
	addScoredParticipation(t, env, contest, "fast", 100, 30)
	addScoredParticipation(t, env, contest, "third", 50, 10)
	addScoredParticipation(t, env, contest, "tied", 50, 10)

	rows, err := env.rankingSvc.Ranking(ctx, "round1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// Lower cumulative time wins the score tie, and the two rows get
	// distinct ranks.
	assert.Equal(t, "fast", rows[0].Username)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "slow", rows[1].Username)
	assert.Equal(t, 2, rows[1].Rank)

	// Identical (score, cumtime) tuples share a rank.
	assert.Equal(t, 3, rows[2].Rank)
	assert.Equal(t, 3, rows[3].Rank)
}

func TestRankingDisqualifiedSinksToBottom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	contest := env.runningContest("round1")

	addScoredParticipation(t, env, contest, "honest", 10, 500)
	cheater := addScoredParticipation(t, env, contest, "cheater", model.DisqualifiedScore, 30)
	cheater.IsDisqualified = true

	rows, err := env.rankingSvc.Ranking(ctx, "round1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "honest", rows[0].Username)
	assert.Equal(t, "cheater", rows[1].Username)
	assert.True(t, rows[1].IsDisqualified)
}

func TestRankingExcludesUnlistedAndVirtual(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	contest := env.runningContest("round1")

	addScoredParticipation(t, env, contest, "listed", 50, 10)
	ghost := env.addUser("ghost")
	ghost.IsUnlisted = true
	require.NoError(t, env.participations.Create(ctx, nil, &model.ContestParticipation{
		ID: "p-ghost", ContestID: contest.ID, UserID: "ghost",
		RealStart: contest.StartTime, Score: 100, Virtual: model.ParticipationLive,
	}))
	env.addUser("virtual")
	require.NoError(t, env.participations.Create(ctx, nil, &model.ContestParticipation{
		ID: "p-virtual", ContestID: contest.ID, UserID: "virtual",
		RealStart: contest.StartTime, Score: 100, Virtual: 1,
	}))

	rows, err := env.rankingSvc.Ranking(ctx, "round1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "listed", rows[0].Username)
}

func TestRankingMalformedFormatDataDegrades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	contest := env.runningContest("round1")
	require.NoError(t, env.contests.AddProblems(ctx, nil, contest.ID, []model.ContestProblem{
		{ID: "cp1", ContestID: contest.ID, Points: 100, Order: 0},
	}))

	p := addScoredParticipation(t, env, contest, "stale", 80, 100)
	// State left behind by a format change; the row must still render.
	p.FormatData = json.RawMessage(`"not an object"`)

	rows, err := env.rankingSvc.Ranking(ctx, "round1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Cells, 1)
	assert.True(t, rows[0].Cells[0].Placeholder)
	assert.Equal(t, 80, rows[0].Score, "aggregate score is untouched")
}

func TestRankingHiddenScoreboard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	contest := env.runningContest("round1")
	contest.HideScoreboard = true

	addScoredParticipation(t, env, contest, "alice", 100, 30)
	addScoredParticipation(t, env, contest, "bob", 90, 40)
	alice, err := env.users.FindByID(ctx, "alice")
	require.NoError(t, err)
	aliceRow, err := env.participations.FindByID(ctx, "p-alice")
	require.NoError(t, err)

	// A participant sees the board restricted to their own row.
	rows, err := env.rankingSvc.Ranking(ctx, "round1", alice, aliceRow)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Username)

	// An outsider sees nothing until the contest ends.
	outsider := env.addUser("outsider")
	_, err = env.rankingSvc.Ranking(ctx, "round1", outsider, nil)
	assert.ErrorIs(t, err, common.ErrForbidden)

	// Once the contest is over the full board reappears.
	contest.EndTime = testNow.Add(-time.Minute)
	rows, err = env.rankingSvc.Ranking(ctx, "round1", outsider, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRankingPrependsSpectatorRow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	contest := env.runningContest("round1")

	addScoredParticipation(t, env, contest, "alice", 100, 30)

	bob := env.addUser("bob")
	bob.CanEditOwnContests = true
	contest.OrganizerIDs = []string{"bob"}
	spectate := &model.ContestParticipation{
		ID: "p-bob", ContestID: contest.ID, UserID: "bob",
		RealStart: testNow.Add(-10 * time.Minute), Virtual: model.ParticipationSpectate,
	}
	require.NoError(t, env.participations.Create(ctx, nil, spectate))

	rows, err := env.rankingSvc.Ranking(ctx, "round1", bob, spectate)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "bob", rows[0].Username)
	assert.Equal(t, "-", rows[0].RankMarker)
	assert.Equal(t, model.ParticipationSpectate, rows[0].Virtual)

	assert.Equal(t, "alice", rows[1].Username)
	assert.Equal(t, 1, rows[1].Rank)
	assert.Empty(t, rows[1].RankMarker)
}
