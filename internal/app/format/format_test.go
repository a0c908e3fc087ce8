package format

import (
	"encoding/json"
	"testing"
	"time"

	"colosseum/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contestStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func formatTestContest(name string, config string) *model.Contest {
	c := &model.Contest{
		ID:         "c1",
		Key:        "round1",
		StartTime:  contestStart,
		EndTime:    contestStart.Add(2 * time.Hour),
		FormatName: name,
	}
	if config != "" {
		c.FormatConfig = json.RawMessage(config)
	}
	return c
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"default", "ioi"}, Choices())

	_, err := Get("acm")
	assert.Error(t, err)

	def, err := Get("default")
	require.NoError(t, err)
	assert.Equal(t, "default", def.Name())
}

func TestDefaultFormat_UpdateParticipation(t *testing.T) {
	c := formatTestContest("default", "")
	f, err := ForContest(c)
	require.NoError(t, err)

	p := &model.ContestParticipation{ID: "p1", ContestID: c.ID, RealStart: contestStart}
	subs := []model.ContestSubmission{
		{ContestProblemID: "cpA", Points: 30, SubmittedAt: contestStart.Add(10 * time.Minute)},
		{ContestProblemID: "cpA", Points: 100, SubmittedAt: contestStart.Add(20 * time.Minute)},
		{ContestProblemID: "cpB", Points: 0, SubmittedAt: contestStart.Add(40 * time.Minute)},
	}

	require.NoError(t, f.UpdateParticipation(p, subs))

	assert.Equal(t, 100, p.Score, "best points per problem are summed")
	assert.Equal(t, int64(20*60), p.CumTime, "unsolved problems add no time")

	cell, err := f.DisplayUserProblem(p, &model.ContestProblem{ID: "cpA", Points: 100})
	require.NoError(t, err)
	assert.Equal(t, "full-score", cell.Class)
	require.NotNil(t, cell.Points)
	assert.Equal(t, 100.0, *cell.Points)

	cell, err = f.DisplayUserProblem(p, &model.ContestProblem{ID: "cpB", Points: 100})
	require.NoError(t, err)
	assert.Equal(t, "failed-score", cell.Class)

	// No attempt on this problem: empty cell, no error.
	cell, err = f.DisplayUserProblem(p, &model.ContestProblem{ID: "cpC", Points: 100})
	require.NoError(t, err)
	assert.Zero(t, cell)
}

func TestDefaultFormat_MalformedData(t *testing.T) {
	c := formatTestContest("default", "")
	f, err := ForContest(c)
	require.NoError(t, err)

	p := &model.ContestParticipation{
		ID:         "p1",
		ContestID:  c.ID,
		FormatData: json.RawMessage(`{"cpA": {"points": "not a number"}}`),
	}
	_, err = f.DisplayUserProblem(p, &model.ContestProblem{ID: "cpA", Points: 100})
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestDefaultFormat_ValidateConfig(t *testing.T) {
	def, err := Get("default")
	require.NoError(t, err)

	assert.NoError(t, def.Validate(nil))
	assert.NoError(t, def.Validate(json.RawMessage(`null`)))
	assert.Error(t, def.Validate(json.RawMessage(`{"anything": true}`)))
	assert.Error(t, def.Validate(json.RawMessage(`{invalid`)))
}

func TestIOIFormat_CumTimeConfig(t *testing.T) {
	p := &model.ContestParticipation{ID: "p1", ContestID: "c1", RealStart: contestStart}
	subs := []model.ContestSubmission{
		{ContestProblemID: "cpA", Points: 100, SubmittedAt: contestStart.Add(30 * time.Minute)},
	}

	c := formatTestContest("ioi", `{"cumtime": false}`)
	f, err := ForContest(c)
	require.NoError(t, err)
	require.NoError(t, f.UpdateParticipation(p, subs))
	assert.Equal(t, 100, p.Score)
	assert.Zero(t, p.CumTime, "cumtime disabled by config")

	c = formatTestContest("ioi", `{"cumtime": true}`)
	f, err = ForContest(c)
	require.NoError(t, err)
	require.NoError(t, f.UpdateParticipation(p, subs))
	assert.Equal(t, int64(30*60), p.CumTime)
}

func TestIOIFormat_ValidateConfig(t *testing.T) {
	def, err := Get("ioi")
	require.NoError(t, err)

	assert.NoError(t, def.Validate(nil))
	assert.NoError(t, def.Validate(json.RawMessage(`{"cumtime": true}`)))
	assert.Error(t, def.Validate(json.RawMessage(`{"cumtime": "yes"}`)))
	assert.Error(t, def.Validate(json.RawMessage(`{"bogus": 1}`)))
	assert.Error(t, def.Validate(json.RawMessage(`[1, 2]`)))
}

func TestLabelStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		index    int
		want     string
	}{
		{LabelNumbers, 0, "1"},
		{LabelNumbers, 9, "10"},
		{LabelLetters, 0, "A"},
		{LabelLetters, 25, "Z"},
		{LabelLetters, 26, "AA"},
		{LabelLetters, 27, "AB"},
		{"template:P%d", 0, "P1"},
		{"template:Task %d", 2, "Task 3"},
	}
	for _, tt := range tests {
		label, err := LabelFor(tt.strategy, tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.want, label)
	}

	_, err := LabelFor("lua", 0)
	assert.Error(t, err)

	assert.NoError(t, ValidateLabelStrategy(LabelLetters))
	assert.Error(t, ValidateLabelStrategy("template:no verb"))
	assert.Error(t, ValidateLabelStrategy("unknown"))
}
