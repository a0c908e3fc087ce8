package format

import (
	"encoding/json"
	"math"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"
)

func init() {
	Register(defaultDefinition{})
}

// defaultDefinition scores a participation as the sum of its best points per
// problem; cumulative time is the sum, over solved problems, of the seconds
// from the attempt's effective start to the last submission on that problem.
type defaultDefinition struct{}

func (defaultDefinition) Name() string { return "default" }

func (defaultDefinition) Validate(config json.RawMessage) error {
	// The default format takes no configuration.
	if len(config) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(config, &v); err != nil {
		return common.Errorf("default format config is not valid JSON: %w", common.ErrValidation)
	}
	if v != nil {
		return common.Errorf("default format takes no configuration: %w", common.ErrValidation)
	}
	return nil
}

func (d defaultDefinition) New(contest *model.Contest, config json.RawMessage) (Format, error) {
	if err := d.Validate(config); err != nil {
		return nil, err
	}
	return &defaultFormat{contest: contest}, nil
}

type defaultFormat struct {
	contest *model.Contest
}

func (f *defaultFormat) UpdateParticipation(p *model.ContestParticipation, subs []model.ContestSubmission) error {
	start := p.Start(f.contest)
	data := map[string]problemState{}
	var cumtime float64
	var score float64

	for cpID, best := range bestByProblem(subs) {
		dt := best.last.Sub(start).Seconds()
		if best.points > 0 {
			cumtime += dt
		}
		data[cpID] = problemState{Points: best.points, Time: dt}
		score += best.points
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.FormatData = raw
	p.Score = int(math.Round(score))
	p.CumTime = int64(cumtime)
	return nil
}

func (f *defaultFormat) DisplayUserProblem(p *model.ContestParticipation, cp *model.ContestProblem) (Cell, error) {
	data, err := decodeFormatData(p.FormatData)
	if err != nil {
		return Cell{}, err
	}
	state, ok := data[cp.ID]
	if !ok {
		return Cell{}, nil
	}
	return scoredCell(cellClass(state.Points, cp), state.Points, secondsDuration(state.Time)), nil
}

func (f *defaultFormat) DisplayParticipationResult(p *model.ContestParticipation) (Cell, error) {
	points := float64(p.Score)
	secs := p.CumTime
	return Cell{Points: &points, TimeSeconds: &secs}, nil
}

func (f *defaultFormat) DefaultLabelStrategy() string { return LabelNumbers }
