package format

import (
	"encoding/json"
	"math"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"
)

func init() {
	Register(ioiDefinition{})
}

// ioiDefinition is the IOI-style format: pure point totals, with cumulative
// time only counted when the configuration asks for it as a tie-breaker.
type ioiDefinition struct{}

type ioiConfig struct {
	CumTime bool `json:"cumtime"`
}

func (ioiDefinition) Name() string { return "ioi" }

func (ioiDefinition) Validate(config json.RawMessage) error {
	if len(config) == 0 {
		return nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(config, &probe); err != nil {
		return common.Errorf("ioi format config must be a JSON object: %w", common.ErrValidation)
	}
	for key, value := range probe {
		if key != "cumtime" {
			return common.Errorf("ioi format config has unknown key %q: %w", key, common.ErrValidation)
		}
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return common.Errorf("ioi format config key \"cumtime\" must be a boolean: %w", common.ErrValidation)
		}
	}
	return nil
}

func (d ioiDefinition) New(contest *model.Contest, config json.RawMessage) (Format, error) {
	if err := d.Validate(config); err != nil {
		return nil, err
	}
	var cfg ioiConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, common.Errorf("ioi format config: %w", common.ErrValidation)
		}
	}
	return &ioiFormat{contest: contest, config: cfg}, nil
}

type ioiFormat struct {
	contest *model.Contest
	config  ioiConfig
}

func (f *ioiFormat) UpdateParticipation(p *model.ContestParticipation, subs []model.ContestSubmission) error {
	start := p.Start(f.contest)
	data := map[string]problemState{}
	var cumtime float64
	var score float64

	for cpID, best := range bestByProblem(subs) {
		dt := best.last.Sub(start).Seconds()
		if f.config.CumTime && best.points > 0 {
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

func (f *ioiFormat) DisplayUserProblem(p *model.ContestParticipation, cp *model.ContestProblem) (Cell, error) {
	data, err := decodeFormatData(p.FormatData)
	if err != nil {
		return Cell{}, err
	}
	state, ok := data[cp.ID]
	if !ok {
		return Cell{}, nil
	}
	cell := scoredCell(cellClass(state.Points, cp), state.Points, secondsDuration(state.Time))
	if !f.config.CumTime {
		cell.TimeSeconds = nil
	}
	return cell, nil
}

func (f *ioiFormat) DisplayParticipationResult(p *model.ContestParticipation) (Cell, error) {
	points := float64(p.Score)
	cell := Cell{Points: &points}
	if f.config.CumTime {
		secs := p.CumTime
		cell.TimeSeconds = &secs
	}
	return cell, nil
}

func (f *ioiFormat) DefaultLabelStrategy() string { return LabelLetters }
