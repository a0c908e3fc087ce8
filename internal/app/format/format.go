// Package format holds the pluggable per-contest scoring strategies. A
// contest names its format; the registry resolves the name to a definition
// which validates the contest's opaque configuration and builds a bound
// Format instance.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"colosseum/internal/domain/model"
)

// ErrMalformedData marks per-participation format state that no longer
// matches the format's expectations, e.g. after the contest format was
// changed. Callers degrade the affected cell instead of failing the ranking.
var ErrMalformedData = errors.New("malformed format data")

// Cell is one rendered scoreboard cell.
type Cell struct {
	// Placeholder replaces a cell whose stored state could not be decoded.
	Placeholder bool `json:"placeholder,omitempty"`

	Class       string   `json:"class,omitempty"` // full-score, partial-score, failed-score
	Points      *float64 `json:"points,omitempty"`
	TimeSeconds *int64   `json:"time_seconds,omitempty"`
}

func PlaceholderCell() Cell {
	return Cell{Placeholder: true}
}

func scoredCell(class string, points float64, dt time.Duration) Cell {
	secs := int64(dt.Seconds())
	return Cell{Class: class, Points: &points, TimeSeconds: &secs}
}

// Format is a scoring strategy bound to one contest.
type Format interface {
	// UpdateParticipation recomputes score, cumulative time and the stored
	// per-problem state from the participation's submissions.
	UpdateParticipation(p *model.ContestParticipation, subs []model.ContestSubmission) error

	// DisplayUserProblem renders one scoreboard cell. Returns
	// ErrMalformedData when the stored state has the wrong shape.
	DisplayUserProblem(p *model.ContestParticipation, cp *model.ContestProblem) (Cell, error)

	// DisplayParticipationResult renders the aggregate result cell.
	DisplayParticipationResult(p *model.ContestParticipation) (Cell, error)

	// DefaultLabelStrategy names the label strategy used when the contest
	// does not override one.
	DefaultLabelStrategy() string
}

// Definition is a named, registered format.
type Definition interface {
	Name() string
	Validate(config json.RawMessage) error
	New(contest *model.Contest, config json.RawMessage) (Format, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Definition{}
)

func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[def.Name()]; dup {
		panic(fmt.Sprintf("format: duplicate registration of %q", def.Name()))
	}
	registry[def.Name()] = def
}

func Get(name string) (Definition, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("format: unknown contest format %q", name)
	}
	return def, nil
}

// ForContest resolves and instantiates the contest's format.
func ForContest(c *model.Contest) (Format, error) {
	def, err := Get(c.FormatName)
	if err != nil {
		return nil, err
	}
	return def.New(c, c.FormatConfig)
}

// Choices lists registered format names, sorted.
func Choices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// problemState is the stored per-problem scoring state shared by the bundled
// formats: keyed by contest problem id.
type problemState struct {
	Points float64 `json:"points"`
	Time   float64 `json:"time"` // seconds from effective start
}

func decodeFormatData(raw json.RawMessage) (map[string]problemState, error) {
	if len(raw) == 0 {
		return map[string]problemState{}, nil
	}
	var data map[string]problemState
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if data == nil {
		data = map[string]problemState{}
	}
	return data, nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func cellClass(points float64, cp *model.ContestProblem) string {
	switch {
	case points >= float64(cp.Points):
		return "full-score"
	case points > 0:
		return "partial-score"
	default:
		return "failed-score"
	}
}

// bestByProblem folds submissions down to the highest score and latest
// submission time per contest problem.
func bestByProblem(subs []model.ContestSubmission) map[string]struct {
	points float64
	last   time.Time
} {
	best := map[string]struct {
		points float64
		last   time.Time
	}{}
	for _, sub := range subs {
		entry := best[sub.ContestProblemID]
		if sub.Points+float64(sub.Bonus) > entry.points {
			entry.points = sub.Points + float64(sub.Bonus)
		}
		if sub.SubmittedAt.After(entry.last) {
			entry.last = sub.SubmittedAt
		}
		best[sub.ContestProblemID] = entry
	}
	return best
}
