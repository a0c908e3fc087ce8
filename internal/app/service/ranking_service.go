package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"colosseum/internal/app/format"
	"colosseum/internal/common"
	"colosseum/internal/domain/model"
	"colosseum/internal/domain/repository"
)

// RankedRow is one scoreboard line: a rank plus the participant's summary
// and per-problem cells.
type RankedRow struct {
	Rank int `json:"rank"`
	// RankMarker is "-" for unranked rows (a viewer's own in-progress
	// spectate or virtual attempt prepended to the board).
	RankMarker string `json:"rank_marker,omitempty"`

	ParticipationID string `json:"participation_id"`
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	DisplayRank     string `json:"display_rank,omitempty"`
	IsDisqualified  bool   `json:"is_disqualified,omitempty"`
	Virtual         int    `json:"virtual"`

	Organizations []model.Organization `json:"organizations,omitempty"`

	Score   int   `json:"score"`
	CumTime int64 `json:"cumtime"`

	Cells  []format.Cell `json:"cells"`
	Result format.Cell   `json:"result"`
}

// RankingService assembles rank-ordered scoreboards.
type RankingService struct {
	contests       repository.ContestRepository
	participations repository.ParticipationRepository
	users          repository.UserRepository

	now func() time.Time
}

func NewRankingService(
	contests repository.ContestRepository,
	participations repository.ParticipationRepository,
	users repository.UserRepository,
) *RankingService {
	return &RankingService{
		contests:       contests,
		participations: participations,
		users:          users,
		now:            time.Now,
	}
}

// Ranking produces the scoreboard for a contest as seen by viewer. current
// is the viewer's active participation, if any. Viewers without full-board
// rights see only their own row; a viewer's in-progress spectate or virtual
// attempt is prepended unranked.
func (s *RankingService) Ranking(ctx context.Context, contestKey string, viewer *model.User, current *model.ContestParticipation) ([]RankedRow, error) {
	contest, err := s.contests.FindByKey(ctx, contestKey)
	if err != nil {
		return nil, err
	}
	if err := contest.AccessCheck(viewer); err != nil {
		return nil, common.Errorf("contest %s: %w", contestKey, err)
	}

	now := s.now()
	if !contest.CanSeeScoreboard(viewer, current, now) {
		return nil, common.Errorf("scoreboard for %s is not available: %w", contestKey, common.ErrForbidden)
	}

	problems, err := s.contests.GetProblems(ctx, contest.ID)
	if err != nil {
		return nil, err
	}
	f, err := format.ForContest(contest)
	if err != nil {
		return nil, err
	}

	participations, err := s.participations.ListLive(ctx, contest.ID)
	if err != nil {
		return nil, err
	}
	if !contest.CanSeeFullScoreboard(viewer, now) {
		restricted := participations[:0]
		for _, p := range participations {
			if viewer != nil && p.UserID == viewer.ID {
				restricted = append(restricted, p)
			}
		}
		participations = restricted
	}

	rows, err := s.buildRows(ctx, f, problems, participations)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].CumTime < rows[j].CumTime
	})
	assignRanks(rows)

	// A spectating or virtually-participating viewer sees their ongoing
	// attempt on top, unranked.
	if contest.IsInContest(current) && !current.Live() && !current.Ended(contest, now) {
		own, err := s.buildRows(ctx, f, problems, []model.ContestParticipation{*current})
		if err != nil {
			return nil, err
		}
		own[0].RankMarker = "-"
		rows = append(own, rows...)
	}
	return rows, nil
}

func (s *RankingService) buildRows(ctx context.Context, f format.Format, problems []model.ContestProblem, participations []model.ContestParticipation) ([]RankedRow, error) {
	userIDs := make([]string, 0, len(participations))
	for _, p := range participations {
		userIDs = append(userIDs, p.UserID)
	}
	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	orgs, err := s.users.OrganizationsByUser(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]RankedRow, 0, len(participations))
	for i := range participations {
		p := &participations[i]
		row := RankedRow{
			ParticipationID: p.ID,
			UserID:          p.UserID,
			IsDisqualified:  p.IsDisqualified,
			Virtual:         p.Virtual,
			Organizations:   orgs[p.UserID],
			Score:           p.Score,
			CumTime:         p.CumTime,
		}
		if u, ok := users[p.UserID]; ok {
			row.Username = u.Username
			row.DisplayRank = u.DisplayRank
		}

		row.Cells = make([]format.Cell, 0, len(problems))
		for j := range problems {
			cell, err := f.DisplayUserProblem(p, &problems[j])
			if err != nil {
				if !errors.Is(err, format.ErrMalformedData) {
					return nil, err
				}
				// Stale state from a format change degrades to a
				// placeholder instead of failing the whole board.
				cell = format.PlaceholderCell()
			}
			row.Cells = append(row.Cells, cell)
		}

		result, err := f.DisplayParticipationResult(p)
		if err != nil {
			if !errors.Is(err, format.ErrMalformedData) {
				return nil, err
			}
			result = format.PlaceholderCell()
		}
		row.Result = result
		rows = append(rows, row)
	}
	return rows, nil
}

// assignRanks applies competition ranking: tied (score, cumtime) tuples
// share a rank, and the next distinct tuple resumes at its positional rank
// (1, 1, 3).
func assignRanks(rows []RankedRow) {
	rank := 0
	var prevScore int
	var prevCum int64
	for i := range rows {
		if i == 0 || rows[i].Score != prevScore || rows[i].CumTime != prevCum {
			rank = i + 1
			prevScore = rows[i].Score
			prevCum = rows[i].CumTime
		}
		rows[i].Rank = rank
	}
}
