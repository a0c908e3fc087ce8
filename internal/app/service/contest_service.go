package service

import (
	"bytes"
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	"colosseum/internal/app/format"
	"colosseum/internal/common"
	"colosseum/internal/domain/model"
	"colosseum/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
)

var contestKeyPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// ContestService covers contest CRUD, cloning and rescore scheduling.
type ContestService struct {
	db       *sql.DB
	contests repository.ContestRepository
	rescores repository.RescoreRepository
	events   EventSink

	now func() time.Time
}

func NewContestService(
	db *sql.DB,
	contests repository.ContestRepository,
	rescores repository.RescoreRepository,
	events EventSink,
) *ContestService {
	return &ContestService{
		db:       db,
		contests: contests,
		rescores: rescores,
		events:   events,
		now:      time.Now,
	}
}

// Get resolves a contest by key for the requesting user, with its problems
// labeled. Problems are withheld until the user could join (editors always
// see them).
func (s *ContestService) Get(ctx context.Context, key string, u *model.User) (*model.Contest, []model.ContestProblem, error) {
	contest, err := s.contests.FindByKey(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if err := contest.AccessCheck(u); err != nil {
		return nil, nil, common.Errorf("contest %s: %w", key, err)
	}

	if !contest.CanJoin(s.now()) && !contest.IsEditableBy(u) {
		return contest, nil, nil
	}
	problems, err := s.Problems(ctx, contest)
	if err != nil {
		return nil, nil, err
	}
	return contest, problems, nil
}

// Problems returns the contest's problems in scoreboard order with labels
// rendered by the contest's strategy.
func (s *ContestService) Problems(ctx context.Context, contest *model.Contest) ([]model.ContestProblem, error) {
	problems, err := s.contests.GetProblems(ctx, contest.ID)
	if err != nil {
		return nil, err
	}
	strategy, err := labelStrategy(contest)
	if err != nil {
		return nil, err
	}
	for i := range problems {
		label, err := format.LabelFor(strategy, i)
		if err != nil {
			return nil, err
		}
		problems[i].Label = label
	}
	return problems, nil
}

// labelStrategy picks the contest's override or falls back to the format's
// default.
func labelStrategy(contest *model.Contest) (string, error) {
	if contest.LabelStrategy != "" {
		return contest.LabelStrategy, nil
	}
	f, err := format.ForContest(contest)
	if err != nil {
		return "", err
	}
	return f.DefaultLabelStrategy(), nil
}

func (s *ContestService) ListVisible(ctx context.Context, u *model.User) ([]model.Contest, error) {
	return s.contests.ListVisible(ctx, u)
}

// Create validates and persists a new contest. The creator is recorded as an
// organizer.
func (s *ContestService) Create(ctx context.Context, contest *model.Contest, creator *model.User) error {
	if creator == nil || !(creator.CanEditAllContests || creator.CanEditOwnContests) {
		return common.Errorf("missing contest edit permission: %w", common.ErrForbidden)
	}
	if contest.Key == "" {
		// Keys are tighter than slugs: lowercase alphanumerics only.
		contest.Key = strings.ReplaceAll(slug.Make(contest.Name), "-", "")
	}
	if err := s.validate(contest); err != nil {
		return err
	}

	contest.ID = uuid.New().String()
	contest.UserCount = 0
	if !containsString(contest.OrganizerIDs, creator.ID) {
		contest.OrganizerIDs = append(contest.OrganizerIDs, creator.ID)
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.contests.Create(ctx, tx, contest); err != nil {
			return err
		}
		return s.saveMemberships(ctx, tx, contest)
	})
	if err != nil {
		return err
	}
	log.Info().Str("contest", contest.Key).Str("creator", creator.Username).Msg("Contest created")
	return nil
}

// Update persists edits to a contest. When scoring-relevant configuration
// changes, a full-contest rescore job is written in the same transaction and
// nudged onto the queue only after commit, so the worker never scores
// against an uncommitted configuration.
func (s *ContestService) Update(ctx context.Context, key string, updated *model.Contest, editor *model.User) (*model.Contest, error) {
	existing, err := s.contests.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := existing.AccessCheck(editor); err != nil {
		return nil, common.Errorf("contest %s: %w", key, err)
	}
	if !existing.IsEditableBy(editor) {
		return nil, common.Errorf("cannot edit contest %s: %w", key, common.ErrForbidden)
	}

	updated.ID = existing.ID
	updated.Key = existing.Key
	updated.UserCount = existing.UserCount
	if err := s.validate(updated); err != nil {
		return nil, err
	}

	rescoreNeeded := scoringChanged(existing, updated)
	var job *model.RescoreJob

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.contests.Update(ctx, tx, updated); err != nil {
			return err
		}
		if err := s.saveMemberships(ctx, tx, updated); err != nil {
			return err
		}
		if rescoreNeeded {
			job = &model.RescoreJob{ID: uuid.New().String(), ContestID: updated.ID}
			return s.rescores.Create(ctx, tx, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if job != nil {
		if err := s.events.EnqueueRescore(ctx, job.ID); err != nil {
			// The worker's periodic poll picks the job up anyway.
			log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to nudge rescore job")
		}
	}
	if err := s.events.PublishContestUpdate(ctx, updated.ID); err != nil {
		log.Warn().Err(err).Str("contest_id", updated.ID).Msg("Failed to publish contest update")
	}
	log.Info().Str("contest", updated.Key).Bool("rescore", rescoreNeeded).Msg("Contest updated")
	return updated, nil
}

// Clone copies a contest under a new key: hidden, with no participants, with
// the cloner added as organizer, and with the problem set duplicated.
func (s *ContestService) Clone(ctx context.Context, key, newKey string, cloner *model.User) (*model.Contest, error) {
	source, err := s.contests.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := source.AccessCheck(cloner); err != nil {
		return nil, common.Errorf("contest %s: %w", key, err)
	}
	if !source.IsEditableBy(cloner) {
		return nil, common.Errorf("cannot clone contest %s: %w", key, common.ErrForbidden)
	}

	clone := *source
	clone.ID = uuid.New().String()
	clone.Key = newKey
	clone.IsVisible = false
	clone.UserCount = 0
	clone.OrganizerIDs = append([]string(nil), source.OrganizerIDs...)
	clone.OrganizationIDs = append([]string(nil), source.OrganizationIDs...)
	clone.PrivateContestantIDs = append([]string(nil), source.PrivateContestantIDs...)
	clone.BannedUserIDs = nil
	if !containsString(clone.OrganizerIDs, cloner.ID) {
		clone.OrganizerIDs = append(clone.OrganizerIDs, cloner.ID)
	}
	if err := s.validate(&clone); err != nil {
		return nil, err
	}

	problems, err := s.contests.GetProblems(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	for i := range problems {
		problems[i].ID = uuid.New().String()
		problems[i].ContestID = clone.ID
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.contests.Create(ctx, tx, &clone); err != nil {
			return err
		}
		if err := s.saveMemberships(ctx, tx, &clone); err != nil {
			return err
		}
		if len(problems) == 0 {
			return nil
		}
		return s.contests.AddProblems(ctx, tx, clone.ID, problems)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("source", source.Key).Str("clone", clone.Key).Msg("Contest cloned")
	return &clone, nil
}

// ScheduleRescore writes a rescore job for the contest and nudges the
// worker. Used for administrative bulk recomputes.
func (s *ContestService) ScheduleRescore(ctx context.Context, contestID string) (*model.RescoreJob, error) {
	if _, err := s.contests.FindByID(ctx, contestID); err != nil {
		return nil, err
	}
	job := &model.RescoreJob{ID: uuid.New().String(), ContestID: contestID}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.rescores.Create(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	if err := s.events.EnqueueRescore(ctx, job.ID); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to nudge rescore job")
	}
	return job, nil
}

// AddProblems appends problems to a contest, continuing the order sequence.
func (s *ContestService) AddProblems(ctx context.Context, key string, problems []model.ContestProblem, editor *model.User) error {
	contest, err := s.contests.FindByKey(ctx, key)
	if err != nil {
		return err
	}
	if !contest.IsEditableBy(editor) {
		return common.Errorf("cannot edit contest %s: %w", key, common.ErrForbidden)
	}
	existing, err := s.contests.GetProblems(ctx, contest.ID)
	if err != nil {
		return err
	}
	order := len(existing)
	for i := range problems {
		problems[i].ID = uuid.New().String()
		problems[i].ContestID = contest.ID
		problems[i].Order = order + i
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.contests.AddProblems(ctx, tx, contest.ID, problems)
	})
}

func (s *ContestService) validate(contest *model.Contest) error {
	if !contestKeyPattern.MatchString(contest.Key) {
		return common.Errorf("contest key must match [a-z0-9]+: %w", common.ErrValidation)
	}
	if contest.Name == "" {
		return common.Errorf("contest name is required: %w", common.ErrValidation)
	}
	if err := contest.ValidateWindow(); err != nil {
		return err
	}
	if contest.FormatName == "" {
		contest.FormatName = "default"
	}
	def, err := format.Get(contest.FormatName)
	if err != nil {
		return common.Errorf("%v: %w", err, common.ErrValidation)
	}
	if err := def.Validate(contest.FormatConfig); err != nil {
		return err
	}
	if contest.LabelStrategy != "" {
		if err := format.ValidateLabelStrategy(contest.LabelStrategy); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContestService) saveMemberships(ctx context.Context, tx *sql.Tx, contest *model.Contest) error {
	if err := s.contests.SetOrganizers(ctx, tx, contest.ID, contest.OrganizerIDs); err != nil {
		return err
	}
	if err := s.contests.SetOrganizations(ctx, tx, contest.ID, contest.OrganizationIDs); err != nil {
		return err
	}
	return s.contests.SetPrivateContestants(ctx, tx, contest.ID, contest.PrivateContestantIDs)
}

// scoringChanged reports whether an edit touched configuration the scores
// depend on.
func scoringChanged(before, after *model.Contest) bool {
	return before.FormatName != after.FormatName ||
		!bytes.Equal(before.FormatConfig, after.FormatConfig) ||
		before.FreezeSubmissions != after.FreezeSubmissions ||
		before.RunPretestsOnly != after.RunPretestsOnly
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
