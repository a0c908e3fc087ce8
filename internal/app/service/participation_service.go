package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"colosseum/internal/app/format"
	"colosseum/internal/common"
	"colosseum/internal/domain/model"
	"colosseum/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ParticipationService drives the participation state machine: joining,
// leaving, disqualification and rescoring.
type ParticipationService struct {
	db             *sql.DB
	contests       repository.ContestRepository
	participations repository.ParticipationRepository
	users          repository.UserRepository
	submissions    repository.SubmissionRepository
	events         EventSink

	now func() time.Time
}

func NewParticipationService(
	db *sql.DB,
	contests repository.ContestRepository,
	participations repository.ParticipationRepository,
	users repository.UserRepository,
	submissions repository.SubmissionRepository,
	events EventSink,
) *ParticipationService {
	return &ParticipationService{
		db:             db,
		contests:       contests,
		participations: participations,
		users:          users,
		submissions:    submissions,
		events:         events,
		now:            time.Now,
	}
}

// findContest resolves a contest key for a user, applying the access gate.
func (s *ParticipationService) findContest(ctx context.Context, key string, u *model.User) (*model.Contest, error) {
	contest, err := s.contests.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := contest.AccessCheck(u); err != nil {
		return nil, common.Errorf("contest %s: %w", key, err)
	}
	return contest, nil
}

// Join enters the user into a contest. Organizers enter as spectators;
// everyone else gets the live attempt, or a fresh virtual attempt when their
// previous one has run out. Each rejection carries its own sentinel error so
// callers can render a specific reason.
func (s *ParticipationService) Join(ctx context.Context, contestKey, userID, accessCode string) (*model.ContestParticipation, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	contest, err := s.findContest(ctx, contestKey, user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	isOrganizer := contest.IsOrganizer(user)

	if !contest.CanJoin(now) && !isOrganizer {
		return nil, common.Errorf("contest %s has not started: %w", contest.Key, common.ErrNotOngoing)
	}
	if contest.Ended(now) {
		return nil, common.Errorf("contest %s: %w", contest.Key, common.ErrContestEnded)
	}

	current, err := s.CurrentParticipation(ctx, user)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, common.Errorf("cannot join %s while in contest %s: %w",
			contest.Key, current.ContestID, common.ErrAlreadyInContest)
	}

	if contest.IsPrivateViewable && !isOrganizer && !user.InAnyOrganization(contest.OrganizationIDs) {
		return nil, common.Errorf("contest %s: %w", contest.Key, common.ErrOrganizationRestricted)
	}
	if contest.IsBanned(user) && !user.CanEditAllContests {
		return nil, common.Errorf("contest %s: %w", contest.Key, common.ErrBanned)
	}
	if contest.AccessCode != "" && !contest.IsEditableBy(user) && accessCode != contest.AccessCode {
		return nil, common.Errorf("contest %s: %w", contest.Key, common.ErrAccessCodeRequired)
	}

	wanted := model.ParticipationLive
	if isOrganizer {
		wanted = model.ParticipationSpectate
	}

	created := false
	participation, err := s.participations.Find(ctx, contest.ID, user.ID, wanted)
	switch {
	case errors.Is(err, common.ErrNotFound):
		participation = s.newParticipation(contest, user, wanted, now)
		created = true
	case err != nil:
		return nil, err
	case participation.Ended(contest, now):
		// The previous attempt ran out; start an independent virtual one.
		maxVirtual, err := s.participations.MaxVirtual(ctx, contest.ID, user.ID)
		if err != nil {
			return nil, err
		}
		participation = s.newParticipation(contest, user, maxVirtual+1, now)
		created = true
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if created {
			if err := s.participations.Create(ctx, tx, participation); err != nil {
				return err
			}
		}
		if err := s.users.SetCurrentParticipation(ctx, tx, user.ID, &participation.ID); err != nil {
			return err
		}
		return s.contests.RefreshUserCount(ctx, tx, contest.ID)
	})
	if err != nil {
		return nil, err
	}
	user.CurrentParticipationID = &participation.ID

	if err := s.events.PublishContestUpdate(ctx, contest.ID); err != nil {
		log.Warn().Err(err).Str("contest_id", contest.ID).Msg("Failed to publish contest update")
	}
	log.Info().Str("contest", contest.Key).Str("user", user.Username).
		Int("virtual", participation.Virtual).Bool("created", created).Msg("User joined contest")
	return participation, nil
}

func (s *ParticipationService) newParticipation(c *model.Contest, u *model.User, virtual int, now time.Time) *model.ContestParticipation {
	return &model.ContestParticipation{
		ID:        uuid.New().String(),
		ContestID: c.ID,
		UserID:    u.ID,
		RealStart: now,
		Virtual:   virtual,
	}
}

// Leave clears the user's current-participation pointer. The participation
// row itself is kept; history survives leaving.
func (s *ParticipationService) Leave(ctx context.Context, contestKey, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	contest, err := s.findContest(ctx, contestKey, user)
	if err != nil {
		return err
	}

	if user.CurrentParticipationID == nil {
		return common.Errorf("not in contest %s: %w", contest.Key, common.ErrBadRequest)
	}
	participation, err := s.participations.FindByID(ctx, *user.CurrentParticipationID)
	if err != nil {
		return err
	}
	if participation.ContestID != contest.ID {
		return common.Errorf("not in contest %s: %w", contest.Key, common.ErrBadRequest)
	}

	if err := s.users.SetCurrentParticipation(ctx, nil, user.ID, nil); err != nil {
		return err
	}
	user.CurrentParticipationID = nil
	log.Info().Str("contest", contest.Key).Str("user", user.Username).Msg("User left contest")
	return nil
}

// CurrentParticipation resolves the user's active attempt, clearing the
// pointer when it has gone stale (attempt ended, contest deleted, or access
// revoked since).
func (s *ParticipationService) CurrentParticipation(ctx context.Context, user *model.User) (*model.ContestParticipation, error) {
	if user == nil || user.CurrentParticipationID == nil {
		return nil, nil
	}

	participation, err := s.participations.FindByID(ctx, *user.CurrentParticipationID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, s.clearCurrent(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	contest, err := s.contests.FindByID(ctx, participation.ContestID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, s.clearCurrent(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	if participation.Ended(contest, s.now()) || !contest.IsAccessibleBy(user) {
		return nil, s.clearCurrent(ctx, user)
	}
	return participation, nil
}

func (s *ParticipationService) clearCurrent(ctx context.Context, user *model.User) error {
	if err := s.users.SetCurrentParticipation(ctx, nil, user.ID, nil); err != nil {
		return err
	}
	user.CurrentParticipationID = nil
	return nil
}

// SetDisqualified toggles disqualification. Disqualifying rescores the
// participation (the sentinel score sinks it), detaches it if it is the
// user's current one, and bans the user from rejoining; un-disqualifying
// lifts the ban and restores the plugin-computed score.
func (s *ParticipationService) SetDisqualified(ctx context.Context, participationID string, disqualified bool) (*model.ContestParticipation, error) {
	participation, err := s.participations.FindByID(ctx, participationID)
	if err != nil {
		return nil, err
	}
	contest, err := s.contests.FindByID(ctx, participation.ContestID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, participation.UserID)
	if err != nil {
		return nil, err
	}

	participation.IsDisqualified = disqualified
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.recompute(ctx, tx, contest, participation); err != nil {
			return err
		}
		if disqualified {
			if user.CurrentParticipationID != nil && *user.CurrentParticipationID == participation.ID {
				if err := s.users.SetCurrentParticipation(ctx, tx, user.ID, nil); err != nil {
					return err
				}
				user.CurrentParticipationID = nil
			}
			return s.contests.AddBannedUser(ctx, tx, contest.ID, user.ID)
		}
		return s.contests.RemoveBannedUser(ctx, tx, contest.ID, user.ID)
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishContestUpdate(ctx, contest.ID); err != nil {
		log.Warn().Err(err).Str("contest_id", contest.ID).Msg("Failed to publish contest update")
	}
	log.Info().Str("contest", contest.Key).Str("user", user.Username).
		Bool("disqualified", disqualified).Msg("Toggled disqualification")
	return participation, nil
}

// RecomputeResults rescores a single participation from its submissions.
func (s *ParticipationService) RecomputeResults(ctx context.Context, participationID string) (*model.ContestParticipation, error) {
	participation, err := s.participations.FindByID(ctx, participationID)
	if err != nil {
		return nil, err
	}
	contest, err := s.contests.FindByID(ctx, participation.ContestID)
	if err != nil {
		return nil, err
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.recompute(ctx, tx, contest, participation)
	})
	if err != nil {
		return nil, err
	}
	return participation, nil
}

// RescoreContest recomputes every participation of a contest. Used by the
// rescore worker after scoring configuration changes.
func (s *ParticipationService) RescoreContest(ctx context.Context, contestID string) (int, error) {
	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return 0, err
	}
	participations, err := s.participations.ListByContest(ctx, contestID)
	if err != nil {
		return 0, err
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for i := range participations {
			if err := s.recompute(ctx, tx, contest, &participations[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := s.events.PublishContestUpdate(ctx, contest.ID); err != nil {
		log.Warn().Err(err).Str("contest_id", contest.ID).Msg("Failed to publish contest update")
	}
	return len(participations), nil
}

// recompute delegates scoring to the contest's format plugin, then applies
// the disqualification override and persists.
func (s *ParticipationService) recompute(ctx context.Context, tx *sql.Tx, contest *model.Contest, p *model.ContestParticipation) error {
	f, err := format.ForContest(contest)
	if err != nil {
		return err
	}
	subs, err := s.submissions.ListByParticipation(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := f.UpdateParticipation(p, subs); err != nil {
		return err
	}
	if p.IsDisqualified {
		p.Score = model.DisqualifiedScore
	}
	return s.participations.Update(ctx, tx, p)
}
