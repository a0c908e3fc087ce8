package service

import (
	"context"
	"database/sql"
	"sync"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"
)

// In-memory repositories. They mirror the postgres implementations'
// contracts closely enough for the lifecycle tests: sentinel errors,
// uniqueness on (contest, user, virtual), and the live-user count.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}}
}

func (r *fakeUserRepo) add(u *model.User) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return u
}

func (r *fakeUserRepo) Create(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return common.ErrConflict
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := map[string]*model.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

func (r *fakeUserRepo) SetCurrentParticipation(ctx context.Context, tx *sql.Tx, userID string, participationID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return common.ErrNotFound
	}
	u.CurrentParticipationID = participationID
	return nil
}

func (r *fakeUserRepo) OrganizationsByUser(ctx context.Context, userIDs []string) (map[string][]model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := map[string][]model.Organization{}
	for _, id := range userIDs {
		u, ok := r.users[id]
		if !ok {
			continue
		}
		for _, orgID := range u.OrganizationIDs {
			result[id] = append(result[id], model.Organization{ID: orgID, Name: orgID})
		}
	}
	return result, nil
}

type fakeParticipationRepo struct {
	mu    sync.Mutex
	rows  []*model.ContestParticipation
	users *fakeUserRepo
}

func newFakeParticipationRepo(users *fakeUserRepo) *fakeParticipationRepo {
	return &fakeParticipationRepo{users: users}
}

func (r *fakeParticipationRepo) Create(ctx context.Context, tx *sql.Tx, p *model.ContestParticipation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ContestID == p.ContestID && row.UserID == p.UserID && row.Virtual == p.Virtual {
			return common.ErrConflict
		}
	}
	r.rows = append(r.rows, p)
	return nil
}

func (r *fakeParticipationRepo) Update(ctx context.Context, tx *sql.Tx, p *model.ContestParticipation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == p.ID {
			r.rows[i] = p
			return nil
		}
	}
	return common.ErrNotFound
}

func (r *fakeParticipationRepo) FindByID(ctx context.Context, id string) (*model.ContestParticipation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeParticipationRepo) Find(ctx context.Context, contestID, userID string, virtual int) (*model.ContestParticipation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ContestID == contestID && row.UserID == userID && row.Virtual == virtual {
			return row, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeParticipationRepo) MaxVirtual(ctx context.Context, contestID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, row := range r.rows {
		if row.ContestID == contestID && row.UserID == userID && row.Virtual > max {
			max = row.Virtual
		}
	}
	return max, nil
}

func (r *fakeParticipationRepo) countLiveLocked(contestID string) int {
	count := 0
	for _, row := range r.rows {
		if row.ContestID == contestID && row.Virtual == model.ParticipationLive {
			count++
		}
	}
	return count
}

func (r *fakeParticipationRepo) ListLive(ctx context.Context, contestID string) ([]model.ContestParticipation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []model.ContestParticipation
	for _, row := range r.rows {
		if row.ContestID != contestID || row.Virtual != model.ParticipationLive {
			continue
		}
		if u, ok := r.users.users[row.UserID]; ok && u.IsUnlisted {
			continue
		}
		result = append(result, *row)
	}
	return result, nil
}

func (r *fakeParticipationRepo) ListByContest(ctx context.Context, contestID string) ([]model.ContestParticipation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []model.ContestParticipation
	for _, row := range r.rows {
		if row.ContestID == contestID {
			result = append(result, *row)
		}
	}
	return result, nil
}

type fakeContestRepo struct {
	mu             sync.Mutex
	contests       map[string]*model.Contest // by id
	problems       map[string][]model.ContestProblem
	participations *fakeParticipationRepo
}

func newFakeContestRepo(participations *fakeParticipationRepo) *fakeContestRepo {
	return &fakeContestRepo{
		contests:       map[string]*model.Contest{},
		problems:       map[string][]model.ContestProblem{},
		participations: participations,
	}
}

func (r *fakeContestRepo) add(c *model.Contest) *model.Contest {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contests[c.ID] = c
	return c
}

func (r *fakeContestRepo) Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contests {
		if existing.Key == c.Key {
			return common.ErrConflict
		}
	}
	r.contests[c.ID] = c
	return nil
}

func (r *fakeContestRepo) Update(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contests[c.ID]; !ok {
		return common.ErrNotFound
	}
	r.contests[c.ID] = c
	return nil
}

func (r *fakeContestRepo) FindByKey(ctx context.Context, key string) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contests {
		if c.Key == key {
			return c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeContestRepo) FindByID(ctx context.Context, id string) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c, nil
}

func (r *fakeContestRepo) ListVisible(ctx context.Context, u *model.User) ([]model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []model.Contest
	for _, c := range r.contests {
		if c.IsAccessibleBy(u) {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (r *fakeContestRepo) RefreshUserCount(ctx context.Context, tx *sql.Tx, contestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok {
		return common.ErrNotFound
	}
	c.UserCount = r.participations.countLiveLocked(contestID)
	return nil
}

func (r *fakeContestRepo) AddBannedUser(ctx context.Context, tx *sql.Tx, contestID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok {
		return common.ErrNotFound
	}
	for _, id := range c.BannedUserIDs {
		if id == userID {
			return nil
		}
	}
	c.BannedUserIDs = append(c.BannedUserIDs, userID)
	return nil
}

func (r *fakeContestRepo) RemoveBannedUser(ctx context.Context, tx *sql.Tx, contestID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok {
		return common.ErrNotFound
	}
	kept := c.BannedUserIDs[:0]
	for _, id := range c.BannedUserIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	c.BannedUserIDs = kept
	return nil
}

func (r *fakeContestRepo) SetOrganizers(ctx context.Context, tx *sql.Tx, contestID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contests[contestID]; ok {
		c.OrganizerIDs = userIDs
	}
	return nil
}

func (r *fakeContestRepo) SetOrganizations(ctx context.Context, tx *sql.Tx, contestID string, orgIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contests[contestID]; ok {
		c.OrganizationIDs = orgIDs
	}
	return nil
}

func (r *fakeContestRepo) SetPrivateContestants(ctx context.Context, tx *sql.Tx, contestID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contests[contestID]; ok {
		c.PrivateContestantIDs = userIDs
	}
	return nil
}

func (r *fakeContestRepo) GetProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ContestProblem(nil), r.problems[contestID]...), nil
}

func (r *fakeContestRepo) AddProblems(ctx context.Context, tx *sql.Tx, contestID string, problems []model.ContestProblem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems[contestID] = append(r.problems[contestID], problems...)
	return nil
}

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs map[string][]model.ContestSubmission // by participation id
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{subs: map[string][]model.ContestSubmission{}}
}

func (r *fakeSubmissionRepo) add(sub model.ContestSubmission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ParticipationID] = append(r.subs[sub.ParticipationID], sub)
}

func (r *fakeSubmissionRepo) ListByParticipation(ctx context.Context, participationID string) ([]model.ContestSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ContestSubmission(nil), r.subs[participationID]...), nil
}

type fakeRescoreRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.RescoreJob
}

func newFakeRescoreRepo() *fakeRescoreRepo {
	return &fakeRescoreRepo{jobs: map[string]*model.RescoreJob{}}
}

func (r *fakeRescoreRepo) Create(ctx context.Context, tx *sql.Tx, job *model.RescoreJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.Status = model.RescoreStatusPending
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeRescoreRepo) FindByID(ctx context.Context, id string) (*model.RescoreJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return job, nil
}

func (r *fakeRescoreRepo) ClaimNextPending(ctx context.Context) (*model.RescoreJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Status == model.RescoreStatusPending {
			job.Status = model.RescoreStatusProcessing
			job.Attempts++
			return job, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeRescoreRepo) Claim(ctx context.Context, id string) (*model.RescoreJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.RescoreStatusPending {
		return nil, common.ErrNotFound
	}
	job.Status = model.RescoreStatusProcessing
	job.Attempts++
	return job, nil
}

func (r *fakeRescoreRepo) MarkCompleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = model.RescoreStatusCompleted
	}
	return nil
}

func (r *fakeRescoreRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = model.RescoreStatusFailed
		job.LastError = &lastError
	}
	return nil
}

type fakeEvents struct {
	mu       sync.Mutex
	updates  []string
	rescores []string
}

func (e *fakeEvents) PublishContestUpdate(ctx context.Context, contestID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, contestID)
	return nil
}

func (e *fakeEvents) EnqueueRescore(ctx context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rescores = append(e.rescores, jobID)
	return nil
}
