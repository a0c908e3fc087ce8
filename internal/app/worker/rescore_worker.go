package worker

import (
	"context"
	"errors"
	"time"

	"colosseum/internal/app/service"
	"colosseum/internal/common"
	"colosseum/internal/domain/model"
	"colosseum/internal/domain/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RescoreWorker consumes full-contest rescore jobs. The durable job row is
// the source of truth: the Redis queue only nudges the worker awake, and a
// periodic poll sweeps up jobs whose nudge was lost.
type RescoreWorker struct {
	rdb            *redis.Client
	queueName      string
	pollInterval   time.Duration
	rescoreRepo    repository.RescoreRepository
	participations *service.ParticipationService
}

func NewRescoreWorker(
	rdb *redis.Client,
	queueName string,
	pollInterval time.Duration,
	rescoreRepo repository.RescoreRepository,
	participations *service.ParticipationService,
) *RescoreWorker {
	return &RescoreWorker{
		rdb:            rdb,
		queueName:      queueName,
		pollInterval:   pollInterval,
		rescoreRepo:    rescoreRepo,
		participations: participations,
	}
}

func (w *RescoreWorker) Start(ctx context.Context) {
	log.Info().Str("queue", w.queueName).Dur("poll_interval", w.pollInterval).
		Msg("Rescore worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Rescore worker stopping")
			return
		default:
			w.runOnce(ctx)
		}
	}
}

// runOnce blocks on the queue up to the poll interval, then drains any
// pending jobs from the database regardless of whether a nudge arrived.
func (w *RescoreWorker) runOnce(ctx context.Context) {
	popped, err := w.rdb.BLPop(ctx, w.pollInterval, w.queueName).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Timeout; fall through to the poll sweep.
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case err != nil:
		log.Error().Err(err).Str("queue", w.queueName).Msg("BLPop failed")
		time.Sleep(5 * time.Second)
		return
	default:
		if len(popped) == 2 && popped[1] != "" {
			w.processNudged(ctx, popped[1])
		}
	}

	for {
		job, err := w.rescoreRepo.ClaimNextPending(ctx)
		if errors.Is(err, common.ErrNotFound) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to claim pending rescore job")
			return
		}
		w.run(ctx, job)
	}
}

// processNudged claims the specific job named by a queue nudge. A job that
// is gone or already claimed by a concurrent worker is skipped silently.
func (w *RescoreWorker) processNudged(ctx context.Context, jobID string) {
	job, err := w.rescoreRepo.Claim(ctx, jobID)
	if errors.Is(err, common.ErrNotFound) {
		log.Debug().Str("job_id", jobID).Msg("Nudged job already claimed or gone")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to claim nudged rescore job")
		return
	}
	w.run(ctx, job)
}

func (w *RescoreWorker) run(ctx context.Context, job *model.RescoreJob) {
	log.Info().Str("job_id", job.ID).Str("contest_id", job.ContestID).
		Int("attempt", job.Attempts).Msg("Rescoring contest")

	count, err := w.participations.RescoreContest(ctx, job.ContestID)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Rescore failed")
		if markErr := w.rescoreRepo.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Str("job_id", job.ID).Msg("Failed to mark rescore job failed")
		}
		return
	}

	if err := w.rescoreRepo.MarkCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark rescore job completed")
		return
	}
	log.Info().Str("job_id", job.ID).Int("participations", count).Msg("Rescore completed")
}
