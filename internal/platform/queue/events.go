package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Publisher pushes contest notifications and rescore nudges through Redis.
// Scoreboard consumers subscribe to the per-contest channel; the rescore
// worker blocks on the queue list.
type Publisher struct {
	rdb           *redis.Client
	channelPrefix string
	queueName     string
}

func NewPublisher(rdb *redis.Client, channelPrefix, queueName string) *Publisher {
	return &Publisher{rdb: rdb, channelPrefix: channelPrefix, queueName: queueName}
}

// PublishContestUpdate notifies subscribers of the contest's channel that its
// state changed (somebody joined, scores moved, configuration was edited).
func (p *Publisher) PublishContestUpdate(ctx context.Context, contestID string) error {
	channel := p.channelPrefix + contestID
	if err := p.rdb.Publish(ctx, channel, `{"type": "update"}`).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	log.Debug().Str("channel", channel).Msg("Published contest update event")
	return nil
}

// EnqueueRescore nudges the worker to pick up a pending rescore job. The job
// row itself is the source of truth; a lost nudge is recovered by the
// worker's periodic poll.
func (p *Publisher) EnqueueRescore(ctx context.Context, jobID string) error {
	if err := p.rdb.RPush(ctx, p.queueName, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue rescore job %s: %w", jobID, err)
	}
	log.Debug().Str("job_id", jobID).Msg("Enqueued rescore job")
	return nil
}
