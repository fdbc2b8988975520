package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"skillconnect/internal/domain"
	"skillconnect/internal/metrics"
	"skillconnect/internal/models"
)

const (
	redisQueueKey = "outbox:queue"
	deadLetterKey = "outbox:deadletter"

	// claimTimeout is how long a processing task may stay claimed before it is
	// handed to another worker.
	claimTimeout = 5 * time.Minute
)

var errPermanent = errors.New("permanent task failure")

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Retry        RetryPolicy
}

// OutboxWorker delivers committed outbox tasks: realtime events to the
// publisher and booking rows to the ledger.
type OutboxWorker struct {
	outbox       domain.OutboxRepository
	publisher    domain.EventPublisher
	ledger       domain.LedgerWriter
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan *models.OutboxTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewOutboxWorker builds a worker with sane defaults. ledger and redisClient may be nil.
func NewOutboxWorker(
	outbox domain.OutboxRepository,
	publisher domain.EventPublisher,
	ledger domain.LedgerWriter,
	redisClient *redis.Client,
	opts Options,
	logger *zerolog.Logger,
) *OutboxWorker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		outbox:       outbox,
		publisher:    publisher,
		ledger:       ledger,
		redis:        redisClient,
		retryPolicy:  opts.Retry.withDefaults(),
		queue:        make(chan *models.OutboxTask, 128),
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// Dispatch schedules freshly committed tasks via redis or the in-memory queue.
// Tasks that fit neither are picked up by polling.
func (w *OutboxWorker) Dispatch(ctx context.Context, tasks []*models.OutboxTask) {
	for _, task := range tasks {
		if task == nil || task.ID == 0 {
			continue
		}

		if w.redis != nil {
			err := w.pushRedis(ctx, task)
			if err == nil {
				continue
			}
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, falling back to memory queue")
		}

		select {
		case w.queue <- task:
		default:
			w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
		}
	}
}

// Start launches the main loop; it stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		if n := w.pollOnce(ctx); n == 0 {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.processTask(ctx, t)
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// pollOnce recovers stale claims and processes one batch of due tasks.
func (w *OutboxWorker) pollOnce(ctx context.Context) int {
	if n, err := w.outbox.ReleaseStaleOutboxTasks(ctx, w.now().Add(-claimTimeout)); err != nil {
		w.logger.Error().Err(err).Msg("release stale tasks")
	} else if n > 0 {
		w.logger.Warn().Int64("count", n).Msg("released stale outbox tasks")
	}

	tasks, err := w.outbox.GetPendingOutboxTasks(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending tasks")
		return 0
	}
	for _, t := range tasks {
		w.processTask(ctx, t)
	}
	return len(tasks)
}

func (w *OutboxWorker) tryLocalQueue() (*models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return nil, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (*models.OutboxTask, bool) {
	if w.redis == nil {
		return nil, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
		}
		return nil, false
	}
	if len(res) != 2 {
		return nil, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return nil, false
	}
	return &task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	claimed, err := w.outbox.ClaimOutboxTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("claim task")
		return
	}
	if !claimed {
		return
	}

	log := w.logger.With().Int64("task_id", task.ID).Str("task_type", task.TaskType).Logger()

	if err := w.handleTask(ctx, task); err != nil {
		if errors.Is(err, errPermanent) {
			w.failTask(ctx, task, err)
			return
		}
		log.Warn().Err(err).Int("attempt", task.RetryCount+1).Msg("task delivery failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.outbox.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("mark completed")
	}
	metrics.IncOutbox(task.TaskType, models.TaskCompleted)
}

func (w *OutboxWorker) handleTask(ctx context.Context, task *models.OutboxTask) error {
	switch task.TaskType {
	case models.TaskRealtime:
		var msg models.RealtimeMessage
		if err := json.Unmarshal([]byte(task.Payload), &msg); err != nil {
			return fmt.Errorf("%w: decode payload: %v", errPermanent, err)
		}
		if w.publisher == nil {
			return nil
		}
		return w.publisher.Publish(ctx, &msg)
	case models.TaskLedgerUpsert:
		var row models.LedgerRow
		if err := json.Unmarshal([]byte(task.Payload), &row); err != nil {
			return fmt.Errorf("%w: decode payload: %v", errPermanent, err)
		}
		if w.ledger == nil {
			w.logger.Debug().Int64("booking_id", row.BookingID).Msg("ledger disabled, skipping row")
			return nil
		}
		return w.ledger.UpsertBooking(ctx, &row)
	default:
		return fmt.Errorf("%w: unknown task type %q", errPermanent, task.TaskType)
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.outbox.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncOutbox(task.TaskType, models.TaskRetry)
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("task failed permanently")
	if err := w.outbox.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncOutbox(task.TaskType, models.TaskFailed)
	w.pushDeadLetter(ctx, task)
}

func (w *OutboxWorker) pushRedis(ctx context.Context, task *models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, redisQueueKey, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.OutboxTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
