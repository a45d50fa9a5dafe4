package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeListingArchive    = "listing:archive"
	TypeListingTTLMigrate = "listing:ttl:migrate"
	TypeListingCleanup    = "listing:cleanup"
	TypeFavoriteSweep     = "favorite:sweep"
)

const (
	lifecycleQueue = "lifecycle"
	maxRetry       = 2
	taskTimeout    = 30 * time.Minute
)

// JobPayload is the payload shared by every lifecycle task.
type JobPayload struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// NewLifecycleTask builds a task of the given type with the lifecycle queue options.
func NewLifecycleTask(taskType string, dryRun bool) (*asynq.Task, error) {
	switch taskType {
	case TypeListingArchive, TypeListingTTLMigrate, TypeListingCleanup, TypeFavoriteSweep:
	default:
		return nil, fmt.Errorf("unknown lifecycle task type %q", taskType)
	}
	payload, err := json.Marshal(JobPayload{DryRun: dryRun})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(taskType, payload,
		asynq.Queue(lifecycleQueue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
	), nil
}

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// --- Task Server (Processing tasks) ---

// TaskProcessor runs lifecycle jobs on behalf of the scheduler.
type TaskProcessor struct {
	lifecycle services.ILifecycleService
	log       *zap.Logger
}

func NewTaskProcessor(lifecycle services.ILifecycleService, log *zap.Logger) *TaskProcessor {
	return &TaskProcessor{lifecycle: lifecycle, log: log}
}

// SetupServer configures an Asynq server and the mux holding the lifecycle handlers.
// Neither is started.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, log *zap.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			// Jobs of one type must not overlap; a single worker keeps runs serial.
			Concurrency: 1,
			Queues: map[string]int{
				lifecycleQueue: 1,
			},
			Logger: log.Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("lifecycle task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeListingArchive, processor.HandleArchiveTask)
	mux.HandleFunc(TypeListingTTLMigrate, processor.HandleTTLMigrateTask)
	mux.HandleFunc(TypeListingCleanup, processor.HandleCleanupTask)
	mux.HandleFunc(TypeFavoriteSweep, processor.HandleFavoriteSweepTask)

	return srv, mux
}

// SetupScheduler registers every lifecycle job on its cron spec (UTC). An
// empty spec leaves that job unscheduled.
func SetupScheduler(rdb *redis.Client, cfg *config.Config, log *zap.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(rdb), &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   log.Sugar(),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Warn("failed to enqueue scheduled task", zap.Error(err))
				return
			}
			log.Debug("scheduled task enqueued", zap.String("type", info.Type), zap.String("id", info.ID))
		},
	})

	entries := []struct {
		spec     string
		taskType string
	}{
		{cfg.ArchiveCron, TypeListingArchive},
		{cfg.MigrateTTLCron, TypeListingTTLMigrate},
		{cfg.CleanupCron, TypeListingCleanup},
		{cfg.SweepCron, TypeFavoriteSweep},
	}
	for _, e := range entries {
		if e.spec == "" {
			log.Info("job not scheduled", zap.String("type", e.taskType))
			continue
		}
		task, err := NewLifecycleTask(e.taskType, false)
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register(e.spec, task); err != nil {
			return nil, fmt.Errorf("failed to register %s on %q: %w", e.taskType, e.spec, err)
		}
		log.Info("job scheduled", zap.String("type", e.taskType), zap.String("cron", e.spec))
	}
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleArchiveTask(ctx context.Context, t *asynq.Task) error {
	return p.run(ctx, t, func(opts services.RunOptions) (interface{}, error) {
		return p.lifecycle.Archive(ctx, opts)
	})
}

func (p *TaskProcessor) HandleTTLMigrateTask(ctx context.Context, t *asynq.Task) error {
	return p.run(ctx, t, func(opts services.RunOptions) (interface{}, error) {
		return p.lifecycle.MigrateTTL(ctx, opts)
	})
}

func (p *TaskProcessor) HandleCleanupTask(ctx context.Context, t *asynq.Task) error {
	return p.run(ctx, t, func(opts services.RunOptions) (interface{}, error) {
		return p.lifecycle.Cleanup(ctx, opts)
	})
}

func (p *TaskProcessor) HandleFavoriteSweepTask(ctx context.Context, t *asynq.Task) error {
	return p.run(ctx, t, func(opts services.RunOptions) (interface{}, error) {
		return p.lifecycle.SweepFavorites(ctx, opts)
	})
}

// run decodes the payload and invokes job as the scheduler. Jobs are
// idempotent, so commit and store failures are handed back to Asynq for retry.
func (p *TaskProcessor) run(ctx context.Context, t *asynq.Task, job func(services.RunOptions) (interface{}, error)) error {
	var payload JobPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
	}

	summary, err := job(services.RunOptions{Principal: auth.PrincipalScheduler, DryRun: payload.DryRun})
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			return fmt.Errorf("%s: %w: %w", t.Type(), err, asynq.SkipRetry)
		}
		var commitErr *services.BatchCommitError
		if errors.As(err, &commitErr) {
			p.log.Warn("lifecycle task partially applied",
				zap.String("type", t.Type()),
				zap.Int("batch", commitErr.Batch),
				zap.Any("summary", summary))
		}
		return fmt.Errorf("%s: %w", t.Type(), err)
	}

	p.log.Info("lifecycle task completed",
		zap.String("type", t.Type()),
		zap.Bool("dry_run", payload.DryRun),
		zap.Any("summary", summary))
	return nil
}
