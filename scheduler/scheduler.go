// Package scheduler runs periodic maintenance tasks: command expiry,
// dual-store reconciliation and in-process cache purging.
package scheduler

import (
	"context"
	"sync"
	"time"

	"admsserver/cache"
	"admsserver/logger"
	"admsserver/services"
)

const (
	expireBatch     = 500
	reconcileWindow = 24 * time.Hour
	expireInterval  = time.Minute
	reconcileEvery  = 15 * time.Minute
	cachePurgeEvery = 5 * time.Minute
)

// Task is a named job run once at start and then every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns the goroutines of started tasks.
type Scheduler struct {
	wg sync.WaitGroup
}

// DefaultTasks 기본 유지보수 작업 목록. mem이 nil이면 캐시 정리는 생략한다 (Redis는 자체 만료).
func DefaultTasks(commands *services.CommandManager, mem *cache.MemoryStore) []Task {
	tasks := []Task{
		{
			Name:     "expire-commands",
			Interval: expireInterval,
			Run: func(ctx context.Context) error {
				_, err := commands.ExpireStale(ctx, expireBatch)
				return err
			},
		},
		{
			Name:     "reconcile-commands",
			Interval: reconcileEvery,
			Run: func(ctx context.Context) error {
				_, err := commands.ReconcileAll(ctx, reconcileWindow)
				return err
			},
		},
	}
	if mem != nil {
		tasks = append(tasks, Task{
			Name:     "cache-purge",
			Interval: cachePurgeEvery,
			Run: func(ctx context.Context) error {
				if n := mem.Purge(); n > 0 {
					logger.WithFields(map[string]interface{}{"count": n}).Debug("Purged expired cache entries")
				}
				return nil
			},
		})
	}
	return tasks
}

// StartScheduler 스케줄러 시작. 각 작업은 즉시 한 번 실행된 뒤 주기적으로 실행되며
// ctx가 취소되면 멈춘다.
func StartScheduler(ctx context.Context, tasks ...Task) *Scheduler {
	s := &Scheduler{}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	logger.WithFields(map[string]interface{}{"tasks": len(tasks)}).Info("Scheduler started")
	return s
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	runTask(ctx, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runTask(ctx, t)
		}
	}
}

func runTask(ctx context.Context, t Task) {
	start := time.Now()
	if err := t.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.WithFields(map[string]interface{}{
			"task":  t.Name,
			"error": err.Error(),
		}).Error("Scheduled task failed")
		return
	}
	logger.WithFields(map[string]interface{}{
		"task":     t.Name,
		"duration": time.Since(start).String(),
	}).Debug("Scheduled task finished")
}

// Wait blocks until every task loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
