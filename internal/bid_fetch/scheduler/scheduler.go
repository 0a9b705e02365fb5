package scheduler

import (
	"bid-fetch/internal/bid_fetch/files"
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSpec = "@every 6h"

// Cleaner deletes old files from the downloads tree.
type Cleaner interface {
	Cleanup(t files.FileType, olderThanDays int) (files.CleanupResult, error)
}

// Worker runs the maintenance job on a cron schedule: delete downloads older than
// OlderThanDays.
type Worker struct {
	Log           *zap.Logger
	Cleaner       Cleaner
	Spec          string // cron spec, e.g. "@every 6h"
	OlderThanDays int

	cron    *cron.Cron
	running sync.Mutex
	wg      sync.WaitGroup
}

// Start registers the job, starts the cron and runs one pass immediately without blocking.
func (w *Worker) Start(ctx context.Context) error {
	spec := w.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	w.cron = cron.New(cron.WithLogger(cronLogger{w.Log.Sugar()}))
	if _, err := w.cron.AddFunc(spec, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	w.cron.Start()
	w.Log.Info("Maintenance scheduler started", zap.String("spec", spec), zap.Int("olderThanDays", w.OlderThanDays))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.RunOnce(ctx)
	}()
	return nil
}

// Stop stops the cron and waits for a running pass to finish.
func (w *Worker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	w.wg.Wait()
	w.Log.Info("Maintenance scheduler stopped")
}

// RunOnce performs one maintenance pass. Overlapping passes are skipped.
func (w *Worker) RunOnce(ctx context.Context) {
	if !w.running.TryLock() {
		w.Log.Info("Maintenance pass already running, skip")
		return
	}
	defer w.running.Unlock()

	if ctx.Err() != nil {
		return
	}

	if w.Cleaner == nil || w.OlderThanDays < 1 {
		return
	}
	res, err := w.Cleaner.Cleanup("", w.OlderThanDays)
	if err != nil {
		w.Log.Error("Failed to clean up downloads", zap.Error(err))
		return
	}
	w.Log.Info("Cleaned up downloads",
		zap.Int("deleted", len(res.DeletedFiles)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("olderThanDays", res.CutoffDays),
	)
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
