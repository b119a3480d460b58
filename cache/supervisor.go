package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/arenacache/internal/util"
)

const (
	// shardsPerWorker is how many shards one cycle worker processes in turn.
	shardsPerWorker = 4
	// A cache with fewer shards than this gives every shard its own worker.
	minShardsForChunking = 16
)

// supervisor runs work over every shard once per period until its context
// is canceled.
type supervisor struct {
	kind    SupervisorKind
	period  time.Duration
	shards  []*shard
	work    func(*shard) error
	after   func()
	log     *slog.Logger
	metrics Metrics
}

func newSupervisor(kind SupervisorKind, period time.Duration, shards []*shard, work func(*shard) error, m Metrics, log *slog.Logger) *supervisor {
	return &supervisor{
		kind:    kind,
		period:  period,
		shards:  shards,
		work:    work,
		log:     log.With("supervisor", kind.String()),
		metrics: m,
	}
}

// run is the supervisor loop. The wait before each cycle is shortened by the
// duration of the previous cycle. When a cycle outlasts the whole period the
// next tick is skipped and counted. A cycle in progress is always finished;
// only the wait is interrupted by cancellation.
func (sv *supervisor) run(ctx context.Context) {
	sv.log.Debug("supervisor started", "period", sv.period)
	defer sv.log.Debug("supervisor stopped")

	var prev time.Duration
	for {
		if prev > sv.period {
			sv.log.Warn("previous cycle took longer than the period, skip cycle; consider more shards",
				"took", prev, "period", sv.period, "shards", len(sv.shards))
			sv.metrics.Cycle(sv.kind, prev, true)
			prev = 0
			continue
		}
		if !sleepCtx(ctx, sv.period-prev) {
			return
		}
		prev = sv.cycle(ctx)
	}
}

// cycle applies work to every shard. Shards are split into chunks and each
// chunk is handled by its own goroutine. Failures are logged per shard and
// never stop the loop.
func (sv *supervisor) cycle(ctx context.Context) time.Duration {
	start := time.Now()

	size := shardsPerWorker
	if len(sv.shards) < minShardsForChunking {
		size = 1
	}
	var g errgroup.Group
	for _, r := range util.Chunks(len(sv.shards), size) {
		chunk := sv.shards[r[0]:r[1]]
		g.Go(func() error {
			var errs []error
			for _, s := range chunk {
				if err := sv.work(s); err != nil {
					sv.log.Error("shard cycle failed", "shard", s.idx, "error", err)
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		})
	}
	err := g.Wait()

	took := time.Since(start)
	if err != nil {
		sv.log.Warn("cycle finished with errors", "took", took, "error", err)
	} else if tracing(sv.log) {
		sv.log.Log(ctx, LevelTrace, "cycle finished", "took", took)
	}
	sv.metrics.Cycle(sv.kind, took, false)
	if sv.after != nil {
		sv.after()
	}
	return took
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
