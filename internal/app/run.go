package app

import (
	"context"
	"fmt"
	"time"

	"digestd/internal/digest"
	"digestd/internal/source"
	"digestd/internal/storage"
	logx "digestd/pkg/logx"
)

// RunOnce executes one full cycle: collect from every source, build and
// render the digest, deliver it, then persist checkpoints and the audit
// record. Source failures degrade the digest; they never abort the run.
func (a *App) RunOnce(ctx context.Context) error {
	start := time.Now()

	a.mu.Lock()
	disp := a.dispatcher
	opts := a.opts
	a.mu.Unlock()

	sources := a.orch.Sources()
	a.log.Info("run started", logx.Int("sources", len(sources)))

	res := a.orch.Run(ctx)
	for _, f := range res.Failures {
		a.log.Warn("source excluded from digest",
			logx.String("source", string(f.Source)),
			logx.String("category", string(f.Category)),
			logx.Int("attempts", f.Attempts),
			logx.String("cause", f.Cause))
	}

	d := digest.Build(res.Messages, time.Now())
	r := digest.Render(d, opts)

	deliverErr := disp.Dispatch(ctx, r)
	delivered := deliverErr == nil

	// Checkpoints advance only after a delivered digest; a failed delivery
	// re-collects the same window next run instead of dropping messages.
	if delivered {
		a.advanceCheckpoints(ctx, res.Failures, d.GeneratedAt())
	}

	a.appendAudit(ctx, storage.RunRecord{
		At:        start,
		Sources:   len(sources),
		Collected: d.Total(),
		Failed:    len(res.Failures),
		Delivered: delivered,
		Error:     errString(deliverErr),
		TookMS:    time.Since(start).Milliseconds(),
	})

	a.log.Info("run finished",
		logx.Int("collected", d.Total()),
		logx.Int("failed_sources", len(res.Failures)),
		logx.Bool("delivered", delivered),
		logx.Duration("took", time.Since(start)))

	if deliverErr != nil {
		return fmt.Errorf("delivery: %w", deliverErr)
	}
	return nil
}

// advanceCheckpoints records the new high-water mark for every source that
// completed its collection this run.
func (a *App) advanceCheckpoints(ctx context.Context, failures []source.Failure, at time.Time) {
	if a.store == nil {
		return
	}
	failed := map[digest.SourceID]bool{}
	for _, f := range failures {
		failed[f.Source] = true
	}
	for _, id := range a.orch.Sources() {
		if failed[id] {
			continue
		}
		if err := a.store.SetCheckpoint(ctx, id, at); err != nil {
			a.log.Warn("checkpoint write failed",
				logx.String("source", string(id)), logx.Err(err))
		}
	}
}

func (a *App) appendAudit(ctx context.Context, rec storage.RunRecord) {
	if a.store == nil {
		return
	}
	if err := a.store.AppendRun(ctx, rec); err != nil {
		a.log.Warn("run audit write failed", logx.Err(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
