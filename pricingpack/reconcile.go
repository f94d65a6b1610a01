package pricingpack

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kestrelfi/patternrunner/core"
)

// PackSource checks an external pricing feed for a corporate-action
// restatement affecting the given pack's as-of date. It returns ok=false
// when nothing has changed since the pack was created.
type PackSource interface {
	CheckRestatement(ctx context.Context, pack *Pack) (sources []string, hash string, reason string, ok bool, err error)
}

// NoopPackSource reports no restatement on every check. It is the default
// PackSource when no upstream restatement feed has been configured, so the
// reconciliation schedule runs without ever mutating a pack.
type NoopPackSource struct{}

func (NoopPackSource) CheckRestatement(context.Context, *Pack) ([]string, string, string, bool, error) {
	return nil, "", "", false, nil
}

// Reconciler periodically checks every terminal pack in the chain rooted at
// each tracked root id against src, superseding packs whose upstream data
// has been restated. It does not set a pack's ReconciliationPassed field.
type Reconciler struct {
	store  Store
	src    PackSource
	roots  []string
	logger core.Logger
	cron   *cron.Cron
}

// NewReconciler builds a Reconciler over store using src to detect
// restatements for the given root pack ids.
func NewReconciler(store Store, src PackSource, roots []string, logger core.Logger) *Reconciler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Reconciler{store: store, src: src, roots: roots, logger: logger, cron: cron.New()}
}

// Start schedules RunOnce on spec, a standard 5-field cron expression, and
// returns immediately; call Stop to end the schedule.
func (r *Reconciler) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop ends the cron schedule, waiting for any in-flight run to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce checks every tracked root's terminal pack once, superseding any
// pack whose source reports a restatement.
func (r *Reconciler) RunOnce(ctx context.Context) {
	for _, root := range r.roots {
		chain, err := r.store.ListChain(ctx, root)
		if err != nil || len(chain) == 0 {
			r.logger.Warn("reconcile: could not list chain", map[string]interface{}{"root": root, "error": errString(err)})
			continue
		}
		terminalID := chain[len(chain)-1]

		pack, err := r.store.GetPack(ctx, terminalID)
		if err != nil {
			r.logger.Warn("reconcile: could not load terminal pack", map[string]interface{}{"pack_id": terminalID, "error": errString(err)})
			continue
		}

		sources, hash, reason, ok, err := r.src.CheckRestatement(ctx, pack)
		if err != nil {
			r.logger.Warn("reconcile: source check failed", map[string]interface{}{"pack_id": pack.ID, "error": err.Error()})
			continue
		}
		if !ok {
			continue
		}

		old, neu, err := r.store.Supersede(ctx, pack.ID, sources, hash, reason)
		if err != nil {
			r.logger.Error("reconcile: supersede failed", map[string]interface{}{"pack_id": pack.ID, "error": err.Error()})
			continue
		}
		r.logger.Info("reconcile: pack superseded", map[string]interface{}{
			"old_pack_id": old.ID, "new_pack_id": neu.ID, "reason": reason, "at": time.Now().Format(time.RFC3339),
		})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
