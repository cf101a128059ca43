package flash

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/slot"
	"github.com/fftools/fastflash/pkg/source"
)

// OptimizedFlashSuperTask rewrites the super partition in one pass: it
// syncs the table from super_empty.img with a wipe, so every logical
// partition starts from zero extents, then flashes each dynamic image
// it superseded. Replaces the separate update-super, resize and
// per-partition flash steps.
type OptimizedFlashSuperTask struct {
	plan    *Plan
	flashes []*FlashTask
}

// InitializeOptimizedFlashSuper decides whether the optimization
// applies and, if so, extracts the superseded tasks from the list.
// Returns the rewrite task and the trimmed list, or nil and the list
// unchanged.
func InitializeOptimizedFlashSuper(ctx context.Context, p *Plan, tasks []Task) (*OptimizedFlashSuperTask, []Task) {
	if p.DisableSuperOptimization {
		slog.Info("super_optimization_disabled")
		return nil, tasks
	}
	if !slot.SupportsAB(ctx, p.Driver) {
		slog.Debug("super_optimization_skipped", "reason", "non-ab device")
		return nil, tasks
	}
	if p.SlotOverride == "all" {
		slog.Debug("super_optimization_skipped", "reason", "all slots requested")
		return nil, tasks
	}
	if p.superMetadata() == nil {
		return nil, tasks
	}

	opt := &OptimizedFlashSuperTask{plan: p}
	var kept []Task
	for _, task := range tasks {
		switch t := task.(type) {
		case *FlashTask:
			if p.ShouldFlashInUserspace(t.PartitionAndSlot(ctx)) {
				opt.flashes = append(opt.flashes, t)
				continue
			}
		case *UpdateSuperTask, *ResizeTask:
			continue
		}
		kept = append(kept, task)
	}
	if len(opt.flashes) == 0 {
		return nil, tasks
	}
	return opt, kept
}

func (t *OptimizedFlashSuperTask) Run(ctx context.Context) error {
	blob, err := t.plan.Source.ReadFile("super_empty.img")
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil
		}
		return err
	}

	if !fastboot.IsUserspace(ctx, t.plan.Driver) {
		if err := t.plan.RebootToUserspace(ctx); err != nil {
			return err
		}
	}

	superName, err := t.plan.Driver.GetVar(ctx, fastboot.VarSuperPartitionName)
	if err != nil || superName == "" {
		superName = "super"
	}
	if err := t.plan.Driver.Download(ctx, "super", blob); err != nil {
		return err
	}
	if err := t.plan.Driver.RawCommand(ctx, "update-super:"+superName+":wipe", "Updating super partition"); err != nil {
		return err
	}

	for _, ft := range t.flashes {
		if err := ft.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
