package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fftools/fastflash/pkg/catalog"
	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/source"
)

// CollectTasks builds the run's ordered task list, script-driven when
// the package carries fastboot-info.txt and it isn't disabled,
// catalog-driven otherwise.
func (p *Plan) CollectTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	var err error
	if p.DisableFastbootInfo {
		tasks, err = p.collectTasksFromImageList(ctx)
	} else {
		tasks, err = p.collectTasksFromScript(ctx)
	}
	if err != nil {
		return nil, err
	}

	if p.ExcludeDynamicPartitions {
		var kept []Task
		for _, task := range tasks {
			if ft, ok := task.(*FlashTask); ok &&
				!p.ShouldFlashInUserspace(ft.PartitionAndSlot(ctx)) {
				kept = append(kept, task)
			}
		}
		tasks = kept
	}
	return tasks, nil
}

func (p *Plan) collectTasksFromScript(ctx context.Context) ([]Task, error) {
	contents, err := p.Source.ReadFile("fastboot-info.txt")
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			slog.Debug("no_flashing_script", "detail", "falling back to image catalog")
			return p.collectTasksFromImageList(ctx)
		}
		return nil, err
	}
	return p.ParseScript(ctx, contents)
}

type imageEntry struct {
	entry *catalog.Entry
	slot  string
}

// collectTasksFromImageList builds the fallback plan from the static
// catalog: boot-critical images first, so the boot chain is consistent
// before the super sync may reboot into userspace fastboot, then the
// super sync, then the OS images.
func (p *Plan) collectTasksFromImageList(ctx context.Context) ([]Task, error) {
	var bootImages, osImages []imageEntry
	for i := range p.Entries {
		entry := &p.Entries[i]
		slotSel := p.SlotOverride
		if entry.IsSecondary() {
			if p.SkipSecondary {
				continue
			}
			slotSel = p.SecondarySlot
		}
		switch entry.Type {
		case catalog.BootCritical:
			bootImages = append(bootImages, imageEntry{entry, slotSel})
		case catalog.Normal:
			osImages = append(osImages, imageEntry{entry, slotSel})
		}
	}

	var tasks []Task
	if err := p.addFlashTasks(bootImages, &tasks); err != nil {
		return nil, err
	}
	tasks = append(tasks, NewUpdateSuperTask(p))
	if err := p.addFlashTasks(osImages, &tasks); err != nil {
		return nil, err
	}
	return p.finishTasks(ctx, tasks), nil
}

func (p *Plan) addFlashTasks(images []imageEntry, tasks *[]Task) error {
	for _, img := range images {
		f, err := p.Source.OpenFile(img.entry.ImageFile)
		if err != nil {
			if img.entry.OptionalIfAbsent && errors.Is(err, source.ErrNotFound) {
				continue
			}
			return fmt.Errorf("could not load '%s': %w", img.entry.ImageFile, err)
		}
		f.Close()
		*tasks = append(*tasks, NewFlashTask(p, img.slot, img.entry.Partition, img.entry.ImageFile,
			fastboot.IsVBMetaPartition(img.entry.Partition)))
	}
	return nil
}

// finishTasks runs the shared finishing pass over a built task list:
// collapse dynamic-partition work into one optimized super rewrite
// when applicable, otherwise inject zero-resizes so every logical
// partition starts from zero extents for optimal allocation.
func (p *Plan) finishTasks(ctx context.Context, tasks []Task) []Task {
	if opt, trimmed := InitializeOptimizedFlashSuper(ctx, p, tasks); opt != nil {
		return append(trimmed, opt)
	}
	if !p.addResizeTasks(ctx, &tasks) {
		slog.Warn("resize_tasks_not_added")
	}
	return tasks
}

// addResizeTasks inserts a zero-resize for every dynamic partition
// immediately before the first dynamic-partition flash.
func (p *Plan) addResizeTasks(ctx context.Context, tasks *[]Task) bool {
	if p.superMetadata() == nil {
		return false
	}

	var resizes []Task
	loc := -1
	for i, task := range *tasks {
		ft, ok := task.(*FlashTask)
		if !ok || !p.ShouldFlashInUserspace(ft.PartitionAndSlot(ctx)) {
			continue
		}
		if loc < 0 {
			loc = i
		}
		resizes = append(resizes, NewResizeTask(p, ft.Partition, "0", p.SlotOverride))
	}
	if loc < 0 {
		return false
	}

	out := make([]Task, 0, len(*tasks)+len(resizes))
	out = append(out, (*tasks)[:loc]...)
	out = append(out, resizes...)
	out = append(out, (*tasks)[loc:]...)
	*tasks = out
	return true
}
