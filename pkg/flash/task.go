package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fftools/fastflash/pkg/fastboot"
	"github.com/fftools/fastflash/pkg/slot"
	"github.com/fftools/fastflash/pkg/source"
	"github.com/fftools/fastflash/pkg/transform"
)

// Task is one step of a flashing run. A failed task terminates the
// whole run; the device may be left partially flashed, and re-running
// is idempotent per partition.
type Task interface {
	Run(ctx context.Context) error
}

// FlashTask writes one image file to one partition, expanded across
// the slots its selector covers.
type FlashTask struct {
	plan *Plan
	// Slot is the selector this task flashes to; empty means the
	// device's current slot.
	Slot string
	// Partition is the base partition name, before slot suffixing. It
	// may carry a colon suffix naming a vendor ramdisk fragment.
	Partition string
	// ImageFile is the source entry to flash.
	ImageFile string
	// ApplyVBMeta patches verity flags into this image when disabling
	// verity or verification was requested.
	ApplyVBMeta bool
}

func NewFlashTask(p *Plan, slotSel, partition, imageFile string, applyVBMeta bool) *FlashTask {
	return &FlashTask{plan: p, Slot: slotSel, Partition: partition, ImageFile: imageFile, ApplyVBMeta: applyVBMeta}
}

// PartitionAndSlot is the concrete partition name this task writes,
// used for dynamic-partition classification. Not meaningful for the
// "all" selector.
func (t *FlashTask) PartitionAndSlot(ctx context.Context) string {
	s := t.Slot
	if s == "" {
		s = slot.Current(ctx, t.plan.Driver)
	}
	if s == "" {
		return t.Partition
	}
	return t.Partition + "_" + s
}

func (t *FlashTask) Run(ctx context.Context) error {
	names, err := slot.Expand(ctx, t.plan.Driver, t.Partition, t.Slot, true)
	if err != nil {
		return err
	}
	for _, name := range names {
		if t.plan.ShouldFlashInUserspace(name) &&
			!fastboot.IsUserspace(ctx, t.plan.Driver) && !t.plan.Force {
			return fmt.Errorf("partition %s is dynamic and should be flashed via userspace fastboot; "+
				"reboot to fastboot and try again, or use --force to overwrite a fixed partition", name)
		}
		if err := t.plan.doFlash(ctx, name, t.ImageFile, t.ApplyVBMeta); err != nil {
			return err
		}
	}
	return nil
}

// doFlash loads one image, runs it through the transform pipeline, and
// writes it to the named partition.
func (p *Plan) doFlash(ctx context.Context, pname, fname string, applyVBMeta bool) error {
	slog.Info("flash", "partition", pname, "image", fname)

	f, err := p.Source.OpenFile(fname)
	if err != nil {
		return fmt.Errorf("could not load '%s': %w", fname, err)
	}
	buf, loadErr := transform.Load(ctx, p.Driver, p.Limits, f)
	f.Close()
	if loadErr != nil {
		return fmt.Errorf("could not load '%s': %w", fname, loadErr)
	}

	if err := p.sendSignature(ctx, fname); err != nil {
		return err
	}

	if fastboot.IsLogical(ctx, p.Driver, pname) {
		size := strconv.FormatInt(buf.ImageSize, 10)
		if err := p.Driver.ResizePartition(ctx, pname, size); err != nil {
			return err
		}
	}

	pname, err = transform.RepackRamdisk(ctx, p.Driver, pname, buf, p.RamdiskReplacer)
	if err != nil {
		return err
	}
	return p.flashBuffer(ctx, pname, buf, applyVBMeta)
}

// sendSignature installs the image's detached signature when the
// package carries one. Absence is the normal case.
func (p *Plan) sendSignature(ctx context.Context, fname string) error {
	sigName := fname
	if dot := strings.Index(fname, "."); dot >= 0 {
		sigName = fname[:dot]
	}
	sig, err := p.Source.ReadFile(sigName + ".sig")
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := p.Driver.Download(ctx, "signature", sig); err != nil {
		return err
	}
	return p.Driver.RawCommand(ctx, "signature", "installing signature")
}

// flashBuffer applies the remaining transform stages and transfers the
// buffer, sparse buffers as ordered sub-operations.
func (p *Plan) flashBuffer(ctx context.Context, partition string, buf *transform.Buffer, applyVBMeta bool) error {
	// Footer relocation only applies to raw images on static
	// partitions; moving bytes inside a sparse encoding would corrupt
	// it, and logical partitions are exactly image-sized.
	if buf.Kind == transform.KindRaw &&
		!fastboot.IsLogical(ctx, p.Driver, partition) &&
		!p.ShouldFlashInUserspace(partition) {
		partitionSize, err := fastboot.PartitionSize(ctx, p.Driver, partition)
		if err != nil {
			return err
		}
		if partitionSize > 0 && int64(partitionSize) < buf.Size {
			slog.Warn("footer_relocation_skipped",
				"partition", partition, "partition_size", partitionSize, "image_size", buf.Size)
		}
		if moved, ok := transform.CopyFooter(buf.Data, int64(partitionSize)); ok {
			buf.Data = moved
			buf.Size = int64(len(moved))
		}
	}

	if p.DisableVerity || p.DisableVerification {
		patch := false
		inBoot := false
		if applyVBMeta {
			patch = true
		} else if !fastboot.HasVBMetaPartition(ctx, p.Driver) &&
			(partition == "boot" || partition == "boot_a" || partition == "boot_b") {
			patch, inBoot = true, true
		}
		if patch {
			if buf.Kind != transform.KindRaw {
				return fmt.Errorf("cannot rewrite verity flags in sparse image for %s", partition)
			}
			patched, err := transform.PatchVBMetaFlags(buf.Data, inBoot, p.DisableVerity, p.DisableVerification)
			if err != nil {
				return err
			}
			buf.Data = patched
		}
	}

	switch buf.Kind {
	case transform.KindSparse:
		for i, chunk := range buf.Chunks {
			if err := p.Driver.FlashPartition(ctx, partition, chunk, i+1, len(buf.Chunks)); err != nil {
				return err
			}
		}
		return nil
	case transform.KindRaw:
		return p.Driver.FlashPartition(ctx, partition, buf.Data, 0, 0)
	default:
		return fmt.Errorf("unknown buffer kind %d", buf.Kind)
	}
}

// WipeTask erases one partition. Reformatting after the erase is left
// to the device's first boot; image generation is out of scope here.
type WipeTask struct {
	plan      *Plan
	Partition string
}

func NewWipeTask(p *Plan, partition string) *WipeTask {
	return &WipeTask{plan: p, Partition: partition}
}

func (t *WipeTask) Run(ctx context.Context) error {
	slog.Info("wipe", "partition", t.Partition)
	if err := t.plan.Driver.Erase(ctx, t.Partition); err != nil {
		return err
	}
	slog.Info("wipe_done", "partition", t.Partition, "detail", "not automatically formatting")
	return nil
}

// RebootTask reboots the device, optionally into a named target.
// Rebooting into userspace fastboot waits for the device to return.
type RebootTask struct {
	plan   *Plan
	Target string
}

func NewRebootTask(p *Plan, target string) *RebootTask {
	return &RebootTask{plan: p, Target: target}
}

func (t *RebootTask) Run(ctx context.Context) error {
	switch t.Target {
	case "":
		return t.plan.Driver.Reboot(ctx)
	case "fastboot", "userspace":
		if fastboot.IsUserspace(ctx, t.plan.Driver) {
			return nil
		}
		return t.plan.RebootToUserspace(ctx)
	default:
		return t.plan.Driver.RebootTo(ctx, t.Target)
	}
}

// ResizeTask resizes a logical partition, expanded for its slot.
type ResizeTask struct {
	plan      *Plan
	Partition string
	Size      string
	Slot      string
}

func NewResizeTask(p *Plan, partition, size, slotSel string) *ResizeTask {
	return &ResizeTask{plan: p, Partition: partition, Size: size, Slot: slotSel}
}

func (t *ResizeTask) Run(ctx context.Context) error {
	names, err := slot.Expand(ctx, t.plan.Driver, t.Partition, t.Slot, false)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := t.plan.Driver.ResizePartition(ctx, name, t.Size); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTask deletes a logical partition.
type DeleteTask struct {
	plan      *Plan
	Partition string
}

func NewDeleteTask(p *Plan, partition string) *DeleteTask {
	return &DeleteTask{plan: p, Partition: partition}
}

func (t *DeleteTask) Run(ctx context.Context) error {
	return t.plan.Driver.DeletePartition(ctx, t.Partition)
}

// UpdateSuperTask syncs the super partition's table from
// super_empty.img, rebooting into userspace fastboot first when
// needed. A package without super_empty.img has nothing to sync.
type UpdateSuperTask struct {
	plan *Plan
}

func NewUpdateSuperTask(p *Plan) *UpdateSuperTask {
	return &UpdateSuperTask{plan: p}
}

func (t *UpdateSuperTask) Run(ctx context.Context) error {
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
	cmd := "update-super:" + superName
	if t.plan.Wipe {
		cmd += ":wipe"
	}
	return t.plan.Driver.RawCommand(ctx, cmd, "Updating super partition")
}
