// Package slot resolves A/B slot selectors against a device's
// reported slot topology.
package slot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fftools/fastflash/pkg/fastboot"
)

// Count returns the device's slot count; zero means no A/B support.
func Count(ctx context.Context, d fastboot.VarGetter) int {
	value, err := d.GetVar(ctx, fastboot.VarSlotCount)
	if err != nil {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return count
}

// SupportsAB reports whether the device has at least two slots.
func SupportsAB(ctx context.Context, d fastboot.VarGetter) bool {
	return Count(ctx, d) >= 2
}

// Current returns the active slot letter, without the legacy leading
// underscore some bootloaders report. Empty when unsupported.
func Current(ctx context.Context, d fastboot.VarGetter) string {
	value, err := d.GetVar(ctx, fastboot.VarCurrentSlot)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(value, "_")
}

// Other returns the slot letter following current, wrapping around the
// slot count. Empty when the device has no slots.
func Other(current string, count int) string {
	if count == 0 || current == "" {
		return ""
	}
	next := (current[0]-'a'+1)%byte(count) + 'a'
	return string(next)
}

// Verify resolves a caller-supplied slot selector. "all" passes
// through only when allowAll; otherwise it degrades to the first slot.
// "other" resolves against the current slot. A single letter is
// checked against the slot count. Anything else is a usage error that
// lists the valid letters.
func Verify(ctx context.Context, d fastboot.VarGetter, selector string, allowAll bool) (string, error) {
	count := Count(ctx, d)
	if selector == "all" {
		if allowAll {
			return "all", nil
		}
		if count > 0 {
			return "a", nil
		}
		return "", fmt.Errorf("no known slots")
	}

	if count == 0 {
		return "", fmt.Errorf("device does not support slots")
	}

	if selector == "other" {
		other := Other(Current(ctx, d), count)
		if other == "" {
			return "", fmt.Errorf("no known slots")
		}
		return other, nil
	}

	if len(selector) == 1 && selector[0] >= 'a' && int(selector[0]-'a') < count {
		return selector, nil
	}

	valid := make([]string, count)
	for i := range valid {
		valid[i] = string(rune('a' + i))
	}
	return "", fmt.Errorf("slot %s does not exist; supported slots are: %s",
		selector, strings.Join(valid, " "))
}

// Expand maps a base partition name to the concrete per-slot names a
// selector covers. A name may carry a colon suffix (vendor_boot:ramdisk);
// only the prefix participates in slot queries and suffixing. selector
// "" means the current slot, "all" means every slot. forceSlot warns
// when a slot was requested for an unslotted partition.
func Expand(ctx context.Context, d fastboot.VarGetter, part, selector string, forceSlot bool) ([]string, error) {
	tokens := strings.SplitN(part, ":", 2)
	base := tokens[0]

	if selector == "all" {
		hasSlot, err := d.GetVar(ctx, fastboot.VarHasSlot+":"+base)
		if err != nil {
			return nil, fmt.Errorf("could not check if partition %s has slot all: %w", base, err)
		}
		if hasSlot != "yes" {
			return expandOne(ctx, d, tokens, "", forceSlot)
		}
		var names []string
		for i := 0; i < Count(ctx, d); i++ {
			expanded, err := expandOne(ctx, d, tokens, string(rune('a'+i)), forceSlot)
			if err != nil {
				return nil, err
			}
			names = append(names, expanded...)
		}
		return names, nil
	}

	return expandOne(ctx, d, tokens, selector, forceSlot)
}

func expandOne(ctx context.Context, d fastboot.VarGetter, tokens []string, selector string, forceSlot bool) ([]string, error) {
	base := tokens[0]
	hasSlot, err := d.GetVar(ctx, fastboot.VarHasSlot+":"+base)
	if err != nil {
		// If has-slot is not supported, the answer is no.
		hasSlot = "no"
	}
	if hasSlot != "yes" {
		if forceSlot && selector != "" {
			slog.Warn("partition_not_slotted", "partition", base, "requested_slot", selector)
		}
		return []string{strings.Join(tokens, ":")}, nil
	}

	slot := selector
	if slot == "" {
		slot = Current(ctx, d)
		if slot == "" {
			return nil, fmt.Errorf("failed to identify current slot")
		}
	}
	named := append([]string{base + "_" + slot}, tokens[1:]...)
	return []string{strings.Join(named, ":")}, nil
}
