// Package require interprets a package's device-declaration script
// (android-info.txt) and gates flashing on the device matching it.
package require

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fftools/fastflash/pkg/catalog"
	"github.com/fftools/fastflash/pkg/fastboot"
)

// Line is one parsed requirement.
type Line struct {
	// Name is the device variable to check.
	Name string
	// Product scopes the line to one product; empty means all.
	Product string
	// Invert turns the membership test into a rejection.
	Invert bool
	// Options are the accepted (or rejected) values; a trailing *
	// makes an option a prefix wildcard.
	Options []string
}

var (
	// "require product=alpha|beta", "reject version=x", bare "name=v".
	requireRejectRe = regexp.MustCompile(`^(require\s+|reject\s+)?\s*(\S+)\s*=\s*(.*)$`)
	// "require-for-product:gamma version-bootloader=istanbul".
	requireProductRe = regexp.MustCompile(`^require-for-product:\s*(\S+)\s+(\S+)\s*=\s*(.*)$`)
)

// ParseLine parses one script line. Returns false on a syntax error.
func ParseLine(text string) (*Line, bool) {
	l := &Line{}
	var rawOptions string

	if m := requireRejectRe.FindStringSubmatch(text); m != nil && !strings.HasPrefix(m[2], "require-for-product:") {
		l.Invert = strings.TrimSpace(m[1]) == "reject"
		l.Name = m[2]
		rawOptions = m[3]
	} else if m := requireProductRe.FindStringSubmatch(text); m != nil {
		l.Product = m[1]
		l.Name = m[2]
		rawOptions = m[3]
	} else {
		return nil, false
	}

	// Work around an unfortunate historical name mismatch.
	if l.Name == "board" {
		l.Name = "product"
	}

	for _, option := range strings.Split(rawOptions, "|") {
		l.Options = append(l.Options, strings.TrimSpace(option))
	}
	return l, true
}

// matches tests value against the option set, honoring the trailing-*
// prefix wildcard.
func (l *Line) matches(value string) bool {
	match := false
	for _, option := range l.Options {
		if option == value ||
			(strings.HasSuffix(option, "*") && strings.HasPrefix(value, option[:len(option)-1])) {
			match = true
			break
		}
	}
	if l.Invert {
		return !match
	}
	return match
}

// Gate checks a requirement script against a device.
type Gate struct {
	driver  fastboot.VarGetter
	entries []catalog.Entry
	force   bool
}

// NewGate creates a gate over the run's catalog copy. force demotes
// requirement mismatches to warnings.
func NewGate(d fastboot.VarGetter, entries []catalog.Entry, force bool) *Gate {
	return &Gate{driver: d, entries: entries, force: force}
}

// Check runs every line of the script. The first failed, non-ignored
// requirement aborts unless the gate was forced.
func (g *Gate) Check(ctx context.Context, script []byte) error {
	curProduct, err := g.driver.GetVar(ctx, fastboot.VarProduct)
	if err != nil {
		slog.Warn("getvar_product_failed", "error", err)
	}

	for _, text := range strings.Split(string(script), "\n") {
		text = strings.TrimRight(text, "\r")
		if text == "" {
			continue
		}

		line, ok := ParseLine(text)
		if !ok {
			slog.Warn("requirement_syntax_error", "line", text)
			continue
		}

		if line.Name == "partition-exists" {
			if err := g.handlePartitionExists(ctx, line.Options); err != nil {
				return err
			}
			continue
		}

		if err := g.checkLine(ctx, curProduct, line); err != nil {
			if !g.force {
				return err
			}
			slog.Warn("requirement_not_met_forced", "error", err)
		}
	}
	return nil
}

func (g *Gate) checkLine(ctx context.Context, curProduct string, line *Line) error {
	if line.Product != "" && line.Product != curProduct {
		slog.Info("requirement_ignored",
			"var", line.Name, "product", curProduct, "required_for", line.Product)
		return nil
	}

	value, err := g.driver.GetVar(ctx, line.Name)
	if err != nil {
		return fmt.Errorf("could not getvar for %q: %w", line.Name, err)
	}

	if line.matches(value) {
		slog.Info("requirement_ok", "var", line.Name, "value", value)
		return nil
	}

	verb := "requires"
	if line.Invert {
		verb = "rejects"
	}
	return fmt.Errorf("device %s is '%s'; update %s '%s'",
		line.Name, value, verb, strings.Join(line.Options, "' or '"))
}

// handlePartitionExists confirms a partition the package insists on.
// Added for devices that shipped new partitions which older host tools
// silently skipped: the device can declare the partition mandatory,
// clearing its optional-if-absent flag.
func (g *Gate) handlePartitionExists(ctx context.Context, options []string) error {
	if len(options) == 0 {
		return fmt.Errorf("partition-exists requires a partition name")
	}
	partition := options[0]

	hasSlot, err := g.driver.GetVar(ctx, fastboot.VarHasSlot+":"+partition)
	if err != nil || (hasSlot != "yes" && hasSlot != "no") {
		return fmt.Errorf("device doesn't have required partition %s", partition)
	}

	known := false
	for i := range g.entries {
		if g.entries[i].Nickname == partition {
			g.entries[i].OptionalIfAbsent = false
			known = true
		}
	}
	if !known {
		return fmt.Errorf("device requires partition %s which is not known to this tool", partition)
	}
	slog.Info("partition_now_mandatory", "partition", partition)
	return nil
}
