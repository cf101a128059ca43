package slot

import (
	"context"
	"testing"

	"github.com/fftools/fastflash/pkg/fastboot"
)

func TestOther(t *testing.T) {
	tests := []struct {
		current string
		count   int
		want    string
	}{
		{"a", 2, "b"},
		{"b", 2, "a"},
		{"a", 3, "b"},
		{"b", 3, "c"},
		{"c", 3, "a"},
		{"a", 0, ""},
		{"", 2, ""},
	}

	for _, tt := range tests {
		if got := Other(tt.current, tt.count); got != tt.want {
			t.Errorf("Other(%q, %d) = %q, want %q", tt.current, tt.count, got, tt.want)
		}
	}
}

func TestCurrent_StripsUnderscore(t *testing.T) {
	d := fastboot.NewMock(map[string]string{
		fastboot.VarCurrentSlot: "_a",
	})
	if got := Current(context.Background(), d); got != "a" {
		t.Errorf("Current() = %q, want a", got)
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		vars     map[string]string
		selector string
		allowAll bool
		want     string
		wantErr  bool
	}{
		{"all passes when allowed", map[string]string{fastboot.VarSlotCount: "2"}, "all", true, "all", false},
		{"all degrades to a", map[string]string{fastboot.VarSlotCount: "2"}, "all", false, "a", false},
		{"all without slots", map[string]string{}, "all", false, "", true},
		{"letter in range", map[string]string{fastboot.VarSlotCount: "2"}, "b", false, "b", false},
		{"letter out of range", map[string]string{fastboot.VarSlotCount: "2"}, "c", false, "", true},
		{"no slot support", map[string]string{}, "a", false, "", true},
		{"other resolves", map[string]string{
			fastboot.VarSlotCount:   "2",
			fastboot.VarCurrentSlot: "a",
		}, "other", false, "b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Verify(ctx, fastboot.NewMock(tt.vars), tt.selector, tt.allowAll)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify(%q) = %q, want %q", tt.selector, got, tt.want)
			}
		})
	}
}

func TestExpand_SlottedPartition(t *testing.T) {
	ctx := context.Background()
	d := fastboot.NewMock(map[string]string{
		fastboot.VarSlotCount:          "2",
		fastboot.VarCurrentSlot:        "b",
		fastboot.VarHasSlot + ":boot":  "yes",
		fastboot.VarHasSlot + ":radio": "no",
	})

	tests := []struct {
		part     string
		selector string
		want     []string
	}{
		{"boot", "a", []string{"boot_a"}},
		{"boot", "", []string{"boot_b"}},
		{"boot", "all", []string{"boot_a", "boot_b"}},
		{"radio", "a", []string{"radio"}},
		{"radio", "all", []string{"radio"}},
	}

	for _, tt := range tests {
		got, err := Expand(ctx, d, tt.part, tt.selector, false)
		if err != nil {
			t.Fatalf("Expand(%q, %q): %v", tt.part, tt.selector, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Expand(%q, %q) = %v, want %v", tt.part, tt.selector, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Expand(%q, %q)[%d] = %q, want %q", tt.part, tt.selector, i, got[i], tt.want[i])
			}
		}
	}
}

func TestExpand_ColonSuffix(t *testing.T) {
	ctx := context.Background()
	d := fastboot.NewMock(map[string]string{
		fastboot.VarSlotCount:                "2",
		fastboot.VarCurrentSlot:              "a",
		fastboot.VarHasSlot + ":vendor_boot": "yes",
	})

	got, err := Expand(ctx, d, "vendor_boot:ramdisk", "", false)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 1 || got[0] != "vendor_boot_a:ramdisk" {
		t.Errorf("Expand = %v, want [vendor_boot_a:ramdisk]", got)
	}
}

func TestExpand_NoCurrentSlot(t *testing.T) {
	ctx := context.Background()
	d := fastboot.NewMock(map[string]string{
		fastboot.VarHasSlot + ":boot": "yes",
	})

	if _, err := Expand(ctx, d, "boot", "", false); err == nil {
		t.Error("expected error when current slot is unknown")
	}
}
