package require

import (
	"context"
	"strings"
	"testing"

	"github.com/fftools/fastflash/pkg/catalog"
	"github.com/fftools/fastflash/pkg/fastboot"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		text string
		want Line
		ok   bool
	}{
		{"require product=walleye", Line{Name: "product", Options: []string{"walleye"}}, true},
		{"require board=walleye", Line{Name: "product", Options: []string{"walleye"}}, true},
		{"version-bootloader=1.0|1.1", Line{Name: "version-bootloader", Options: []string{"1.0", "1.1"}}, true},
		{"reject version-baseband=0.9", Line{Name: "version-baseband", Invert: true, Options: []string{"0.9"}}, true},
		{"require-for-product:walleye version-bootloader=mw8998", Line{Name: "version-bootloader", Product: "walleye", Options: []string{"mw8998"}}, true},
		{"require partition-exists=init_boot", Line{Name: "partition-exists", Options: []string{"init_boot"}}, true},
		{"this is not a requirement", Line{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseLine(tt.text)
		if ok != tt.ok {
			t.Errorf("ParseLine(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.Name != tt.want.Name || got.Product != tt.want.Product || got.Invert != tt.want.Invert {
			t.Errorf("ParseLine(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
		if len(got.Options) != len(tt.want.Options) {
			t.Errorf("ParseLine(%q) options = %v, want %v", tt.text, got.Options, tt.want.Options)
			continue
		}
		for i := range got.Options {
			if got.Options[i] != tt.want.Options[i] {
				t.Errorf("ParseLine(%q) option %d = %q, want %q", tt.text, i, got.Options[i], tt.want.Options[i])
			}
		}
	}
}

func TestLineMatches(t *testing.T) {
	tests := []struct {
		name  string
		line  Line
		value string
		want  bool
	}{
		{"exact", Line{Options: []string{"1.0"}}, "1.0", true},
		{"miss", Line{Options: []string{"1.0"}}, "2.0", false},
		{"any of", Line{Options: []string{"1.0", "1.1"}}, "1.1", true},
		{"wildcard prefix", Line{Options: []string{"mw89*"}}, "mw8998-002", true},
		{"wildcard miss", Line{Options: []string{"mw89*"}}, "sdm845", false},
		{"reject hit", Line{Invert: true, Options: []string{"0.9"}}, "0.9", false},
		{"reject miss", Line{Invert: true, Options: []string{"0.9"}}, "1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.line.matches(tt.value); got != tt.want {
				t.Errorf("matches(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGateCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		vars    map[string]string
		script  string
		force   bool
		wantErr string
	}{
		{
			"all requirements met",
			map[string]string{
				"product":            "walleye",
				"version-bootloader": "1.1",
			},
			"require product=walleye\nrequire version-bootloader=1.0|1.1\n",
			false, "",
		},
		{
			"requirement failed",
			map[string]string{
				"product":            "walleye",
				"version-bootloader": "0.5",
			},
			"require version-bootloader=1.0|1.1\n",
			false, "update requires '1.0' or '1.1'",
		},
		{
			"rejection hit",
			map[string]string{"product": "walleye", "version-baseband": "0.9"},
			"reject version-baseband=0.9\n",
			false, "update rejects '0.9'",
		},
		{
			"other product scope ignored",
			map[string]string{"product": "taimen"},
			"require-for-product:walleye version-bootloader=mw8998\n",
			false, "",
		},
		{
			"matching product scope enforced",
			map[string]string{"product": "walleye", "version-bootloader": "old"},
			"require-for-product:walleye version-bootloader=mw8998\n",
			false, "update requires 'mw8998'",
		},
		{
			"force demotes failure",
			map[string]string{"product": "walleye", "version-bootloader": "0.5"},
			"require version-bootloader=1.0\n",
			true, "",
		},
		{
			"syntax error skipped",
			map[string]string{"product": "walleye"},
			"garbage line without equals\nrequire product=walleye\n",
			false, "",
		},
		{
			"blank lines skipped",
			map[string]string{"product": "walleye"},
			"\n\nrequire product=walleye\n\n",
			false, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(fastboot.NewMock(tt.vars), catalog.Table(), tt.force)
			err := gate.Check(ctx, []byte(tt.script))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Check err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGateCheck_PartitionExists(t *testing.T) {
	ctx := context.Background()
	entries := catalog.Table()
	initBoot := catalog.Find(entries, "init_boot")
	if initBoot == nil || !initBoot.OptionalIfAbsent {
		t.Fatal("init_boot should start optional")
	}

	d := fastboot.NewMock(map[string]string{
		"product":            "walleye",
		"has-slot:init_boot": "yes",
	})
	gate := NewGate(d, entries, false)

	if err := gate.Check(ctx, []byte("require partition-exists=init_boot\n")); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if initBoot.OptionalIfAbsent {
		t.Error("init_boot still optional after partition-exists")
	}
}

func TestGateCheck_PartitionExistsFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		vars   map[string]string
		script string
	}{
		{
			"has-slot inconclusive",
			map[string]string{"product": "walleye", "has-slot:init_boot": "maybe"},
			"require partition-exists=init_boot\n",
		},
		{
			"has-slot query fails",
			map[string]string{"product": "walleye"},
			"require partition-exists=init_boot\n",
		},
		{
			"unknown partition",
			map[string]string{"product": "walleye", "has-slot:mystery": "no"},
			"require partition-exists=mystery\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(fastboot.NewMock(tt.vars), catalog.Table(), false)
			if err := gate.Check(ctx, []byte(tt.script)); err == nil {
				t.Error("expected a fatal partition-exists error")
			}
		})
	}
}

func TestGateCheck_PartitionExistsFatalEvenWhenForced(t *testing.T) {
	ctx := context.Background()
	d := fastboot.NewMock(map[string]string{"product": "walleye"})
	gate := NewGate(d, catalog.Table(), true)

	if err := gate.Check(ctx, []byte("require partition-exists=init_boot\n")); err == nil {
		t.Error("partition-exists failure must not be demoted by force")
	}
}
