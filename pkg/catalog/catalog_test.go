package catalog

import "testing"

func TestTableIsACopy(t *testing.T) {
	a := Table()
	b := Table()

	entry := Find(a, "init_boot")
	if entry == nil {
		t.Fatal("init_boot missing from table")
	}
	entry.OptionalIfAbsent = false

	if other := Find(b, "init_boot"); other == nil || !other.OptionalIfAbsent {
		t.Error("mutation of one table copy leaked into another")
	}
}

func TestFind(t *testing.T) {
	entries := Table()

	if e := Find(entries, "boot"); e == nil || e.ImageFile != "boot.img" {
		t.Errorf("Find(boot) = %+v", e)
	}
	if e := Find(entries, "nonexistent"); e != nil {
		t.Errorf("Find(nonexistent) = %+v, want nil", e)
	}
	// Secondary-slot variants have no nickname and must never be found
	// by the empty string.
	if e := Find(entries, ""); e != nil {
		t.Errorf("Find(\"\") = %+v, want nil", e)
	}
}

func TestSecondaryEntries(t *testing.T) {
	var secondaries int
	for _, e := range Table() {
		if e.IsSecondary() {
			secondaries++
			if !e.OptionalIfAbsent {
				t.Errorf("secondary image %s must be optional", e.ImageFile)
			}
		}
	}
	if secondaries == 0 {
		t.Error("table carries no secondary-slot images")
	}
}

func TestMandatoryImages(t *testing.T) {
	for _, nickname := range []string{"boot", "system"} {
		e := Find(Table(), nickname)
		if e == nil || e.OptionalIfAbsent {
			t.Errorf("%s should be mandatory", nickname)
		}
	}
}
