package source

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fftools/fastflash/pkg/security"
)

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "boot.img"), []byte("bootimage"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewDirSource(dir)
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}

	data, err := src.ReadFile("boot.img")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "bootimage" {
		t.Errorf("ReadFile = %q", data)
	}

	f, err := src.OpenFile("boot.img")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "bootimage" {
		t.Errorf("OpenFile content = %q", got)
	}

	if _, err := src.ReadFile("missing.img"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
	if _, err := src.OpenFile("missing.img"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
}

func TestNewDirSource_Errors(t *testing.T) {
	if _, err := NewDirSource(""); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := NewDirSource("/no/such/dir"); err == nil {
		t.Error("expected error for missing directory")
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDirSource(file); err == nil {
		t.Error("expected error for non-directory path")
	}
}

func writeZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.zip")
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestZipSource(t *testing.T) {
	path := writeZip(t, map[string][]byte{
		"android-info.txt": []byte("require product=walleye\n"),
		"boot.img":         []byte("bootimage"),
	})

	src, err := OpenZipSource(path, nil)
	if err != nil {
		t.Fatalf("OpenZipSource: %v", err)
	}
	defer src.Close()

	data, err := src.ReadFile("android-info.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "require product=walleye\n" {
		t.Errorf("ReadFile = %q", data)
	}

	f, err := src.OpenFile("boot.img")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	// The extracted handle must be seekable.
	if _, err := f.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	rest, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(rest) != "image" {
		t.Errorf("seeked read = %q, want image", rest)
	}

	if _, err := src.ReadFile("missing.img"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing entry err = %v, want ErrNotFound", err)
	}
}

func TestZipSource_ValidatorRejectsOversizedEntry(t *testing.T) {
	path := writeZip(t, map[string][]byte{
		"system.img": bytes.Repeat([]byte{0xff}, 2048),
	})

	v := security.NewValidator(1024, 1<<20, 1000.0)
	src, err := OpenZipSource(path, v)
	if err != nil {
		t.Fatalf("OpenZipSource: %v", err)
	}
	defer src.Close()

	if _, err := src.ReadFile("system.img"); err == nil {
		t.Error("expected validator rejection for oversized entry")
	}
}

func TestOpenZipSource_BadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenZipSource(path, nil); err == nil {
		t.Error("expected error for a corrupt archive")
	}
}
