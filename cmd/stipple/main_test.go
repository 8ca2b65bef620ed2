package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    config
		wantErr bool
	}{
		{
			name: "defaults",
			args: []string{"in.png", "out.png"},
			want: config{src: "in.png", dst: "out.png", threshold: 1e-4, pointSize: 11, count: 1280, scale: 3, backend: "auto", seed: 1},
		},
		{
			name: "all positional",
			args: []string{"-backend", "jfa", "-seed", "9", "a", "b", "0.01", "4", "300", "1"},
			want: config{src: "a", dst: "b", threshold: 0.01, pointSize: 4, count: 300, scale: 1, backend: "jfa", seed: 9},
		},
		{name: "missing dst", args: []string{"a"}, wantErr: true},
		{name: "too many", args: []string{"a", "b", "1", "1", "1", "1", "1"}, wantErr: true},
		{name: "bad count", args: []string{"a", "b", "1e-4", "11", "zero"}, wantErr: true},
		{name: "zero scale", args: []string{"a", "b", "1e-4", "11", "10", "0"}, wantErr: true},
		{name: "unknown backend", args: []string{"-backend", "cuda", "a", "b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseArgs(%q) succeeded, want error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs(%q): %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func writeDisk(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			dx, dy := float64(x-w/2), float64(y-h/2)
			if dx*dx+dy*dy < float64(w*w)/9 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "disk.png")
	dst := filepath.Join(dir, "out.png")
	writeDisk(t, src, 24, 24)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-backend", "software", "-max-iter", "30", src, dst, "1e-3", "3", "40", "2"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "48x48\n") {
		t.Errorf("stdout does not start with the resolution: %q", stdout.String())
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	out, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := out.Bounds(); b.Dx() != 48 || b.Dy() != 48 {
		t.Errorf("output %v, want 48x48", b)
	}
	if _, _, bl, _ := out.At(0, 0).RGBA(); bl < 0xf000 {
		t.Error("corner of the output is not white")
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	for _, line := range lines[1:] {
		d, err := strconv.ParseFloat(line, 64)
		if err != nil {
			t.Fatalf("stdout line %q is not a delta: %v", line, err)
		}
		if d < 1e-3 {
			t.Errorf("printed delta %v below the threshold 1e-3", d)
		}
	}
}

func TestStippleFileExportsOnCancel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "disk.png")
	dst := filepath.Join(dir, "out.png")
	writeDisk(t, src, 24, 24)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config{
		src: src, dst: dst,
		threshold: 1e-4, pointSize: 3, count: 40, scale: 1,
		backend: "software", seed: 1,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := stippleFile(ctx, cfg, io.Discard, logger); err != nil {
		t.Fatalf("stippleFile with a cancelled context: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("no output after cancellation: %v", err)
	}
	defer f.Close()
	out, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := out.Bounds(); b.Dx() != 24 || b.Dy() != 24 {
		t.Errorf("output %v, want 24x24", b)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("replaces existing file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "out.png")
		if err := os.WriteFile(path, []byte("old contents"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := writeFileAtomic(path, []byte("new")); err != nil {
			t.Fatalf("writeFileAtomic: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "new" {
			t.Errorf("contents = %q, want %q", got, "new")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("directory holds %d entries, want only the output", len(entries))
		}
	})

	t.Run("failed rename leaves no temp file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "out.png")
		// A non-empty directory cannot be replaced by a file.
		if err := os.MkdirAll(filepath.Join(path, "sub"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := writeFileAtomic(path, []byte("data")); err == nil {
			t.Fatal("writeFileAtomic over a directory succeeded")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Name() != "out.png" {
			t.Errorf("directory entries after failure: %v", entries)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "out.png")
		if err := writeFileAtomic(path, []byte("data")); err == nil {
			t.Error("writeFileAtomic into a missing directory succeeded")
		}
	})
}

func TestRunFailsWithoutPartialOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "white.png")
	dst := filepath.Join(dir, "out.png")

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var stderr bytes.Buffer
	if code := run([]string{"-backend", "software", src, dst}, io.Discard, &stderr); code == 0 {
		t.Fatal("run on a white image succeeded")
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Errorf("stderr = %q, want a diagnostic", stderr.String())
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("output file exists after failure: %v", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	if code := run([]string{filepath.Join(t.TempDir(), "nope.png"), "out.png"}, io.Discard, io.Discard); code == 0 {
		t.Error("run with a missing input succeeded")
	}
}
