package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriter_NoRotationBelowLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	for i := 0; i < 10; i++ {
		if _, err := rw.Write([]byte("short line\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if rw.Size() != 110 {
		t.Errorf("Size() = %d, want 110", rw.Size())
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("unexpected backup file")
	}
}

func TestRotatingWriter_RotatesAndKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := []byte(strings.Repeat("x", 600*1024))
	for i := 0; i < 4; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	for _, suffix := range []string{".1", ".2"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("expected backup %s: %v", suffix, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backup beyond MaxBackups was kept")
	}
	if rw.Size() != int64(len(chunk)) {
		t.Errorf("Size() = %d, want %d", rw.Size(), len(chunk))
	}
}

func TestRotatingWriter_ZeroBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := []byte(strings.Repeat("y", 700*1024))
	_, _ = rw.Write(chunk)
	_, _ = rw.Write(chunk)

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("backup written with MaxBackups=0")
	}
	if rw.Size() != int64(len(chunk)) {
		t.Errorf("Size() = %d, want %d", rw.Size(), len(chunk))
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := []byte(strings.Repeat("z", 700*1024))
	_, _ = rw.Write(chunk)
	_, _ = rw.Write(chunk)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path + ".1.gz"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("compressed backup was not produced")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed writer")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
