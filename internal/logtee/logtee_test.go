package logtee

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotateTruncatesExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.run.txt")
	if err := os.WriteFile(path, []byte("stale data"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tee := New(path)
	tee.Rotate()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after rotate: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected an empty file after Rotate, got %q", data)
	}
}

func TestAppendConcatenatesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.run.txt")
	tee := New(path)
	tee.Rotate()

	tee.Append([]string{"hello ", "world"})
	tee.Append([]string{"!"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello world!" {
		t.Errorf("got %q, want %q", data, "hello world!")
	}
}

func TestAppendToMissingDirectoryIsNonFatal(t *testing.T) {
	tee := New(filepath.Join(t.TempDir(), "missing", "robot.run.txt"))
	n := tee.Append([]string{"dropped"})
	if n != 0 {
		t.Errorf("expected 0 bytes written on failure, got %d", n)
	}
}

func TestAppendEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.run.txt")
	tee := New(path)
	if n := tee.Append(nil); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("expected no file to be created by an empty append")
	}
}
