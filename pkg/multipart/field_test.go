package multipart

import (
	"errors"
	"os"
	"sync"
	"testing"
)

func TestTextField(t *testing.T) {
	f := NewField()
	if err := f.SetKind(KindText); err != nil {
		t.Fatalf("SetKind: %v", err)
	}
	if err := f.Accept([]byte("ab")); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := f.Accept([]byte("cd")); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got, err := f.TextContent()
	if err != nil {
		t.Fatalf("TextContent: %v", err)
	}
	if got != "abcd" {
		t.Errorf("TextContent = %q, want %q", got, "abcd")
	}

	if _, err := f.FileContent(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FileContent on text field: got %v, want ErrInvalidState", err)
	}
	if _, err := f.FileName(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FileName on text field: got %v, want ErrInvalidState", err)
	}
}

func TestKindRules(t *testing.T) {
	f := NewField()

	if err := f.Accept([]byte("x")); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Accept before SetKind: got %v, want ErrInvalidState", err)
	}
	if _, err := f.Kind(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Kind before SetKind: got %v, want ErrInvalidState", err)
	}

	if err := f.SetKind(KindFile); err != nil {
		t.Fatalf("SetKind: %v", err)
	}
	if err := f.SetKind(KindFile); err != nil {
		t.Errorf("re-setting the same kind should be a no-op, got %v", err)
	}
	if err := f.SetKind(KindText); !errors.Is(err, ErrInvalidState) {
		t.Errorf("changing kind: got %v, want ErrInvalidState", err)
	}
	if err := f.SetKind(Kind(42)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("invalid kind: got %v, want ErrInvalidState", err)
	}
}

func TestFileFieldInMemory(t *testing.T) {
	SetFieldStorage(MemoryStorage)
	defer SetFieldStorage(MemoryStorage)

	f := NewField()
	if err := f.SetKind(KindFile); err != nil {
		t.Fatalf("SetKind: %v", err)
	}
	f.SetFileName("report.pdf")
	f.SetMIMEType("application/pdf")

	if err := f.Accept([]byte("binary ")); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := f.Accept([]byte("payload")); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	content, err := f.FileContent()
	if err != nil {
		t.Fatalf("FileContent: %v", err)
	}
	if string(content) != "binary payload" {
		t.Errorf("FileContent = %q, want %q", content, "binary payload")
	}

	size, err := f.FileSize()
	if err != nil {
		t.Fatalf("FileSize: %v", err)
	}
	if size != int64(len("binary payload")) {
		t.Errorf("FileSize = %d, want %d", size, len("binary payload"))
	}

	if name, _ := f.FileName(); name != "report.pdf" {
		t.Errorf("FileName = %q", name)
	}
	if mt, _ := f.MIMEType(); mt != "application/pdf" {
		t.Errorf("MIMEType = %q", mt)
	}

	if _, err := f.TempFilePath(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("TempFilePath under MemoryStorage: got %v, want ErrInvalidState", err)
	}
	if _, err := f.TextContent(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("TextContent on file field: got %v, want ErrInvalidState", err)
	}
}

func TestFileFieldSpooled(t *testing.T) {
	SetFieldStorage(FilesystemStorage)
	defer SetFieldStorage(MemoryStorage)

	dir := t.TempDir()
	f := NewField()
	if err := f.SetKind(KindFile); err != nil {
		t.Fatalf("SetKind: %v", err)
	}
	f.SetTempDir(dir)

	if err := f.Accept([]byte("chunk1")); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := f.Accept([]byte("chunk2")); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	path, err := f.TempFilePath()
	if err != nil {
		t.Fatalf("TempFilePath: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading spooled file: %v", err)
	}
	if string(data) != "chunk1chunk2" {
		t.Errorf("spooled content = %q, want %q", data, "chunk1chunk2")
	}

	// In-memory reads are illegal for spooled uploads.
	if _, err := f.FileContent(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FileContent on spooled field: got %v, want ErrInvalidState", err)
	}
	if _, err := f.FileSize(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FileSize on spooled field: got %v, want ErrInvalidState", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file should be deleted on Close, Stat err = %v", err)
	}
	// Close is idempotent.
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestFileFieldNoTempDir(t *testing.T) {
	SetFieldStorage(FilesystemStorage)
	defer SetFieldStorage(MemoryStorage)

	f := NewField()
	if err := f.SetKind(KindFile); err != nil {
		t.Fatalf("SetKind: %v", err)
	}
	if err := f.Accept([]byte("x")); !errors.Is(err, ErrIO) {
		t.Errorf("Accept without temp dir: got %v, want ErrIO", err)
	}
}

// Concurrent fields sharing a temp directory never collide on a name.
func TestTempNameUniqueness(t *testing.T) {
	SetFieldStorage(FilesystemStorage)
	defer SetFieldStorage(MemoryStorage)

	dir := t.TempDir()
	const workers = 16

	paths := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := NewField()
			if err := f.SetKind(KindFile); err != nil {
				t.Errorf("SetKind: %v", err)
				return
			}
			f.SetTempDir(dir)
			if err := f.Accept([]byte("payload")); err != nil {
				t.Errorf("Accept: %v", err)
				return
			}
			paths[i], _ = f.TempFilePath()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			t.Fatal("missing temp path")
		}
		if seen[p] {
			t.Fatalf("duplicate temp path %q", p)
		}
		seen[p] = true
	}
}
