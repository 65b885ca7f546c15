package filetools

import (
	"context"
	"strings"
	"testing"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/pkg/host"
	"github.com/chatit-cloud/neuroos/pkg/host/mock"
)

func TestNewToolsRegister(t *testing.T) {
	t.Parallel()

	reg := engine.NewRegistry()
	if err := reg.RegisterAll(NewTools()); err != nil {
		t.Fatalf("RegisterAll() unexpected error: %v", err)
	}
	if reg.Len() != 5 {
		t.Errorf("registered %d tools, want 5", reg.Len())
	}

	del, ok := reg.Get("delete_path")
	if !ok {
		t.Fatal("delete_path not registered")
	}
	if !del.RequiresConfirmation {
		t.Error("delete_path should require confirmation")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// read_file / write_file
// ─────────────────────────────────────────────────────────────────────────────

func TestWriteThenReadFile(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()

	res, err := writeFile(ctx, map[string]any{"path": "notes/today.md", "content": "buy milk"}, h.Context())
	if err != nil {
		t.Fatalf("writeFile() unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("writeFile() result not successful: %q", res.Message)
	}
	if res.Message != "Wrote 8 bytes to notes/today.md." {
		t.Errorf("message = %q", res.Message)
	}

	res, err = readFile(ctx, map[string]any{"path": "notes/today.md"}, h.Context())
	if err != nil {
		t.Fatalf("readFile() unexpected error: %v", err)
	}
	if !strings.Contains(res.Message, "buy milk") {
		t.Errorf("message %q should contain the file content", res.Message)
	}
	if !strings.HasPrefix(res.Message, "Contents of notes/today.md:") {
		t.Errorf("message %q should lead with the path", res.Message)
	}
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	_, err := readFile(context.Background(), map[string]any{"path": "ghost.txt"}, h.Context())
	if err == nil {
		t.Fatal("readFile() expected error for missing file")
	}
	if !strings.HasPrefix(err.Error(), "filetools:") {
		t.Errorf("error %q should be prefixed with 'filetools:'", err)
	}
}

func TestReadFileEmpty(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()
	if err := h.WriteFile(ctx, "blank.txt", nil); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}

	res, err := readFile(ctx, map[string]any{"path": "blank.txt"}, h.Context())
	if err != nil {
		t.Fatalf("readFile() unexpected error: %v", err)
	}
	if res.Message != "The file blank.txt is empty." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestReadFileClipsLargeContent(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()
	big := strings.Repeat("x", maxInlineBytes+100)
	if err := h.WriteFile(ctx, "big.log", []byte(big)); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}

	res, err := readFile(ctx, map[string]any{"path": "big.log"}, h.Context())
	if err != nil {
		t.Fatalf("readFile() unexpected error: %v", err)
	}
	if !strings.Contains(res.Message, "[truncated") {
		t.Error("large file content should be clipped in the message")
	}
	if len(res.Message) > maxInlineBytes+200 {
		t.Errorf("message is %d bytes, should be clamped near %d", len(res.Message), maxInlineBytes)
	}
}

func TestWriteFileRequiresPath(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	_, err := writeFile(context.Background(), map[string]any{"content": "x"}, h.Context())
	if err == nil {
		t.Fatal("writeFile() expected error for missing path")
	}
	if !strings.Contains(err.Error(), `"path"`) {
		t.Errorf("error %q should name the missing argument", err)
	}
}

func TestFileToolsWithoutWorkspace(t *testing.T) {
	t.Parallel()

	res, err := readFile(context.Background(), map[string]any{"path": "x"}, &host.Context{})
	if err != nil {
		t.Fatalf("readFile() unexpected error: %v", err)
	}
	if res.Success {
		t.Error("readFile() should fail gracefully without workspace capability")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// list_files / create_folder / delete_path
// ─────────────────────────────────────────────────────────────────────────────

func TestListFiles(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()
	if err := h.WriteFile(ctx, "notes/a.txt", []byte("aaa")); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}
	if err := h.MakeDir(ctx, "notes/archive"); err != nil {
		t.Fatalf("MakeDir() unexpected error: %v", err)
	}

	res, err := listFiles(ctx, map[string]any{"path": "notes"}, h.Context())
	if err != nil {
		t.Fatalf("listFiles() unexpected error: %v", err)
	}
	want := "notes contains 2 entries:\n- a.txt (3 bytes)\n- archive/"
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}

	entries, ok := res.Data.([]host.DirEntry)
	if !ok {
		t.Fatalf("Data = %T, want []host.DirEntry", res.Data)
	}
	if len(entries) != 2 {
		t.Errorf("Data has %d entries, want 2", len(entries))
	}
}

func TestListFilesDefaultsToRoot(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()
	if err := h.WriteFile(ctx, "top.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}

	res, err := listFiles(ctx, map[string]any{}, h.Context())
	if err != nil {
		t.Fatalf("listFiles() unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Message, "The workspace contains") {
		t.Errorf("message = %q, want workspace-root phrasing", res.Message)
	}
}

func TestListFilesEmptyFolder(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()
	if err := h.MakeDir(ctx, "empty"); err != nil {
		t.Fatalf("MakeDir() unexpected error: %v", err)
	}

	res, err := listFiles(ctx, map[string]any{"path": "empty"}, h.Context())
	if err != nil {
		t.Fatalf("listFiles() unexpected error: %v", err)
	}
	if res.Message != "empty is empty." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestCreateFolder(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()

	res, err := createFolder(ctx, map[string]any{"path": "projects/demo"}, h.Context())
	if err != nil {
		t.Fatalf("createFolder() unexpected error: %v", err)
	}
	if res.Message != "Created folder projects/demo." {
		t.Errorf("message = %q", res.Message)
	}

	if _, err := h.ListDir(ctx, "projects/demo"); err != nil {
		t.Errorf("folder should exist after create_folder: %v", err)
	}
}

func TestDeletePath(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	ctx := context.Background()
	if err := h.WriteFile(ctx, "old/junk.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}

	res, err := deletePath(ctx, map[string]any{"path": "old/junk.txt"}, h.Context())
	if err != nil {
		t.Fatalf("deletePath() unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("deletePath() result not successful: %q", res.Message)
	}
	if _, ok := h.FileContents("old/junk.txt"); ok {
		t.Error("file should be gone after delete_path")
	}
}

func TestDeletePathMissing(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	_, err := deletePath(context.Background(), map[string]any{"path": "nope"}, h.Context())
	if err == nil {
		t.Fatal("deletePath() expected error for missing path")
	}
}
