package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReportFilesExcludesTempFiles(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, dir, "PS-OHLR_DUAT_Daily Report_WK21_2025.docx")
	touch(t, dir, "~$PS-OHLR_DUAT_Daily Report_WK21_2025.docx")

	if diff := cmp.Diff([]string{want}, ReportFiles(dir)); diff != "" {
		t.Fatalf("ReportFiles mismatch (-want +got):\n%s", diff)
	}
}

func TestReportFilesMatchesPatternAndSorts(t *testing.T) {
	dir := t.TempDir()
	b := touch(t, dir, "PS-OHLR_DUAT_Daily Report_WK22_2025.docx")
	a := touch(t, dir, "PS-OHLR_DUAT_Daily Report_WK21_2025.docx")
	touch(t, dir, "notes.docx")
	touch(t, dir, "PS-OHLR_DUAT_Daily Report_WK21_2025.pdf")
	if err := os.Mkdir(filepath.Join(dir, "PS-OHLR_DUAT_Daily Report_dir.docx"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if diff := cmp.Diff([]string{a, b}, ReportFiles(dir)); diff != "" {
		t.Fatalf("ReportFiles mismatch (-want +got):\n%s", diff)
	}
}

func TestReportFilesMissingFolder(t *testing.T) {
	got := ReportFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	file := touch(t, t.TempDir(), "plain.txt")
	if got := ReportFiles(file); len(got) != 0 {
		t.Fatalf("expected no files for a non-directory, got %v", got)
	}
}

func TestRunFoldsOutcomesAndReportsProgress(t *testing.T) {
	files := []string{"/r/a.docx", "/r/bad.docx", "/r/c.docx"}
	process := func(path string) Outcome[string] {
		if filepath.Base(path) == "bad.docx" {
			return Skipped[string](path, errors.New("corrupt"))
		}
		return Done(path, []string{filepath.Base(path)})
	}

	type call struct {
		Name     string
		Fraction float64
	}
	var calls []call
	batch, err := Run(context.Background(), files, process, func(name string, f float64) {
		calls = append(calls, call{name, f})
	}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"a.docx", "c.docx"}, batch.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if batch.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", batch.Processed)
	}
	if diff := cmp.Diff([]Skip{{File: "bad.docx", Reason: "corrupt"}}, batch.Skipped); diff != "" {
		t.Fatalf("skip log mismatch (-want +got):\n%s", diff)
	}
	if len(calls) != 3 || calls[2].Fraction != 1.0 || calls[0].Name != "a.docx" {
		t.Fatalf("unexpected progress calls: %+v", calls)
	}
}

func TestRunStopsBetweenFilesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	files := []string{"one", "two", "three"}
	var seen []string
	process := func(path string) Outcome[string] {
		seen = append(seen, path)
		if path == "two" {
			cancel()
		}
		return Done(path, []string{path})
	}

	batch, err := Run(ctx, files, process, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// the file in flight when cancel fires is finished
	if diff := cmp.Diff([]string{"one", "two"}, batch.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if len(seen) != 2 {
		t.Fatalf("expected processing to stop after two files, saw %v", seen)
	}
}

func TestRunEmpty(t *testing.T) {
	batch, err := Run(context.Background(), nil, func(string) Outcome[int] { return Done[int]("", nil) }, nil, nil)
	if err != nil || len(batch.Records) != 0 || batch.Records == nil {
		t.Fatalf("unexpected empty run result: %+v, %v", batch, err)
	}
}
