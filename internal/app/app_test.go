package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"duat/internal/docx/docxtest"
	"duat/internal/domain"
)

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("REPORT_FOLDER", "")
	t.Setenv("RESCAN_SCHEDULE", "")
	t.Setenv("WATCH_FOLDER", "")
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_CHANNEL_ID", "")

	reports := filepath.Join(dir, "reports")
	if err := os.Mkdir(reports, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := docxtest.New().
		Paragraph("Programme progress").
		Table(
			docxtest.Row(docxtest.T("Date"), docxtest.T("Description"), docxtest.T("Qty")),
			docxtest.Row(docxtest.T("Mon 19/5"), docxtest.T("C9081 KTL"), docxtest.T("3")),
		).
		Table(
			docxtest.Row(docxtest.T("Date"), docxtest.T("Details"), docxtest.T("Qty"), docxtest.T("Done by")),
			docxtest.Row(docxtest.T("Mon 19/5"), docxtest.T("CBM KTL"), docxtest.T("2"), docxtest.T("S2x1")),
		)
	if err := doc.WriteFile(filepath.Join(reports, "PS-OHLR_DUAT_Daily Report_WK21_2025.docx")); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return reports
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScanCommandJSON(t *testing.T) {
	reports := testEnv(t)

	out, err := execute(t, "scan", reports, "--json")
	if err != nil {
		t.Fatalf("scan failed: %v\n%s", err, out)
	}
	var body struct {
		TotalFiles   int                     `json:"total_files"`
		TotalRecords int                     `json:"total_records"`
		MaxWeek      int                     `json:"max_week"`
		Records      []domain.DeliveryRecord `json:"records"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if body.TotalFiles != 1 || body.MaxWeek != 21 || body.TotalRecords == 0 || body.Records[0].Project != "C9081" {
		t.Fatalf("unexpected scan output %+v", body)
	}
}

func TestScanCommandUsesConfiguredFolderAndSaves(t *testing.T) {
	reports := testEnv(t)
	t.Setenv("REPORT_FOLDER", reports)

	out, err := execute(t, "scan", "--save")
	if err != nil {
		t.Fatalf("scan failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Parsed 1 reports in "+reports) || !strings.Contains(out, "C9081") {
		t.Fatalf("unexpected scan output:\n%s", out)
	}

	out, err = execute(t, "runs")
	if err != nil {
		t.Fatalf("runs failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "delivery") || !strings.Contains(out, reports) {
		t.Fatalf("expected stored delivery run, got:\n%s", out)
	}
}

func TestScanCommandNeedsFolder(t *testing.T) {
	testEnv(t)
	if _, err := execute(t, "scan"); err == nil || !strings.Contains(err.Error(), "report_folder") {
		t.Fatalf("expected missing folder error, got %v", err)
	}
}

func TestManpowerCommand(t *testing.T) {
	reports := testEnv(t)

	out, err := execute(t, "manpower", reports)
	if err != nil {
		t.Fatalf("manpower failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 shift records, 1 jobs") {
		t.Fatalf("unexpected manpower output:\n%s", out)
	}
}

func TestSearchCommand(t *testing.T) {
	reports := testEnv(t)

	out, err := execute(t, "search", reports, "programme")
	if err != nil {
		t.Fatalf("search failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"programme" found in 1 of 1 reports`) || !strings.Contains(out, "[Paragraph] Programme progress") {
		t.Fatalf("unexpected search output:\n%s", out)
	}

	if _, err := execute(t, "search", reports, " "); err == nil {
		t.Fatal("expected error for blank keyword")
	}
}
