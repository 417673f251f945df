package docx_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"duat/internal/docx"
	"duat/internal/docx/docxtest"
	"duat/internal/pattern"

	"github.com/google/go-cmp/cmp"
)

func readBuilt(t *testing.T, d *docxtest.Doc) *docx.Document {
	t.Helper()
	data, err := d.Bytes()
	if err != nil {
		t.Fatalf("build docx: %v", err)
	}
	doc, err := docx.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return doc
}

func TestReadTablesAndParagraphs(t *testing.T) {
	doc := readBuilt(t, docxtest.New().
		Paragraph("Daily Report").
		Table(
			docxtest.Row(docxtest.T("Date"), docxtest.T("Description"), docxtest.T("Qty")),
			docxtest.Row(docxtest.T("Mon 19/5"), docxtest.Blue("C9081 CBM\nKTL"), docxtest.T("3")),
		).
		Paragraph("Remarks").
		Table(docxtest.Row(docxtest.T("second"), docxtest.T("table"))))

	if len(doc.Paragraphs) != 2 {
		t.Fatalf("expected 2 body paragraphs, got %d", len(doc.Paragraphs))
	}
	if got := doc.Paragraphs[1].Text(); got != "Remarks" {
		t.Fatalf("unexpected paragraph text %q", got)
	}
	if len(doc.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(doc.Tables))
	}

	rows := doc.Tables[0].Rows
	if len(rows) != 2 || len(rows[1].Cells) != 3 {
		t.Fatalf("unexpected table shape: %d rows", len(rows))
	}
	desc := rows[1].Cells[1]
	if got := desc.Text(); got != "C9081 CBM\nKTL" {
		t.Fatalf("cell text = %q", got)
	}
	runs := desc.Runs()
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if diff := cmp.Diff(&pattern.RGB{R: 0, G: 0, B: 0xFF}, runs[0].Color); diff != "" {
		t.Fatalf("run colour mismatch (-want +got):\n%s", diff)
	}
	if rows[1].Cells[0].Runs()[0].Color != nil {
		t.Fatal("expected uncoloured run to have nil colour")
	}
}

func TestCellTextTrimsAndJoins(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Table(
		docxtest.Row(docxtest.T("  spaced  "), docxtest.T("Hello\nWorld")),
	))
	cells := doc.Tables[0].Rows[0].Cells
	if got := cells[0].Text(); got != "spaced" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
	if got := cells[1].Text(); got != "Hello\nWorld" {
		t.Fatalf("expected joined paragraphs, got %q", got)
	}
}

func TestAutoColorIsNil(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Table(
		docxtest.Row(docxtest.Colored("a", "auto"), docxtest.Colored("b", "zzzzzz")),
	))
	for i, c := range doc.Tables[0].Rows[0].Cells {
		if c.Runs()[0].Color != nil {
			t.Fatalf("cell %d: expected nil colour", i)
		}
	}
}

func TestParagraphColorIsNotRunColor(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Raw(
		`<w:tbl><w:tr><w:tc><w:p><w:pPr><w:rPr><w:color w:val="0000FF"/></w:rPr></w:pPr>` +
			`<w:r><w:t>plain</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`,
	))
	run := doc.Tables[0].Rows[0].Cells[0].Runs()[0]
	if run.Color != nil {
		t.Fatalf("paragraph mark colour leaked into run: %+v", run.Color)
	}
}

func TestGridSpanRepeatsCell(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Table(
		docxtest.Row(docxtest.T("a"), docxtest.T("b"), docxtest.T("c")),
		docxtest.Row(docxtest.Cell{Text: "wide", Span: 2}, docxtest.T("z")),
	))
	cells := doc.Tables[0].Rows[1].Cells
	var got []string
	for _, c := range cells {
		got = append(got, c.Text())
	}
	if diff := cmp.Diff([]string{"wide", "wide", "z"}, got); diff != "" {
		t.Fatalf("merged row mismatch (-want +got):\n%s", diff)
	}
}

func TestVerticalMergeContinuesCellAbove(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Raw(
		`<w:tbl>` +
			`<w:tr><w:tc><w:tcPr><w:vMerge w:val="restart"/></w:tcPr><w:p><w:r><w:t>Mon 19/5</w:t></w:r></w:p></w:tc>` +
			`<w:tc><w:p><w:r><w:t>first</w:t></w:r></w:p></w:tc></w:tr>` +
			`<w:tr><w:tc><w:tcPr><w:vMerge/></w:tcPr><w:p/></w:tc>` +
			`<w:tc><w:p><w:r><w:t>second</w:t></w:r></w:p></w:tc></w:tr>` +
			`</w:tbl>`,
	))
	row := doc.Tables[0].Rows[1]
	if got := row.Cells[0].Text(); got != "Mon 19/5" {
		t.Fatalf("expected continuation to repeat cell above, got %q", got)
	}
	if got := row.Cells[1].Text(); got != "second" {
		t.Fatalf("unexpected second cell %q", got)
	}
}

func TestNestedTablesAreIgnored(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Raw(
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>outer</w:t></w:r></w:p>` +
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>inner</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
			`<w:p><w:r><w:t>after</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`,
	))
	if len(doc.Tables) != 1 {
		t.Fatalf("expected nested table to be skipped, got %d tables", len(doc.Tables))
	}
	if got := doc.Tables[0].Rows[0].Cells[0].Text(); got != "outer\nafter" {
		t.Fatalf("unexpected outer cell text %q", got)
	}
}

func TestTextBoxParagraphsAreIgnored(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Raw(
		`<w:tbl><w:tr><w:tc><w:p>`+
			`<w:r><w:t xml:space="preserve">C9081 CBM</w:t></w:r>`+
			`<w:r><w:drawing><w:txbxContent><w:p><w:r><w:t>note</w:t></w:r></w:p></w:txbxContent></w:drawing></w:r>`+
			`<w:r><w:t xml:space="preserve"> KTL</w:t></w:r>`+
			`</w:p></w:tc></w:tr></w:tbl>`+
			`<w:p xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006">`+
			`<w:r><w:t>body</w:t></w:r>`+
			`<w:r><mc:AlternateContent><mc:Fallback><w:pict><w:txbxContent>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			`</w:txbxContent></w:pict></mc:Fallback></mc:AlternateContent></w:r>`+
			`<w:r><w:t xml:space="preserve"> text</w:t></w:r></w:p>`,
	))
	if len(doc.Tables) != 1 {
		t.Fatalf("expected only the body table, got %d tables", len(doc.Tables))
	}
	if got := doc.Tables[0].Rows[0].Cells[0].Text(); got != "C9081 CBM KTL" {
		t.Fatalf("unexpected cell text %q", got)
	}
	if len(doc.Paragraphs) != 1 || doc.Paragraphs[0].Text() != "body text" {
		t.Fatalf("unexpected paragraphs %+v", doc.Paragraphs)
	}
}

func TestTabsAndBreaks(t *testing.T) {
	doc := readBuilt(t, docxtest.New().Raw(
		`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`,
	))
	if got := doc.Paragraphs[0].Text(); got != "a\tb\nc" {
		t.Fatalf("unexpected paragraph text %q", got)
	}
}

func TestOpenRejectsNonDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PS-OHLR_DUAT_Daily Report_WK21_2025.docx")
	if err := os.WriteFile(path, []byte("this is not a docx"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := docx.Open(path)
	if !errors.Is(err, docx.ErrNotDocument) {
		t.Fatalf("expected ErrNotDocument, got %v", err)
	}
}

func TestOpenRejectsZipWithoutDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("hello.txt")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte("hello"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	_ = f.Close()

	if _, err := docx.Open(path); !errors.Is(err, docx.ErrNotDocument) {
		t.Fatalf("expected ErrNotDocument, got %v", err)
	}
}

func TestOpenReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	if err := docxtest.New().Table(docxtest.Row(docxtest.T("x"), docxtest.T("y"))).WriteFile(path); err != nil {
		t.Fatalf("write docx: %v", err)
	}
	doc, err := docx.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if doc.Path != path || len(doc.Tables) != 1 {
		t.Fatalf("unexpected document: path=%q tables=%d", doc.Path, len(doc.Tables))
	}
}
