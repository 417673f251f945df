// Package docx reads the table structure of Word documents: body paragraphs,
// top-level tables, their rows and cells, and the coloured text runs inside
// each cell. It reads word/document.xml straight out of the archive.
package docx

import (
	"archive/zip"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"duat/internal/pattern"
)

// ErrNotDocument is returned when a file is not a readable Word archive.
var ErrNotDocument = errors.New("not a docx document")

// Run is a span of text sharing one set of formatting.
type Run struct {
	Text  string
	Color *pattern.RGB // nil when the run has no explicit colour
}

// Paragraph is an ordered list of runs.
type Paragraph struct {
	Runs []Run
}

// Text concatenates the paragraph's runs.
func (p Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Cell is one table cell.
type Cell struct {
	Paragraphs []Paragraph
}

// Text joins the cell's paragraphs with newlines and trims the result.
func (c Cell) Text() string {
	parts := make([]string, len(c.Paragraphs))
	for i, p := range c.Paragraphs {
		parts[i] = p.Text()
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Runs returns every run of every paragraph in the cell.
func (c Cell) Runs() []Run {
	var runs []Run
	for _, p := range c.Paragraphs {
		runs = append(runs, p.Runs...)
	}
	return runs
}

// Row holds one cell per grid column. A horizontally merged cell appears once
// for each column it spans and a vertical merge continuation repeats the cell
// it continues.
type Row struct {
	Cells []Cell
}

// Table is a top-level document table.
type Table struct {
	Rows []Row
}

// Document is the readable content of one .docx file.
type Document struct {
	Path       string
	Paragraphs []Paragraph // body-level paragraphs outside any table
	Tables     []Table
}

// Open reads and parses the document at path.
func Open(path string) (*Document, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open zip %s: %v", ErrNotDocument, path, err)
	}
	defer r.Close()

	doc, err := parseArchive(&r.Reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// Read parses a document from an in-memory or on-disk archive.
func Read(ra io.ReaderAt, size int64) (*Document, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", ErrNotDocument, err)
	}
	return parseArchive(zr)
}

func parseArchive(zr *zip.Reader) (*Document, error) {
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("%w: word/document.xml not found in archive", ErrNotDocument)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return decodeBody(rc)
}

// cellSpec is a parsed <w:tc> before merges are resolved.
type cellSpec struct {
	cell  Cell
	span  int
	vcont bool // vMerge continuation of the cell above
}

// hiddenContainers hold floating content (text boxes, shapes, alternate
// renderings) whose paragraphs are not part of the enclosing text.
var hiddenContainers = map[string]bool{
	"drawing":          true,
	"pict":             true,
	"object":           true,
	"txbxContent":      true,
	"AlternateContent": true,
}

type reader struct {
	doc Document

	stack  []string
	depth  int // table nesting, 1 for top-level tables
	hidden int // nesting inside drawings and text boxes

	table [][]cellSpec
	row   []cellSpec
	cell  *cellSpec

	para   *Paragraph
	run    *Run
	inText bool
}

func decodeBody(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	rd := &reader{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if hiddenContainers[t.Name.Local] {
				rd.hidden++
			} else if rd.hidden == 0 {
				rd.start(t)
			}
			rd.stack = append(rd.stack, t.Name.Local)
		case xml.EndElement:
			if len(rd.stack) > 0 {
				rd.stack = rd.stack[:len(rd.stack)-1]
			}
			if hiddenContainers[t.Name.Local] {
				rd.hidden--
			} else if rd.hidden == 0 {
				rd.end(t)
			}
		case xml.CharData:
			if rd.hidden == 0 && rd.inText && rd.run != nil {
				rd.run.Text += string(t)
			}
		}
	}

	return &rd.doc, nil
}

func (rd *reader) parent() string {
	if len(rd.stack) == 0 {
		return ""
	}
	return rd.stack[len(rd.stack)-1]
}

// collecting reports whether paragraphs at the current position belong to the
// body or to a top-level table cell.
func (rd *reader) collecting() bool {
	return rd.depth == 0 || (rd.depth == 1 && rd.cell != nil)
}

func (rd *reader) start(t xml.StartElement) {
	switch t.Name.Local {
	case "tbl":
		rd.depth++
		if rd.depth == 1 {
			rd.table = nil
		}
	case "tr":
		if rd.depth == 1 {
			rd.row = nil
		}
	case "tc":
		if rd.depth == 1 {
			rd.cell = &cellSpec{span: 1}
		}
	case "gridSpan":
		if rd.depth == 1 && rd.cell != nil && rd.parent() == "tcPr" {
			if n, err := strconv.Atoi(attr(t, "val")); err == nil && n > 1 {
				rd.cell.span = n
			}
		}
	case "vMerge":
		if rd.depth == 1 && rd.cell != nil && rd.parent() == "tcPr" {
			v := attr(t, "val")
			rd.cell.vcont = v == "" || v == "continue"
		}
	case "p":
		if rd.collecting() {
			rd.para = &Paragraph{}
		}
	case "r":
		if rd.para != nil {
			rd.run = &Run{}
		}
	case "color":
		if rd.run != nil && rd.parent() == "rPr" {
			rd.run.Color = parseColor(attr(t, "val"))
		}
	case "t":
		rd.inText = rd.run != nil
	case "tab":
		if rd.run != nil && rd.parent() == "r" {
			rd.run.Text += "\t"
		}
	case "br", "cr":
		if rd.run != nil {
			rd.run.Text += "\n"
		}
	}
}

func (rd *reader) end(t xml.EndElement) {
	switch t.Name.Local {
	case "t":
		rd.inText = false
	case "r":
		if rd.run != nil && rd.para != nil {
			rd.para.Runs = append(rd.para.Runs, *rd.run)
		}
		rd.run = nil
	case "p":
		if rd.para == nil {
			return
		}
		switch {
		case rd.depth == 0:
			rd.doc.Paragraphs = append(rd.doc.Paragraphs, *rd.para)
		case rd.cell != nil:
			rd.cell.cell.Paragraphs = append(rd.cell.cell.Paragraphs, *rd.para)
		}
		rd.para = nil
	case "tc":
		if rd.depth == 1 && rd.cell != nil {
			rd.row = append(rd.row, *rd.cell)
			rd.cell = nil
		}
	case "tr":
		if rd.depth == 1 {
			rd.table = append(rd.table, rd.row)
			rd.row = nil
		}
	case "tbl":
		if rd.depth == 1 {
			rd.doc.Tables = append(rd.doc.Tables, resolveMerges(rd.table))
			rd.table = nil
		}
		if rd.depth > 0 {
			rd.depth--
		}
	}
}

// resolveMerges expands horizontal spans into grid columns and replaces
// vertical merge continuations with the cell above them.
func resolveMerges(rows [][]cellSpec) Table {
	var tbl Table
	var prev []Cell
	for _, specs := range rows {
		var cells []Cell
		for _, spec := range specs {
			for i := 0; i < spec.span; i++ {
				col := len(cells)
				c := spec.cell
				if spec.vcont && col < len(prev) {
					c = prev[col]
				}
				cells = append(cells, c)
			}
		}
		tbl.Rows = append(tbl.Rows, Row{Cells: cells})
		prev = cells
	}
	return tbl
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// parseColor decodes a w:color value such as "0000FF". "auto" and malformed
// values carry no colour.
func parseColor(val string) *pattern.RGB {
	if len(val) != 6 {
		return nil
	}
	b, err := hex.DecodeString(val)
	if err != nil {
		return nil
	}
	return &pattern.RGB{R: b[0], G: b[1], B: b[2]}
}
