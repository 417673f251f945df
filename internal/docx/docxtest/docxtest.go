// Package docxtest builds minimal .docx archives for tests.
package docxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// Cell is the content of one generated table cell. Each line of Text becomes
// its own paragraph.
type Cell struct {
	Text  string
	Color string // hex w:color value, empty for none
	Span  int    // gridSpan, 0 or 1 for none
}

// T is a plain text cell.
func T(text string) Cell { return Cell{Text: text} }

// Blue is a cell whose runs are coloured pure blue.
func Blue(text string) Cell { return Cell{Text: text, Color: "0000FF"} }

// Colored is a cell whose runs carry the given hex colour.
func Colored(text, hex string) Cell { return Cell{Text: text, Color: hex} }

// Row groups cells into one table row.
func Row(cells ...Cell) []Cell { return cells }

// Doc accumulates body paragraphs and tables in document order.
type Doc struct {
	body strings.Builder
}

// New returns an empty document builder.
func New() *Doc { return &Doc{} }

// Paragraph appends a body paragraph.
func (d *Doc) Paragraph(text string) *Doc {
	d.body.WriteString(paragraphXML(text, ""))
	return d
}

// Table appends a table built from rows.
func (d *Doc) Table(rows ...[]Cell) *Doc {
	d.body.WriteString("<w:tbl>")
	for _, row := range rows {
		d.body.WriteString("<w:tr>")
		for _, c := range row {
			d.body.WriteString("<w:tc>")
			if c.Span > 1 {
				fmt.Fprintf(&d.body, `<w:tcPr><w:gridSpan w:val="%d"/></w:tcPr>`, c.Span)
			}
			lines := strings.Split(c.Text, "\n")
			for _, line := range lines {
				d.body.WriteString(paragraphXML(line, c.Color))
			}
			d.body.WriteString("</w:tc>")
		}
		d.body.WriteString("</w:tr>")
	}
	d.body.WriteString("</w:tbl>")
	return d
}

// Raw appends literal body XML.
func (d *Doc) Raw(fragment string) *Doc {
	d.body.WriteString(fragment)
	return d
}

// DocumentXML renders word/document.xml.
func (d *Doc) DocumentXML() string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		d.body.String() +
		`</w:body></w:document>`
}

// Bytes renders the whole archive.
func (d *Doc) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypes},
		{"word/document.xml", d.DocumentXML()},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders the archive to path.
func (d *Doc) WriteFile(path string) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func paragraphXML(text, color string) string {
	var sb strings.Builder
	sb.WriteString("<w:p><w:r>")
	if color != "" {
		fmt.Fprintf(&sb, `<w:rPr><w:color w:val="%s"/></w:rPr>`, color)
	}
	sb.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(&sb, []byte(text))
	sb.WriteString("</w:t></w:r></w:p>")
	return sb.String()
}

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`
