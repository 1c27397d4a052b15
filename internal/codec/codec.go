// Package codec reads and regenerates the item blocks embedded in the host
// HTML documents.
//
// Matching is textual: a block starts at the opening tag carrying the
// schema's class and ends at the next "</div>", whatever nesting lies in
// between. Everything outside the managed blocks is preserved byte for byte.
package codec

import "strings"

const closeTag = "</div>"

// ValueField selects how the third field of a block is encoded.
type ValueField int

const (
	// ValueParagraph stores the value as the text of a <p> element.
	ValueParagraph ValueField = iota
	// ValueHref stores the value as the href of an <a> element.
	ValueHref
)

// Schema describes one kind of managed block.
type Schema struct {
	// Class is the marker class on the block's opening div.
	Class string
	// Marker is the insertion-marker comment new blocks are placed after.
	Marker string
	// Value selects the encoding of the third field.
	Value ValueField
	// LinkText is the anchor text for ValueHref blocks.
	LinkText string

	skeleton string
}

// Insertion markers recognised in host documents.
const (
	UpdatesMarker   = "<!-- Les mises à jour existantes s'insèrent ici -->"
	DocumentsMarker = "<!-- Les documents ajoutés s'insèrent ici -->"
)

var (
	// Updates is the schema of the site-updates document.
	Updates = Schema{
		Class:  "update",
		Marker: UpdatesMarker,
		Value:  ValueParagraph,
		skeleton: "<!DOCTYPE html>\n" +
			`<html lang="fr"><head><meta charset="UTF-8"><title>TIPE - Mises à jour</title></head><body>` + "\n" +
			`<div class="container">` + UpdatesMarker + "</div>\n" +
			"</body></html>\n",
	}

	// Documents is the schema of the documents page.
	Documents = Schema{
		Class:    "doc-item",
		Marker:   DocumentsMarker,
		Value:    ValueHref,
		LinkText: "Ouvrir",
		skeleton: "<!DOCTYPE html>\n" +
			`<html lang="fr"><head><meta charset="UTF-8"><title>Documents</title></head><body>` + "\n" +
			`<div class="container">` + DocumentsMarker + "</div>\n" +
			"</body></html>\n",
	}
)

// Record is one flat block: title (or name), date, and body (or reference).
type Record struct {
	Title string
	Date  string
	Value string
}

// OpenTag returns the opening tag that starts a block of this schema.
func (s Schema) OpenTag() string {
	return `<div class="` + s.Class + `">`
}

// Skeleton returns the minimal document synthesized when the host document
// does not exist yet.
func (s Schema) Skeleton() string {
	return s.skeleton
}

// Parse extracts every block of schema s from doc, in document order.
// Missing sub-elements yield empty fields; an opening tag without a closing
// "</div>" ends the scan.
func Parse(doc string, s Schema) []Record {
	open := s.OpenTag()
	var out []Record
	pos := 0
	for {
		start, end, ok := nextBlock(doc, open, pos)
		if !ok {
			return out
		}
		block := doc[start:end]
		pos = end

		rec := Record{
			Title: extractTag(block, "strong"),
			Date:  extractTag(block, "em"),
		}
		switch s.Value {
		case ValueParagraph:
			rec.Value = extractTag(block, "p")
		case ValueHref:
			rec.Value = extractHref(block)
		}
		out = append(out, rec)
	}
}

// Render emits the fixed template for every record, in order.
func Render(records []Record, s Schema) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("\n    ")
		b.WriteString(s.OpenTag())
		b.WriteString("\n      <strong>")
		b.WriteString(r.Title)
		b.WriteString("</strong>\n      <em>")
		b.WriteString(r.Date)
		b.WriteString("</em>\n      ")
		switch s.Value {
		case ValueParagraph:
			b.WriteString("<p>")
			b.WriteString(r.Value)
			b.WriteString("</p>")
		case ValueHref:
			b.WriteString(`<a href="`)
			b.WriteString(r.Value)
			b.WriteString(`" target="_blank">`)
			b.WriteString(s.LinkText)
			b.WriteString("</a>")
		}
		b.WriteString("\n    </div>\n")
	}
	return b.String()
}

// Merge removes every existing block of schema s from doc and inserts
// fragment in its place: right after the first insertion marker, or, when
// the marker is absent, right before the first "</div>". A document with
// neither gets the fragment appended.
func Merge(doc, fragment string, s Schema) string {
	out := RemoveBlocks(doc, s)
	if i := strings.Index(out, s.Marker); i >= 0 {
		at := i + len(s.Marker)
		return out[:at] + fragment + out[at:]
	}
	if i := strings.Index(out, closeTag); i >= 0 {
		return out[:i] + fragment + out[i:]
	}
	return out + fragment
}

// RemoveBlocks deletes every block of schema s. When a block sits on its own
// line, the line break and indentation in front of it and the line break
// after it go too, so a rendered block disappears without a trace. A block
// sharing its line with other content loses only its own bytes.
func RemoveBlocks(doc string, s Schema) string {
	open := s.OpenTag()
	for {
		start, end, ok := nextBlock(doc, open, 0)
		if !ok {
			return doc
		}
		start, end = widenToLine(doc, start, end)
		doc = doc[:start] + doc[end:]
	}
}

func nextBlock(doc, open string, from int) (start, end int, ok bool) {
	i := strings.Index(doc[from:], open)
	if i < 0 {
		return 0, 0, false
	}
	start = from + i
	j := strings.Index(doc[start:], closeTag)
	if j < 0 {
		return 0, 0, false
	}
	return start, start + j + len(closeTag), true
}

func widenToLine(doc string, start, end int) (int, int) {
	after := len(doc) - end
	switch {
	case strings.HasPrefix(doc[end:], "\r\n"):
		after = 2
	case strings.HasPrefix(doc[end:], "\n"):
		after = 1
	case after != 0:
		// Content follows on the same line.
		return start, end
	}
	i := start
	for i > 0 && (doc[i-1] == ' ' || doc[i-1] == '\t') {
		i--
	}
	if i == 0 || doc[i-1] != '\n' {
		return start, end
	}
	i--
	if i > 0 && doc[i-1] == '\r' {
		i--
	}
	return i, end + after
}

func extractTag(block, tag string) string {
	open := "<" + tag + ">"
	s := strings.Index(block, open)
	if s < 0 {
		return ""
	}
	s += len(open)
	e := strings.Index(block[s:], "</"+tag+">")
	if e < 0 {
		return ""
	}
	return strings.TrimSpace(block[s : s+e])
}

func extractHref(block string) string {
	const attr = `href="`
	s := strings.Index(block, attr)
	if s < 0 {
		return ""
	}
	s += len(attr)
	e := strings.IndexByte(block[s:], '"')
	if e < 0 {
		return ""
	}
	return block[s : s+e]
}
