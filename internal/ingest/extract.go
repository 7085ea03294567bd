package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Kind classifies how a candidate was found.
type Kind string

const (
	KindID       Kind = "id"
	KindCall     Kind = "call"
	KindTableRow Kind = "table_row"
)

// SnippetRadius is the number of bytes of context kept on each side of a
// match.
const SnippetRadius = 120

var (
	tangentID  = regexp.MustCompile(`\b(Tangent_[A-Za-z0-9_-]+)\b`)
	tangentCmd = regexp.MustCompile(`(?i)\btangent\.(commit|scan|resolve|index)\b`)
	tableRow   = regexp.MustCompile(`(?m)^\|.*Tangent_[A-Za-z0-9_-]+.*$`)
	timestamp  = regexp.MustCompile(`\b(\d{8}T\d{4,6})\b`)
)

// Candidate is one extracted tangent reference.
type Candidate struct {
	File      string `json:"file"`
	Kind      Kind   `json:"kind"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Snippet   string `json:"snippet"`
}

// Supported reports whether a file name has an extension the pipeline
// reads.
func Supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".md", ".txt", ".html", ".htm":
		return true
	}
	return false
}

// Text returns the searchable text of a file. JSON exports contribute
// their string values joined by newlines, falling back to the raw bytes
// when they do not parse. HTML contributes its visible text.
func Text(name string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		parts, err := jsonStrings(data)
		if err != nil {
			return string(data), nil
		}
		return strings.Join(parts, "\n"), nil
	case ".html", ".htm":
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("parse html %s: %w", name, err)
		}
		doc.Find("script, style, noscript").Remove()
		return doc.Text(), nil
	default:
		return string(data), nil
	}
}

// Scan finds tangent ids, tangent calls and markdown table rows mentioning
// a tangent id. Results are grouped by kind in that order, each in text
// order.
func Scan(file, text string) []Candidate {
	var out []Candidate
	for _, m := range tangentID.FindAllStringSubmatchIndex(text, -1) {
		s := snippet(text, m[0], m[1])
		out = append(out, Candidate{File: file, Kind: KindID, ID: text[m[2]:m[3]], Timestamp: findTimestamp(s), Snippet: s})
	}
	for _, m := range tangentCmd.FindAllStringIndex(text, -1) {
		s := snippet(text, m[0], m[1])
		out = append(out, Candidate{File: file, Kind: KindCall, ID: text[m[0]:m[1]], Timestamp: findTimestamp(s), Snippet: s})
	}
	for _, row := range tableRow.FindAllString(text, -1) {
		row = strings.TrimSpace(row)
		c := Candidate{File: file, Kind: KindTableRow, Timestamp: findTimestamp(row), Snippet: row}
		if m := tangentID.FindStringSubmatch(row); m != nil {
			c.ID = m[1]
		}
		out = append(out, c)
	}
	return out
}

// snippet cuts SnippetRadius bytes around [start, end), widened to rune
// boundaries, flattens newlines and trims.
func snippet(text string, start, end int) string {
	lo := max(0, start-SnippetRadius)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := min(len(text), end+SnippetRadius)
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(strings.ReplaceAll(text[lo:hi], "\n", " "))
}

func findTimestamp(s string) string {
	if m := timestamp.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// jsonStrings returns every string value in document order. Object keys
// are skipped.
func jsonStrings(data []byte) ([]string, error) {
	type frame struct{ object, wantKey bool }
	var (
		stack []frame
		out   []string
	)
	// advance records that a value was consumed in the enclosing container.
	advance := func() {
		if n := len(stack); n > 0 && stack[n-1].object {
			stack[n-1].wantKey = true
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch v := tok.(type) {
		case json.Delim:
			if v == '{' || v == '[' {
				advance()
				stack = append(stack, frame{object: v == '{', wantKey: true})
				continue
			}
			stack = stack[:len(stack)-1]
		case string:
			if n := len(stack); n > 0 && stack[n-1].object && stack[n-1].wantKey {
				stack[n-1].wantKey = false
				continue
			}
			out = append(out, v)
			advance()
		default:
			advance()
		}
	}
	return out, nil
}
