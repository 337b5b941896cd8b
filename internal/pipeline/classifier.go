package pipeline

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileKind identifies how an extracted file is handled.
type FileKind int

const (
	KindOther FileKind = iota
	KindJSON
	KindHTML
)

// SourceFile is one classified file ready for summarization. Text holds the
// plain-text rendering: raw JSON for json files, tag-stripped text for html.
type SourceFile struct {
	Name string
	Kind FileKind
	Text string
	// Fields parsed from a JSON document, nil for non-JSON files or when
	// the document is not an object.
	Fields map[string]interface{}
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Classify reads each extracted file and dispatches by extension. Unknown
// extensions are ignored; per-file read or parse failures are logged and
// skipped, never fatal.
func Classify(scratchDir string, names []string) []SourceFile {
	files := make([]SourceFile, 0, len(names))
	for _, name := range names {
		kind := kindForName(name)
		if kind == KindOther {
			continue
		}
		data, err := os.ReadFile(filepath.Join(scratchDir, name))
		if err != nil {
			log.Printf("read extracted file %q: %v", name, err)
			continue
		}
		switch kind {
		case KindJSON:
			if !json.Valid(data) {
				log.Printf("skipping malformed json file %q", name)
				continue
			}
			// Top-level arrays and scalars are valid reports too; they just
			// carry no patient fields to extract.
			var fields map[string]interface{}
			if err := json.Unmarshal(data, &fields); err != nil {
				fields = nil
			}
			files = append(files, SourceFile{
				Name:   name,
				Kind:   KindJSON,
				Text:   string(data),
				Fields: fields,
			})
		case KindHTML:
			files = append(files, SourceFile{
				Name: name,
				Kind: KindHTML,
				Text: stripHTML(string(data)),
			})
		}
	}
	return files
}

func kindForName(name string) FileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return KindJSON
	case ".html", ".htm":
		return KindHTML
	default:
		return KindOther
	}
}

// stripHTML removes markup tags and collapses whitespace into a single-space
// plain-text rendering.
func stripHTML(input string) string {
	text := htmlTagRe.ReplaceAllString(input, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
