// Package classify labels files with a content type and extracts the
// structured parts (front matter, tags, links) of text formats.
//
// Detection looks at a small sample and the extension and applies these
// rules in order, first match wins:
//
//  1. the sample parses as JSON
//  2. the sample contains a doctype or HTML tag marker
//  3. the sample contains a markdown heading, fence or link
//  4. the extension table (with a linguist lookup for unknown extensions)
//  5. binary when the sample holds a NUL byte or fewer than 80% printable
//     characters, text otherwise
package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"

	"github.com/noteport/noteport/internal/types"
)

// SampleSize is how many leading bytes detection inspects.
const SampleSize = 1024

// PrintableThreshold is the minimum printable ratio for text.
const PrintableThreshold = 0.8

var (
	htmlMarker = regexp.MustCompile(`(?i)<!doctype\s+html|<html[\s>]|<head[\s>]|<body[\s>]|<(div|p|span|h[1-6]|table|ul|ol)[\s>]`)

	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	mdFence   = regexp.MustCompile("(?m)^(```|~~~)")
	mdLink    = regexp.MustCompile(`\[[^\]\n]*\]\([^)\n]+\)`)
)

// extensionTable is rule 4.
var extensionTable = map[string]types.ContentType{
	".md":       types.ContentMarkdown,
	".markdown": types.ContentMarkdown,
	".mdown":    types.ContentMarkdown,
	".html":     types.ContentHTML,
	".htm":      types.ContentHTML,
	".json":     types.ContentJSON,
	".txt":      types.ContentText,
	".text":     types.ContentText,
	".csv":      types.ContentText,
	".log":      types.ContentText,

	".png":  types.ContentBinary,
	".jpg":  types.ContentBinary,
	".jpeg": types.ContentBinary,
	".gif":  types.ContentBinary,
	".webp": types.ContentBinary,
	".bmp":  types.ContentBinary,
	".ico":  types.ContentBinary,
	".pdf":  types.ContentBinary,
	".zip":  types.ContentBinary,
	".gz":   types.ContentBinary,
	".tar":  types.ContentBinary,
	".mp3":  types.ContentBinary,
	".mp4":  types.ContentBinary,
	".wav":  types.ContentBinary,
	".webm": types.ContentBinary,
	".docx": types.ContentBinary,
	".xlsx": types.ContentBinary,
	".pptx": types.ContentBinary,
}

// Detect labels a sample taken from a file with extension ext (lower case,
// with the dot).
func Detect(sample []byte, ext string) types.ContentType {
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	if looksLikeJSON(sample) {
		return types.ContentJSON
	}
	if htmlMarker.Match(sample) {
		return types.ContentHTML
	}
	if mdHeading.Match(sample) || mdFence.Match(sample) || mdLink.Match(sample) {
		return types.ContentMarkdown
	}
	if ct, ok := extensionTable[ext]; ok {
		return ct
	}
	if ct, ok := byLanguage(ext); ok {
		return ct
	}
	if isBinary(sample) {
		return types.ContentBinary
	}
	return types.ContentText
}

// looksLikeJSON accepts a complete document, or a truncated sample whose
// tokens are valid up to the cut.
func looksLikeJSON(sample []byte) bool {
	trimmed := bytes.TrimSpace(sample)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	if json.Valid(trimmed) {
		return true
	}
	if len(sample) < SampleSize {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tokens := 0
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return tokens > 1
		}
		if err != nil {
			// A token cut in half at the sample boundary shows up as a
			// syntax error at the very end.
			var se *json.SyntaxError
			return errors.As(err, &se) && se.Offset >= int64(len(trimmed))-1 && tokens > 1
		}
		tokens++
	}
}

func byLanguage(ext string) (types.ContentType, bool) {
	if ext == "" {
		return "", false
	}
	lang, ok := enry.GetLanguageByExtension("file" + ext)
	if !ok || lang == "" {
		return "", false
	}
	switch lang {
	case "Markdown":
		return types.ContentMarkdown, true
	case "HTML":
		return types.ContentHTML, true
	case "JSON":
		return types.ContentJSON, true
	}
	switch enry.GetLanguageType(lang) {
	case enry.Programming, enry.Data, enry.Markup, enry.Prose:
		return types.ContentText, true
	}
	return "", false
}

func isBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	printable, total := 0, 0
	for len(sample) > 0 {
		r, size := utf8.DecodeRune(sample)
		sample = sample[size:]
		total++
		if r == utf8.RuneError && size == 1 {
			// A multibyte rune cut at the sample boundary is not evidence
			// of binary content.
			if len(sample) < utf8.UTFMax {
				total--
			}
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return false
	}
	return float64(printable)/float64(total) < PrintableThreshold
}

// MimeType picks a mime type for a labelled file. Binary files use the
// extension registry then content sniffing; text files use the language
// of the extension.
func MimeType(ct types.ContentType, name string, sample []byte) string {
	switch ct {
	case types.ContentMarkdown:
		return "text/markdown"
	case types.ContentHTML:
		return "text/html"
	case types.ContentJSON:
		return "application/json"
	case types.ContentText:
		if lang, ok := enry.GetLanguageByExtension(name); ok {
			if m, ok := languageMimes[lang]; ok {
				return m
			}
		}
		return "text/plain"
	}

	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = strings.ToLower(name[i:])
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return stripParams(m)
	}
	if len(sample) > 0 {
		return stripParams(http.DetectContentType(sample))
	}
	return "application/octet-stream"
}

func stripParams(m string) string {
	if i := strings.Index(m, ";"); i >= 0 {
		m = m[:i]
	}
	return strings.TrimSpace(m)
}

var languageMimes = map[string]string{
	"Go":         "text/x-go",
	"JavaScript": "application/javascript",
	"TypeScript": "text/x-typescript",
	"Python":     "text/x-python",
	"Java":       "text/x-java",
	"C":          "text/x-csrc",
	"C++":        "text/x-c++src",
	"C#":         "text/x-csharp",
	"Ruby":       "text/x-ruby",
	"PHP":        "application/x-httpd-php",
	"Rust":       "text/x-rustsrc",
	"Shell":      "text/x-sh",
	"CSS":        "text/css",
	"YAML":       "text/x-yaml",
	"XML":        "text/xml",
	"SQL":        "text/x-sql",
	"TOML":       "text/x-toml",
	"Dockerfile": "text/x-dockerfile",
	"Makefile":   "text/x-makefile",
}
