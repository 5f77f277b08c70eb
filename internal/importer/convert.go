package importer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/types"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var labelName = regexp.MustCompile(`^[\p{L}\p{N}_:-]+$`)

// Front matter keys that never become labels.
var reservedKeys = map[string]bool{
	"title":    true,
	"tags":     true,
	"tag":      true,
	"aliases":  true,
	"note-id":  true,
	"type":     true,
	"created":  true,
	"modified": true,
}

// HashContent returns the hex sha256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// noteBody turns parsed content into note type, mime and stored content.
func noteBody(info *types.ContentInfo) (noteType, mime, content string, err error) {
	switch info.Type {
	case types.ContentMarkdown:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(info.Body), &buf); err != nil {
			return "", "", "", fmt.Errorf("render markdown: %w", err)
		}
		return store.TypeText, "text/html", buf.String(), nil
	case types.ContentHTML:
		return store.TypeText, "text/html", info.Body, nil
	case types.ContentJSON:
		return store.TypeCode, "application/json", info.Body, nil
	case types.ContentText:
		return store.TypeCode, "text/plain", info.Body, nil
	default:
		return "", "", "", fmt.Errorf("no note conversion for %s", info.Type)
	}
}

// noteLabels builds the labels for an imported note: the path label, the
// content hash, one label per tag and one per scalar front matter key.
func noteLabels(pathAttr, rel, hash string, info *types.ContentInfo) []store.Attribute {
	attrs := []store.Attribute{
		store.Label(pathAttr, rel),
		store.Label(AttrContentHash, hash),
	}
	seen := map[string]bool{pathAttr: true, AttrContentHash: true}
	for _, tag := range info.Tags {
		name := strings.ReplaceAll(tag, "/", "_")
		if !labelName.MatchString(name) || seen[name] {
			continue
		}
		seen[name] = true
		attrs = append(attrs, store.Label(name, ""))
	}

	keys := make([]string, 0, len(info.FrontMatter))
	for k := range info.FrontMatter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reservedKeys[k] || seen[k] || !labelName.MatchString(k) {
			continue
		}
		v, ok := scalar(info.FrontMatter[k])
		if !ok {
			continue
		}
		seen[k] = true
		attrs = append(attrs, store.Label(k, v))
	}
	return attrs
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(x), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return "", false
	}
}
