package exporter

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/noteport/noteport/internal/classify"
	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/types"
)

// Labels that describe bookkeeping rather than content. They never reach
// the front matter.
var internalLabels = map[string]bool{
	importer.AttrOriginalPath: true,
	importer.AttrObsidianPath: true,
	importer.AttrGitPath:      true,
	importer.AttrContentHash:  true,
	hierarchy.DirectoryAttr:   true,
}

var attachmentSrc = regexp.MustCompile(`^api/attachments/([^/]+)/`)

const linkToken = "NOTEPORTLINK%dEND"

// renderer turns stored note content into file bytes.
type renderer struct {
	format  importer.Format
	targets map[string]string // note or attachment ID -> planned path
	conv    *md.Converter
}

func newRenderer(format importer.Format, plan []types.FileInfo) *renderer {
	r := &renderer{
		format:  format,
		targets: make(map[string]string),
		conv:    md.NewConverter("", true, nil),
	}
	for _, f := range plan {
		switch f.Meta.Kind {
		case types.KindNote:
			r.targets[f.Meta.NoteID] = f.RelativePath
		case types.KindAttachment:
			r.targets[f.Meta.AttachmentID] = f.RelativePath
		}
	}
	return r
}

// note renders the file for one planned note entry.
func (r *renderer) note(f types.FileInfo, n *store.Note, content string) ([]byte, error) {
	switch f.Meta.ContentType {
	case types.ContentMarkdown:
		body, err := r.markdown(f.RelativePath, content)
		if err != nil {
			return nil, err
		}
		header, err := frontMatter(n)
		if err != nil {
			return nil, err
		}
		return append(header, []byte(body)...), nil
	default:
		return []byte(content), nil
	}
}

// markdown converts note HTML to markdown. Internal links become wikilinks
// for obsidian and relative links otherwise.
func (r *renderer) markdown(from, content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse note html: %w", err)
	}

	var wiki []string
	placeholder := func(link string) string {
		wiki = append(wiki, link)
		return fmt.Sprintf(linkToken, len(wiki)-1)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		id := internalID(href)
		t, ok := r.targets[id]
		if id == "" || !ok {
			return
		}
		label := strings.TrimSpace(s.Text())
		if r.format == importer.FormatObsidian {
			s.ReplaceWithHtml(placeholder(wikiLink(t, label, false)))
			return
		}
		s.SetAttr("href", relLink(from, t))
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		m := attachmentSrc.FindStringSubmatch(src)
		if m == nil {
			return
		}
		t, ok := r.targets[m[1]]
		if !ok {
			return
		}
		if r.format == importer.FormatObsidian {
			s.ReplaceWithHtml(placeholder(wikiLink(t, "", true)))
			return
		}
		s.SetAttr("src", relLink(from, t))
	})

	doc.Find("section.include-note[data-note-id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-note-id")
		t, ok := r.targets[id]
		if !ok {
			return
		}
		if r.format == importer.FormatObsidian {
			s.ReplaceWithHtml(placeholder(wikiLink(t, "", true)))
			return
		}
		s.ReplaceWithHtml(fmt.Sprintf(`<p><a href="%s">%s</a></p>`, relLink(from, t), path.Base(t)))
	})

	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render note html: %w", err)
	}
	out, err := r.conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	for i, link := range wiki {
		out = strings.Replace(out, fmt.Sprintf(linkToken, i), link, 1)
	}
	return strings.TrimSpace(out) + "\n", nil
}

// internalID extracts the note ID from a #root/... reference.
func internalID(href string) string {
	if !strings.HasPrefix(href, "#root/") {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(href, "#"), "/")
	return parts[len(parts)-1]
}

func wikiLink(rel, label string, embed bool) string {
	target := rel
	if path.Ext(rel) == ".md" {
		target = strings.TrimSuffix(rel, ".md")
	}
	var b strings.Builder
	if embed {
		b.WriteByte('!')
	}
	b.WriteString("[[")
	b.WriteString(target)
	if label != "" && label != path.Base(target) && label != target {
		b.WriteByte('|')
		b.WriteString(label)
	}
	b.WriteString("]]")
	return b.String()
}

// relLink is the URL of target relative to the file at from.
func relLink(from, target string) string {
	fromDir := strings.Split(path.Dir(from), "/")
	if fromDir[0] == "." {
		fromDir = nil
	}
	to := strings.Split(target, "/")
	i := 0
	for i < len(fromDir) && i < len(to)-1 && fromDir[i] == to[i] {
		i++
	}
	parts := make([]string, 0, len(fromDir)-i+len(to)-i)
	for range fromDir[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	return (&url.URL{Path: strings.Join(parts, "/")}).EscapedPath()
}

// frontMatter builds the YAML header of an exported note.
func frontMatter(n *store.Note) ([]byte, error) {
	keys := []string{"title", "note-id", "type", "created", "modified", "tags"}
	fm := map[string]any{
		"title":   n.Title,
		"note-id": n.ID,
		"type":    n.Type,
	}
	if !n.DateCreated.IsZero() {
		fm["created"] = n.DateCreated.UTC().Format("2006-01-02T15:04:05Z")
	}
	if !n.DateModified.IsZero() {
		fm["modified"] = n.DateModified.UTC().Format("2006-01-02T15:04:05Z")
	}
	var tags []string
	for _, a := range n.Labels() {
		if internalLabels[a.Name] {
			continue
		}
		if a.Value == "" {
			tags = append(tags, a.Name)
			continue
		}
		if _, dup := fm[a.Name]; dup {
			continue
		}
		fm[a.Name] = a.Value
		keys = append(keys, a.Name)
	}
	if len(tags) > 0 {
		fm["tags"] = tags
	}
	return classify.RenderYAMLFrontMatter(keys, fm)
}
