package classify

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/noteport/noteport/internal/types"
)

var (
	wikiLinkRe = regexp.MustCompile(`(!?)\[\[([^\]\|#\n]+)(#[^\]\|\n]*)?(?:\|([^\]\n]*))?\]\]`)
	inlineTag  = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/-]*\p{L}[\p{L}\p{N}_/-]*)`)
	fencedCode = regexp.MustCompile("(?ms)^(```|~~~).*?^(```|~~~)")
	inlineCode = regexp.MustCompile("`[^`\n]*`")
	mdLinkFull = regexp.MustCompile(`\[([^\]\n]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
)

// Parse extracts a ContentInfo from the full content of a file whose type
// has already been detected. fallbackTitle is used when the content names
// no title of its own.
func Parse(content []byte, ct types.ContentType, fallbackTitle string) (*types.ContentInfo, error) {
	info := &types.ContentInfo{Type: ct, Title: fallbackTitle}

	switch ct {
	case types.ContentMarkdown:
		fm, format, body, err := SplitFrontMatter(content)
		if err != nil {
			return nil, err
		}
		info.FrontMatter = fm
		info.FrontMatterFormat = format
		info.Body = string(body)
		if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
			info.Title = strings.TrimSpace(t)
		}
		info.Tags = mergeTags(frontMatterTags(fm), InlineTags(info.Body))
		info.Links = markdownLinks(info.Body)
		info.WikiLinks = WikiLinks(info.Body)

	case types.ContentHTML:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
			info.Title = t
		} else if h := strings.TrimSpace(doc.Find("h1").First().Text()); h != "" {
			info.Title = h
		}
		body, err := doc.Find("body").Html()
		if err != nil || strings.TrimSpace(body) == "" {
			body = string(content)
		}
		info.Body = strings.TrimSpace(body)
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			info.Links = append(info.Links, types.Link{Text: strings.TrimSpace(s.Text()), URL: href})
		})

	case types.ContentJSON, types.ContentText:
		info.Body = string(content)

	default:
		return nil, fmt.Errorf("cannot parse %s content", ct)
	}
	return info, nil
}

// WikiLinks finds [[target]], [[target|label]] and ![[embed]] references.
func WikiLinks(body string) []types.WikiLink {
	var out []types.WikiLink
	for _, m := range wikiLinkRe.FindAllStringSubmatchIndex(body, -1) {
		link := types.WikiLink{
			Raw:    body[m[0]:m[1]],
			Embed:  m[3] > m[2],
			Target: strings.TrimSpace(body[m[4]:m[5]]),
			Offset: m[0],
		}
		if m[8] >= 0 {
			link.Label = strings.TrimSpace(body[m[8]:m[9]])
		}
		out = append(out, link)
	}
	return out
}

// InlineTags returns #tags used in prose, ignoring code and headings.
func InlineTags(body string) []string {
	stripped := fencedCode.ReplaceAllString(body, "")
	stripped = inlineCode.ReplaceAllString(stripped, "")
	var tags []string
	for _, line := range strings.Split(stripped, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") && mdHeading.MatchString(strings.TrimSpace(line)) {
			continue
		}
		for _, m := range inlineTag.FindAllStringSubmatch(line, -1) {
			tags = append(tags, m[1])
		}
	}
	return tags
}

func frontMatterTags(fm map[string]any) []string {
	var tags []string
	for _, key := range []string{"tags", "tag"} {
		switch v := fm[key].(type) {
		case string:
			for _, t := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				tags = append(tags, strings.TrimPrefix(t, "#"))
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					tags = append(tags, strings.TrimPrefix(s, "#"))
				}
			}
		}
	}
	return tags
}

func mergeTags(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func markdownLinks(body string) []types.Link {
	var out []types.Link
	for _, m := range mdLinkFull.FindAllStringSubmatch(body, -1) {
		out = append(out, types.Link{Text: m[1], URL: m[2]})
	}
	return out
}
