package classify

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// SplitFrontMatter separates a leading front matter block from body.
// YAML blocks are fenced by "---", TOML blocks by "+++". A file without a
// closed block is returned unchanged with a nil map.
func SplitFrontMatter(content []byte) (map[string]any, string, []byte, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	var fence, format string
	switch {
	case bytes.HasPrefix(content, []byte("---\n")), bytes.HasPrefix(content, []byte("---\r\n")):
		fence, format = "---", "yaml"
	case bytes.HasPrefix(content, []byte("+++\n")), bytes.HasPrefix(content, []byte("+++\r\n")):
		fence, format = "+++", "toml"
	default:
		return nil, "", content, nil
	}

	rest := content[bytes.IndexByte(content, '\n')+1:]
	end, after := findClosingFence(rest, fence)
	if end < 0 {
		return nil, "", content, nil
	}
	block := rest[:end]
	body := rest[after:]

	fm := map[string]any{}
	var err error
	if format == "yaml" {
		err = yaml.Unmarshal(block, &fm)
	} else {
		_, err = toml.Decode(string(block), &fm)
	}
	if err != nil {
		return nil, format, content, fmt.Errorf("invalid %s front matter: %w", format, err)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, format, body, nil
}

// findClosingFence returns the offset of the closing fence line and the
// offset just past it.
func findClosingFence(rest []byte, fence string) (int, int) {
	pos := 0
	for pos <= len(rest) {
		line := rest[pos:]
		nl := bytes.IndexByte(line, '\n')
		if nl >= 0 {
			line = line[:nl]
		}
		if string(bytes.TrimRight(line, "\r \t")) == fence {
			if nl < 0 {
				return pos, len(rest)
			}
			return pos, pos + nl + 1
		}
		if nl < 0 {
			return -1, -1
		}
		pos += nl + 1
	}
	return -1, -1
}

// RenderYAMLFrontMatter serializes fm as a fenced YAML block. Keys are
// written in the order given.
func RenderYAMLFrontMatter(keys []string, fm map[string]any) ([]byte, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		v, ok := fm[k]
		if !ok {
			continue
		}
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(node.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return nil, err
		}
		_ = enc.Close()
	}
	buf.WriteString("---\n")
	return buf.Bytes(), nil
}
