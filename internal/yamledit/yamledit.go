// Package yamledit edits YAML documents through their decoded data while
// keeping comments and key order of everything the edit leaves alone.
package yamledit

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultIndent matches the framework's own config files.
const DefaultIndent = 4

// Manipulator holds one parsed document.
type Manipulator struct {
	doc    yaml.Node
	indent int
}

// Parse reads a YAML document. Empty input yields an empty mapping.
func Parse(text string) (*Manipulator, error) {
	m := &Manipulator{indent: DefaultIndent}
	if strings.TrimSpace(text) != "" {
		if err := yaml.Unmarshal([]byte(text), &m.doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if m.doc.Kind != yaml.DocumentNode || len(m.doc.Content) == 0 {
		m.doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	return m, nil
}

// SetIndent changes the indentation used by Contents.
func (m *Manipulator) SetIndent(n int) {
	if n > 0 {
		m.indent = n
	}
}

func (m *Manipulator) root() *yaml.Node {
	return m.doc.Content[0]
}

// Data decodes the document into plain maps and slices.
func (m *Manipulator) Data() (map[string]any, error) {
	out := map[string]any{}
	if err := m.root().Decode(&out); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return out, nil
}

// SetData replaces the document's data. Keys whose values are unchanged keep
// their node, comments included; new keys go after existing ones; keys
// missing from data are dropped.
func (m *Manipulator) SetData(data map[string]any) error {
	var src yaml.Node
	if err := src.Encode(data); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	merge(m.root(), &src)
	return nil
}

// Contents renders the document.
func (m *Manipulator) Contents() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(m.indent)
	if err := enc.Encode(&m.doc); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func merge(dst, src *yaml.Node) {
	if sameValue(dst, src) {
		return
	}

	switch {
	case dst.Kind == yaml.MappingNode && src.Kind == yaml.MappingNode:
		mergeMapping(dst, src)
	case dst.Kind == yaml.SequenceNode && src.Kind == yaml.SequenceNode && len(dst.Content) == len(src.Content):
		for i := range dst.Content {
			merge(dst.Content[i], src.Content[i])
		}
	default:
		replaceKeepingComments(dst, src)
	}
}

func mergeMapping(dst, src *yaml.Node) {
	srcValues := map[string]*yaml.Node{}
	var srcOrder []string
	for i := 0; i+1 < len(src.Content); i += 2 {
		k := src.Content[i].Value
		srcValues[k] = src.Content[i+1]
		srcOrder = append(srcOrder, k)
	}

	seen := map[string]bool{}
	content := make([]*yaml.Node, 0, len(src.Content))
	for i := 0; i+1 < len(dst.Content); i += 2 {
		key, val := dst.Content[i], dst.Content[i+1]
		next, ok := srcValues[key.Value]
		if !ok {
			continue
		}
		merge(val, next)
		content = append(content, key, val)
		seen[key.Value] = true
	}
	for _, k := range srcOrder {
		if seen[k] {
			continue
		}
		content = append(content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, srcValues[k])
	}

	dst.Content = content
	dst.Style &^= yaml.FlowStyle
}

func replaceKeepingComments(dst, src *yaml.Node) {
	head, line, foot := dst.HeadComment, dst.LineComment, dst.FootComment
	*dst = *src
	dst.HeadComment, dst.LineComment, dst.FootComment = head, line, foot
}

func sameValue(a, b *yaml.Node) bool {
	var av, bv any
	if err := a.Decode(&av); err != nil {
		return false
	}
	if err := b.Decode(&bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
