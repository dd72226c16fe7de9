package store

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// AttributeMap is an ordered string-to-string map describing a unit
// (provenance, feed name, content type, ...).
//
// The store never interprets the attributes; it writes them verbatim to the
// unit's .meta file, preserving insertion order.
type AttributeMap struct {
	keys   []string
	values map[string]string
}

// NewAttributeMap creates an empty map, optionally seeded with key/value
// pairs: NewAttributeMap("Feed", "TEST", "Type", "EVENTS").
func NewAttributeMap(pairs ...string) *AttributeMap {
	m := &AttributeMap{values: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set inserts or replaces key. Replacing keeps the original position.
func (m *AttributeMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *AttributeMap) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key.
func (m *AttributeMap) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *AttributeMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of attributes.
func (m *AttributeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// ToMap returns an unordered copy.
func (m *AttributeMap) ToMap() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (m *AttributeMap) Clone() *AttributeMap {
	c := NewAttributeMap()
	if m == nil {
		return c
	}
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

// MarshalYAML encodes the map as a YAML mapping in insertion order.
func (m *AttributeMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.Keys() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.values[k]},
		)
	}
	return node, nil
}

// UnmarshalYAML decodes a flat YAML mapping, keeping document order.
func (m *AttributeMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	m.keys = nil
	m.values = make(map[string]string)

	// An empty document decodes to a null scalar.
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("attributes: expected mapping, got yaml kind %d", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("attributes: line %d: nested values are not supported", k.Line)
		}
		m.Set(k.Value, v.Value)
	}
	return nil
}

// WriteAttributes serializes attrs to w.
func WriteAttributes(w io.Writer, attrs *AttributeMap) error {
	if attrs == nil {
		attrs = NewAttributeMap()
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(attrs); err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	return enc.Close()
}

// ReadAttributes deserializes an attribute map from r.
func ReadAttributes(r io.Reader) (*AttributeMap, error) {
	attrs := NewAttributeMap()
	if err := yaml.NewDecoder(r).Decode(attrs); err != nil {
		if err == io.EOF {
			return attrs, nil
		}
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return attrs, nil
}

// writeAttributesFile writes attrs to path and syncs it to disk.
func writeAttributesFile(path string, attrs *AttributeMap) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := WriteAttributes(f, attrs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync attributes: %w", err)
	}
	return f.Close()
}

// readAttributesFile reads the attribute map stored at path.
func readAttributesFile(path string) (*AttributeMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadAttributes(f)
}
