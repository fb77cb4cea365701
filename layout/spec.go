package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec is the serialized form of a layout, one mapping per level:
//
//	kind: vector
//	count: 3
//	blocklength: 2
//	stride: 40
//	child:
//	  kind: builtin
//	  type: int32
type Spec struct {
	Kind          string  `yaml:"kind"`
	Type          string  `yaml:"type,omitempty"`
	Count         int64   `yaml:"count,omitempty"`
	Blocklength   int64   `yaml:"blocklength,omitempty"`
	Stride        int64   `yaml:"stride,omitempty"`
	Blocklengths  []int64 `yaml:"blocklengths,omitempty"`
	Displacements []int64 `yaml:"displacements,omitempty"`
	LB            int64   `yaml:"lb,omitempty"`
	Extent        int64   `yaml:"extent,omitempty"`
	Child         *Spec   `yaml:"child,omitempty"`
}

// ParseSpec decodes a YAML layout description.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return &s, nil
}

// LoadSpec reads and decodes a YAML layout description from path.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return ParseSpec(data)
}

// Build constructs the node tree described by s.
func (s *Spec) Build() (*Node, error) {
	return s.build(0)
}

func (s *Spec) build(level int) (*Node, error) {
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return nil, fmt.Errorf("level %d: %w", level, err)
	}
	if kind == KindBuiltin {
		e, err := ParseElementType(s.Type)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}
		return NewBuiltin(e)
	}
	if s.Child == nil {
		return nil, fmt.Errorf("level %d: %s without child", level, kind)
	}
	child, err := s.Child.build(level + 1)
	if err != nil {
		return nil, err
	}

	var n *Node
	switch kind {
	case KindContiguous:
		n, err = NewContiguous(s.Count, child)
	case KindDuplicate:
		n, err = NewDuplicate(child)
	case KindResized:
		n, err = NewResized(s.LB, s.Extent, child)
	case KindVector:
		n, err = NewVector(s.Count, s.Blocklength, s.Stride, child)
	case KindBlockIndexed:
		n, err = NewBlockIndexed(s.Blocklength, s.Displacements, child)
	case KindIndexed:
		n, err = NewIndexed(s.Blocklengths, s.Displacements, child)
	}
	if err != nil {
		return nil, fmt.Errorf("level %d: %w", level, err)
	}
	return n, nil
}

// SpecOf converts a node tree back to its serialized form.
func SpecOf(n *Node) *Spec {
	s := &Spec{Kind: n.kind.String()}
	switch n.kind {
	case KindBuiltin:
		s.Type = string(n.elem)
		return s
	case KindContiguous:
		s.Count = n.count
	case KindResized:
		s.LB = n.lb
		s.Extent = n.Extent()
	case KindVector:
		s.Count = n.count
		s.Blocklength = n.blocklength
		s.Stride = n.stride
	case KindBlockIndexed:
		s.Blocklength = n.blocklength
		s.Displacements = n.Displacements()
	case KindIndexed:
		s.Blocklengths = n.Blocklengths()
		s.Displacements = n.Displacements()
	}
	s.Child = SpecOf(n.child)
	return s
}

// Marshal encodes s as YAML.
func (s *Spec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
