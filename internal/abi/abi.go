// Package abi decodes binary action payloads against contract schemas fetched
// from the node.
//
// The node normally returns action data already decoded. When it cannot, the
// payload arrives as hex and Decoder decodes it locally using the account's
// ABI, which is fetched once and kept for the life of the SchemaCache.
package abi

import (
	"fmt"
	"strings"

	"github.com/decentium/decentium-go/internal/models"
)

// ABI is a contract schema as returned by get_abi.
type ABI struct {
	Version  string       `json:"version"`
	Types    []TypeDef    `json:"types"`
	Structs  []StructDef  `json:"structs"`
	Actions  []ActionDef  `json:"actions"`
	Tables   []TableDef   `json:"tables"`
	Variants []VariantDef `json:"variants"`
}

// TypeDef aliases NewTypeName to Type.
type TypeDef struct {
	NewTypeName string `json:"new_type_name"`
	Type        string `json:"type"`
}

// FieldDef is one struct field.
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// StructDef is a struct type, optionally extending Base.
type StructDef struct {
	Name   string     `json:"name"`
	Base   string     `json:"base"`
	Fields []FieldDef `json:"fields"`
}

// ActionDef binds an action name to its payload type.
type ActionDef struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	RicardianContract string `json:"ricardian_contract"`
}

// TableDef describes a contract table.
type TableDef struct {
	Name      string   `json:"name"`
	IndexType string   `json:"index_type"`
	KeyNames  []string `json:"key_names"`
	KeyTypes  []string `json:"key_types"`
	Type      string   `json:"type"`
}

// VariantDef is a tagged union over Types.
type VariantDef struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// maxDepth bounds type resolution and nesting.
const maxDepth = 64

// Contract is a parsed ABI ready for decoding.
type Contract struct {
	typedefs map[string]string
	structs  map[string]*StructDef
	variants map[string]*VariantDef
	actions  map[string]string
}

// NewContract indexes the schema. It fails on duplicate definitions and on
// typedef chains that never reach a concrete type.
func NewContract(a *ABI) (*Contract, error) {
	c := &Contract{
		typedefs: make(map[string]string, len(a.Types)),
		structs:  make(map[string]*StructDef, len(a.Structs)),
		variants: make(map[string]*VariantDef, len(a.Variants)),
		actions:  make(map[string]string, len(a.Actions)),
	}
	for _, t := range a.Types {
		if _, dup := c.typedefs[t.NewTypeName]; dup {
			return nil, fmt.Errorf("duplicate type %q", t.NewTypeName)
		}
		c.typedefs[t.NewTypeName] = t.Type
	}
	for i := range a.Structs {
		s := &a.Structs[i]
		if _, dup := c.structs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate struct %q", s.Name)
		}
		c.structs[s.Name] = s
	}
	for i := range a.Variants {
		v := &a.Variants[i]
		if _, dup := c.variants[v.Name]; dup {
			return nil, fmt.Errorf("duplicate variant %q", v.Name)
		}
		c.variants[v.Name] = v
	}
	for _, act := range a.Actions {
		c.actions[act.Name] = act.Type
	}
	for name := range c.typedefs {
		if _, err := c.resolve(name); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ActionType returns the payload type of the named action.
func (c *Contract) ActionType(name string) (string, bool) {
	t, ok := c.actions[name]
	return t, ok
}

// resolve follows typedefs until a non-alias type name is reached.
func (c *Contract) resolve(typeName string) (string, error) {
	for i := 0; i < maxDepth; i++ {
		next, ok := c.typedefs[typeName]
		if !ok {
			return typeName, nil
		}
		typeName = next
	}
	return "", fmt.Errorf("type %q: typedef chain too deep", typeName)
}

// DecodeAction decodes the payload of the named action.
func (c *Contract) DecodeAction(name string, data []byte) (models.DecodedData, error) {
	typeName, ok := c.actions[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	v, err := c.Decode(typeName, data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("action %q type %q is not a struct", name, typeName)
	}
	return models.DecodedData(obj), nil
}

// Decode decodes data as a value of typeName. Trailing bytes are an error.
func (c *Contract) Decode(typeName string, data []byte) (any, error) {
	r := &reader{buf: data}
	v, err := c.decode(r, typeName, 0)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("decoding %q: %d trailing bytes", typeName, r.remaining())
	}
	return v, nil
}

func (c *Contract) decode(r *reader, typeName string, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("decoding %q: nesting too deep", typeName)
	}
	depth++

	switch {
	case strings.HasSuffix(typeName, "$"):
		return c.decode(r, strings.TrimSuffix(typeName, "$"), depth)
	case strings.HasSuffix(typeName, "[]"):
		return c.decodeArray(r, strings.TrimSuffix(typeName, "[]"), depth)
	case strings.HasSuffix(typeName, "?"):
		present, err := r.byte()
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", typeName, err)
		}
		switch present {
		case 0:
			return nil, nil
		case 1:
			return c.decode(r, strings.TrimSuffix(typeName, "?"), depth)
		default:
			return nil, fmt.Errorf("decoding %q: invalid optional flag %d", typeName, present)
		}
	}

	resolved, err := c.resolve(typeName)
	if err != nil {
		return nil, err
	}
	if resolved != typeName {
		return c.decode(r, resolved, depth)
	}

	if fn, ok := builtins[typeName]; ok {
		v, err := fn(r)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", typeName, err)
		}
		return v, nil
	}
	if s, ok := c.structs[typeName]; ok {
		obj := make(map[string]any, len(s.Fields))
		if err := c.decodeStruct(r, s, obj, depth); err != nil {
			return nil, err
		}
		return obj, nil
	}
	if v, ok := c.variants[typeName]; ok {
		return c.decodeVariant(r, v, depth)
	}
	return nil, fmt.Errorf("unknown type %q", typeName)
}

func (c *Contract) decodeArray(r *reader, elem string, depth int) (any, error) {
	n, err := r.varuint32()
	if err != nil {
		return nil, fmt.Errorf("decoding %q[] length: %w", elem, err)
	}
	if int(n) > r.remaining() {
		return nil, fmt.Errorf("decoding %q[]: length %d exceeds remaining %d bytes", elem, n, r.remaining())
	}
	out := make([]any, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.decode(r, elem, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Contract) decodeStruct(r *reader, s *StructDef, obj map[string]any, depth int) error {
	if s.Base != "" {
		baseName, err := c.resolve(s.Base)
		if err != nil {
			return err
		}
		base, ok := c.structs[baseName]
		if !ok {
			return fmt.Errorf("struct %q: unknown base %q", s.Name, s.Base)
		}
		if depth > maxDepth {
			return fmt.Errorf("struct %q: base chain too deep", s.Name)
		}
		if err := c.decodeStruct(r, base, obj, depth+1); err != nil {
			return err
		}
	}
	for _, f := range s.Fields {
		// Binary extensions may be cut off at the end of the payload.
		if strings.HasSuffix(f.Type, "$") && r.remaining() == 0 {
			break
		}
		v, err := c.decode(r, f.Type, depth)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
		obj[f.Name] = v
	}
	return nil
}

func (c *Contract) decodeVariant(r *reader, v *VariantDef, depth int) (any, error) {
	idx, err := r.varuint32()
	if err != nil {
		return nil, fmt.Errorf("decoding variant %q tag: %w", v.Name, err)
	}
	if int(idx) >= len(v.Types) {
		return nil, fmt.Errorf("variant %q: tag %d out of range", v.Name, idx)
	}
	typeName := v.Types[idx]
	val, err := c.decode(r, typeName, depth)
	if err != nil {
		return nil, err
	}
	return []any{typeName, val}, nil
}
