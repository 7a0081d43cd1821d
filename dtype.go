package rframe

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// DType represents the data type of a Column
type DType uint8

const (
	// Int32 is a signed 32-bit integer column
	Int32 DType = iota
	// Float64 is a double precision column
	Float64
	// Bool is a logical column
	Bool
	// UInt64 is an unsigned 64-bit size column
	UInt64
	// Factor is a dictionary-encoded label column with 16-bit codes
	Factor
	// String is a free-text column; it can't take part in multi-column keys
	String
)

// String returns the string representation of the DType
func (d DType) String() string {
	switch d {
	case Int32:
		return "Int32"
	case Float64:
		return "Float64"
	case Bool:
		return "Bool"
	case UInt64:
		return "UInt64"
	case Factor:
		return "Factor"
	case String:
		return "String"
	default:
		return fmt.Sprintf("Unknown(%d)", d)
	}
}

// IsNumeric returns true if the dtype is a numeric type
func (d DType) IsNumeric() bool {
	switch d {
	case Int32, Float64, UInt64:
		return true
	default:
		return false
	}
}

// IsKeyable reports whether cells of this type have a fixed-width key encoding.
func (d DType) IsKeyable() bool {
	return d <= Factor
}

// ParseDType maps a type name (case-insensitive) back to its DType.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int32", "int", "integer":
		return Int32, nil
	case "float64", "double", "numeric":
		return Float64, nil
	case "bool", "logical":
		return Bool, nil
	case "uint64", "usize", "size":
		return UInt64, nil
	case "factor":
		return Factor, nil
	case "string", "character":
		return String, nil
	}
	return 0, newError("schema", ErrParse, "unknown column type %q", s)
}

// MarshalYAML renders the dtype by name.
func (d DType) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts any name understood by ParseDType.
func (d *DType) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDType(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ============================================================================
// Schema
// ============================================================================

// Schema represents the column names and types of a DataFrame
type Schema struct {
	names  []string
	dtypes []DType
	levels map[string][]string
}

// NewSchema creates a new schema from column names and types
func NewSchema(names []string, dtypes []DType) (*Schema, error) {
	if len(names) != len(dtypes) {
		return nil, newError("schema", ErrLengthMismatch, "%d names but %d types", len(names), len(dtypes))
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, newError("schema", ErrNameCollision, "duplicate column name %s", name)
		}
		seen[name] = struct{}{}
	}
	return &Schema{
		names:  append([]string(nil), names...),
		dtypes: append([]DType(nil), dtypes...),
	}, nil
}

// Len returns the number of columns
func (s *Schema) Len() int {
	return len(s.names)
}

// Names returns a copy of the column names
func (s *Schema) Names() []string {
	return append([]string(nil), s.names...)
}

// DTypes returns a copy of the column types
func (s *Schema) DTypes() []DType {
	return append([]DType(nil), s.dtypes...)
}

// GetDType returns the type of a named column
func (s *Schema) GetDType(name string) (DType, bool) {
	for i, n := range s.names {
		if n == name {
			return s.dtypes[i], true
		}
	}
	return 0, false
}

// SetLevels declares the initial labels of a factor column.
func (s *Schema) SetLevels(name string, labels []string) error {
	dt, ok := s.GetDType(name)
	if !ok {
		return newError("schema", ErrColumnNotFound, "no column named %s", name)
	}
	if dt != Factor {
		return newError("schema", ErrTypeMismatch, "column %s is %s, not Factor", name, dt)
	}
	if s.levels == nil {
		s.levels = make(map[string][]string)
	}
	s.levels[name] = append([]string(nil), labels...)
	return nil
}

// Levels returns the declared labels of a factor column, if any.
func (s *Schema) Levels(name string) []string {
	return s.levels[name]
}

func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteString("Schema{")
	for i, name := range s.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", name, s.dtypes[i])
	}
	sb.WriteString("}")
	return sb.String()
}

// ============================================================================
// Schema files
// ============================================================================

type schemaFile struct {
	Columns []schemaFileColumn `yaml:"columns"`
}

type schemaFileColumn struct {
	Name   string   `yaml:"name"`
	Type   DType    `yaml:"type"`
	Levels []string `yaml:"levels,omitempty"`
}

// ReadSchemaYAML decodes a schema document of the form
//
//	columns:
//	  - name: region
//	    type: factor
//	    levels: [north, south]
//	  - name: sales
//	    type: float64
func ReadSchemaYAML(r io.Reader) (*Schema, error) {
	var doc schemaFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, wrapError("schema", ErrParse, err)
	}
	names := make([]string, len(doc.Columns))
	dtypes := make([]DType, len(doc.Columns))
	for i, c := range doc.Columns {
		names[i] = c.Name
		dtypes[i] = c.Type
	}
	s, err := NewSchema(names, dtypes)
	if err != nil {
		return nil, err
	}
	for _, c := range doc.Columns {
		if len(c.Levels) > 0 {
			if err := s.SetLevels(c.Name, c.Levels); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// WriteYAML encodes the schema in the format read by ReadSchemaYAML.
func (s *Schema) WriteYAML(w io.Writer) error {
	doc := schemaFile{Columns: make([]schemaFileColumn, len(s.names))}
	for i, name := range s.names {
		doc.Columns[i] = schemaFileColumn{Name: name, Type: s.dtypes[i], Levels: s.levels[name]}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return wrapError("schema", ErrParse, err)
	}
	return enc.Close()
}
