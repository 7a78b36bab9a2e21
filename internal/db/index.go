package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DistanceMetric is the vector distance an HNSW field is built with.
type DistanceMetric string

const (
	DistanceL2     DistanceMetric = "L2"
	DistanceCosine DistanceMetric = "COSINE"
)

// FieldKind is the FT schema type of a field.
type FieldKind string

const (
	KindTag     FieldKind = "TAG"
	KindNumeric FieldKind = "NUMERIC"
	KindText    FieldKind = "TEXT"
	KindVector  FieldKind = "VECTOR"
)

// VectorSpec configures an HNSW FLOAT32 field. Zero M keeps the server default.
type VectorSpec struct {
	Dim      int
	Distance DistanceMetric
	M        int
}

// IndexField is one schema entry.
type IndexField struct {
	Name     string
	Kind     FieldKind
	Sortable bool
	Vector   *VectorSpec
}

// TagField is an exact-match field, used for department filters.
func TagField(name string) IndexField { return IndexField{Name: name, Kind: KindTag} }

// NumericField is a range-filterable field, used for partition numbers.
func NumericField(name string) IndexField { return IndexField{Name: name, Kind: KindNumeric} }

// TextField is a BM25-scored full-text field.
func TextField(name string) IndexField { return IndexField{Name: name, Kind: KindText} }

// VectorField is an HNSW field of dim FLOAT32 components.
func VectorField(name string, dim int, distance DistanceMetric) IndexField {
	return IndexField{Name: name, Kind: KindVector, Vector: &VectorSpec{Dim: dim, Distance: distance}}
}

// SchemaArgs renders the field as it appears after SCHEMA in FT.CREATE.
func (f IndexField) SchemaArgs() ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}
	switch f.Kind {
	case KindTag, KindNumeric, KindText:
		args := []string{f.Name, string(f.Kind)}
		if f.Sortable {
			args = append(args, "SORTABLE")
		}
		return args, nil
	case KindVector:
		if f.Vector == nil || f.Vector.Dim <= 0 {
			return nil, fmt.Errorf("vector field %s: dimension must be positive", f.Name)
		}
		distance := f.Vector.Distance
		if distance == "" {
			distance = DistanceCosine
		}
		attrs := []string{"TYPE", "FLOAT32", "DIM", strconv.Itoa(f.Vector.Dim), "DISTANCE_METRIC", string(distance)}
		if f.Vector.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.Vector.M))
		}
		return append([]string{f.Name, "VECTOR", "HNSW", strconv.Itoa(len(attrs))}, attrs...), nil
	default:
		return nil, fmt.Errorf("field %s: unknown kind %q", f.Name, f.Kind)
	}
}

// IndexDefinition describes an FT index over HASH keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// NewIndexDefinition validates and returns a definition over keys with prefix.
func NewIndexDefinition(name, prefix string, fields ...IndexField) (*IndexDefinition, error) {
	def := &IndexDefinition{Name: name, Fields: fields}
	if prefix != "" {
		def.Prefixes = []string{prefix}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate reports every problem in the definition, joined.
func (idx *IndexDefinition) Validate() error {
	var errs []error
	if !IsValidIdentifier(idx.Name) {
		errs = append(errs, fmt.Errorf("index name %q must match [a-zA-Z0-9_:-]+", idx.Name))
	}
	if len(idx.Fields) == 0 {
		errs = append(errs, errors.New("at least one field is required"))
	}
	seen := make(map[string]struct{}, len(idx.Fields))
	for _, f := range idx.Fields {
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate field %s", f.Name))
		}
		seen[f.Name] = struct{}{}
		if _, err := f.SchemaArgs(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Args renders the full FT.CREATE argument list, without the command name.
func (idx *IndexDefinition) Args() ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for _, f := range idx.Fields {
		fa, _ := f.SchemaArgs()
		args = append(args, fa...)
	}
	return args, nil
}

// String is the FT.CREATE command for logs.
func (idx *IndexDefinition) String() string {
	args, err := idx.Args()
	if err != nil {
		return "FT.CREATE " + idx.Name + " <invalid: " + err.Error() + ">"
	}
	return "FT.CREATE " + strings.Join(args, " ")
}

// IsValidIdentifier reports whether s is a non-empty [a-zA-Z0-9_:-]+ name.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_' || r == ':' || r == '-':
			return false
		}
		return true
	}) < 0
}
