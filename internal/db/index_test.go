package db

import (
	"strings"
	"testing"
)

func TestNewIndexDefinition_CorpusSchema(t *testing.T) {
	idx, err := NewIndexDefinition("vecrag:docs:idx", "vecrag:doc:",
		TextField("__content"),
		TagField("department"),
		NumericField("partition"),
		VectorField("__vector", 1536, DistanceCosine),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "FT.CREATE vecrag:docs:idx ON HASH PREFIX 1 vecrag:doc: SCHEMA " +
		"__content TEXT department TAG partition NUMERIC " +
		"__vector VECTOR HNSW 6 TYPE FLOAT32 DIM 1536 DISTANCE_METRIC COSINE"
	if got := idx.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}

func TestIndexField_SchemaArgs(t *testing.T) {
	sortable := NumericField("partition")
	sortable.Sortable = true
	hnsw := VectorField("__vector", 256, "")
	hnsw.Vector.M = 16

	tests := []struct {
		name  string
		field IndexField
		want  string
	}{
		{"sortable numeric", sortable, "partition NUMERIC SORTABLE"},
		{"vector default distance with M", hnsw, "__vector VECTOR HNSW 8 TYPE FLOAT32 DIM 256 DISTANCE_METRIC COSINE M 16"},
		{"l2 vector", VectorField("v", 3, DistanceL2), "v VECTOR HNSW 6 TYPE FLOAT32 DIM 3 DISTANCE_METRIC L2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := tc.field.SchemaArgs()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Join(args, " "); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewIndexDefinition_Validation(t *testing.T) {
	tests := []struct {
		name   string
		index  string
		fields []IndexField
	}{
		{"empty name", "", []IndexField{TagField("a")}},
		{"bad name", "bad name", []IndexField{TagField("a")}},
		{"no fields", "idx", nil},
		{"duplicate", "idx", []IndexField{TagField("a"), NumericField("a")}},
		{"zero dim", "idx", []IndexField{VectorField("v", 0, DistanceL2)}},
		{"unknown kind", "idx", []IndexField{{Name: "g", Kind: "GEO"}}},
		{"unnamed field", "idx", []IndexField{TagField("")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewIndexDefinition(tc.index, "p:", tc.fields...); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	def := &IndexDefinition{
		Name:   "bad name",
		Fields: []IndexField{TagField("a"), TagField("a"), VectorField("v", -1, DistanceCosine)},
	}
	err := def.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"index name", "duplicate field a", "dimension must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if !strings.Contains(def.String(), "<invalid") {
		t.Errorf("String() of invalid definition = %q", def.String())
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"vecrag:docs:idx": true,
		"a_b-C9":          true,
		"":                false,
		"has space":       false,
		"dot.name":        false,
	} {
		if got := IsValidIdentifier(s); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestFilter_CopyOnWrite(t *testing.T) {
	base := Filter{}.WithTag("department", "legal")
	a := base.WithEquals("partition", 1)
	b := base.WithEquals("partition", 2)

	if len(base.Numeric) != 0 {
		t.Fatalf("base mutated: %+v", base)
	}
	if a.Numeric[0].Min != 1 || b.Numeric[0].Min != 2 {
		t.Errorf("derived filters share storage: a=%+v b=%+v", a, b)
	}
	if base.IsEmpty() || !(Filter{}).IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
}
