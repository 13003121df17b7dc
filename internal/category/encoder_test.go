package category

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "phrog\tcolor\tannot\tcategory\n" +
	"1\t#c9c9c9\tintegrase\tintegration and excision\n" +
	"2\t#838383\tportal protein\thead and packaging\n" +
	"3\t#c9c9c9\tDNA polymerase\tDNA, RNA and nucleotide metabolism\n" +
	"4\t#c9c9c9\tNA\tunknown function\n" +
	"5\t#c9c9c9\tholin\tlysis\n" +
	"6\t#c9c9c9\tsomething\tnot a category\n"

func TestParseAnnotationTable(t *testing.T) {
	enc, err := ParseAnnotationTable(strings.NewReader(testTable))
	require.NoError(t, err)

	assert.Equal(t, 6, enc.Len())
	assert.Equal(t, 1, enc.Unmapped())

	tests := []struct {
		id   string
		want Category
	}{
		{"1", Integration},
		{"phrog_1", Integration},
		{"PHROG_2", HeadPackaging},
		{"3", Metabolism},
		{"4", Unknown},
		{"5", Lysis},
		{"6", Unknown},
		{"999", Unknown},
		{"", Unknown},
		{NoAnnotation, Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, enc.Encode(tt.id), tt.id)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	enc, err := ParseAnnotationTable(strings.NewReader(testTable))
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3", "4", "5", "6", "nope"} {
		first := enc.Encode(id)
		for range 5 {
			assert.Equal(t, first, enc.Encode(id))
		}
	}
}

func TestEncoderCategories(t *testing.T) {
	enc, err := ParseAnnotationTable(strings.NewReader(testTable))
	require.NoError(t, err)

	assert.Equal(t, []Category{Integration, HeadPackaging, Metabolism, Lysis}, enc.Categories())
}

func TestNewEncoderNeverProducesMasked(t *testing.T) {
	enc := NewEncoder(map[string]Category{"phrog_7": Masked, "8": Tail})

	assert.Equal(t, Unknown, enc.Encode("7"))
	assert.Equal(t, Tail, enc.Encode("phrog_8"))
	assert.Equal(t, []Category{Tail}, enc.Categories())
}

func TestNilEncoder(t *testing.T) {
	var enc *Encoder
	assert.Equal(t, Unknown, enc.Encode("1"))
}

func TestParseAnnotationTable_EmptyID(t *testing.T) {
	input := "phrog\tcategory\n1\ttail\n\tlysis\n"
	_, err := ParseAnnotationTable(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
}

func TestLoadAnnotationTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annot.tsv")
	require.NoError(t, os.WriteFile(path, []byte(testTable), 0644))

	enc, err := LoadAnnotationTable(path)
	require.NoError(t, err)
	assert.Equal(t, Lysis, enc.Encode("phrog_5"))

	_, err = LoadAnnotationTable(filepath.Join(t.TempDir(), "missing.tsv"))
	require.Error(t, err)
}

func TestFromName(t *testing.T) {
	c, ok := FromName("Tail")
	require.True(t, ok)
	assert.Equal(t, Tail, c)

	_, ok = FromName("spike")
	assert.False(t, ok)
}

func TestCategoryPredicates(t *testing.T) {
	assert.False(t, Unknown.Known())
	assert.False(t, Masked.Known())
	assert.True(t, Lysis.Known())
	assert.True(t, Masked.Valid())
	assert.False(t, Category(NumCategories).Valid())
	assert.Len(t, Named(), 9)
	assert.Equal(t, "invalid", Category(-1).String())
}
