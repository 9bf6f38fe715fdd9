package pvrequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/pvdata"
)

func testStruct() *pvdata.Structure {
	return &pvdata.Structure{
		Fields: []pvdata.Field{
			{Name: "value"},
			{Name: "alarm"},
			{Name: "timestamp"},
		},
	}
}

func TestParseEmptyMeansEverything(t *testing.T) {
	r, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, r.Fields)

	sel := r.BitSet(testStruct())
	assert.Equal(t, 3, sel.Count())
}

func TestParseFieldWrapperAndDottedPath(t *testing.T) {
	r, err := Parse("field(value,alarm.severity)")
	require.NoError(t, err)
	assert.Equal(t, []string{"value", "alarm"}, r.Fields)
}

func TestParseUnclosedFieldWrapperErrors(t *testing.T) {
	_, err := Parse("field(value")
	assert.Error(t, err)
}

func TestBitSetIgnoresUnknownFields(t *testing.T) {
	r, err := Parse("value,bogus")
	require.NoError(t, err)
	sel := r.BitSet(testStruct())
	assert.Equal(t, 1, sel.Count())
	assert.True(t, sel.Test(0))
}
