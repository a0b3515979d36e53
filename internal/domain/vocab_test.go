package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocType(t *testing.T) {
	for _, lt := range LocTypes() {
		got, err := ParseLocType(lt.String())
		require.NoError(t, err)
		assert.Equal(t, lt, got)
	}

	got, err := ParseLocType("  AEGL ")
	require.NoError(t, err)
	assert.Equal(t, LocTypeAEGL, got)
}

func TestParseLocType_Unknown(t *testing.T) {
	_, err := ParseLocType("ERPG")
	require.Error(t, err)

	var vocabErr *UnknownVocabularyError
	require.True(t, errors.As(err, &vocabErr))
	assert.Equal(t, "loc_type", vocabErr.Kind)
	assert.Equal(t, "ERPG", vocabErr.Name)
}

func TestLocType_Category(t *testing.T) {
	tests := []struct {
		locType LocType
		want    Category
	}{
		{LocTypePAC, CategoryToxic},
		{LocTypeAEGL, CategoryToxic},
		{LocTypeIDLH, CategoryToxic},
		{LocTypeLEL, CategoryFlammable},
		{LocTypeLC50, CategoryEcotoxic},
	}
	for _, tt := range tests {
		t.Run(tt.locType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.locType.Category())
		})
	}
	assert.Equal(t, "UNKNOWN", LocType(99).Category().String())
}

func TestLocType_DefaultVariable(t *testing.T) {
	assert.Equal(t, VariableDissolvedConcentration, LocTypeLC50.DefaultVariable())
	assert.Equal(t, VariableAirConcentration, LocTypeAEGL.DefaultVariable())
	assert.Equal(t, VariableAirConcentration, LocTypeLEL.DefaultVariable())
}

func TestLocLevels_RoundTripNames(t *testing.T) {
	levels := LocLevels()
	require.Len(t, levels, len(locLevels))

	seen := make(map[string]bool)
	for _, l := range levels {
		name := l.String()
		assert.False(t, seen[name], "duplicate level name %q", name)
		seen[name] = true

		got, err := ParseLocLevel(name)
		require.NoError(t, err)
		assert.Equal(t, l, got)
		assert.NotZero(t, l.LocType().Category(), "level %q has no category", name)
	}
}

func TestParseLocLevel_Unknown(t *testing.T) {
	_, err := ParseLocLevel("AEGL-4")
	var vocabErr *UnknownVocabularyError
	require.ErrorAs(t, err, &vocabErr)
	assert.Equal(t, "loc_level", vocabErr.Kind)
	assert.Contains(t, err.Error(), `"AEGL-4"`)
}
