package pollen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

func TestCategoryFromIndex(t *testing.T) {
	tests := []struct {
		index    int
		expected pollen.Category
	}{
		{0, pollen.CategoryNone},
		{1, pollen.CategoryVeryLow},
		{2, pollen.CategoryLow},
		{3, pollen.CategoryModerate},
		{4, pollen.CategoryHigh},
		{5, pollen.CategoryVeryHigh},
	}

	for _, tt := range tests {
		category, err := pollen.CategoryFromIndex(tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, category)
	}
}

func TestCategoryFromIndex_OutOfRange(t *testing.T) {
	for _, index := range []int{-1, 6, 100} {
		_, err := pollen.CategoryFromIndex(index)
		require.Error(t, err)
		assert.ErrorIs(t, err, pollen.ErrIndexOutOfRange)
	}
}

func TestReading_Absent(t *testing.T) {
	absent := pollen.Reading{Type: pollen.TypeWeed, Category: pollen.CategoryNone}
	assert.True(t, absent.Absent())

	zero := 0
	tracked := pollen.Reading{Type: pollen.TypeGrass, Index: &zero, Category: pollen.CategoryNone}
	assert.False(t, tracked.Absent(), "index zero is a tracked reading, not an absent one")
}

func TestSnapshot_Reading_MissingType(t *testing.T) {
	snapshot := &pollen.Snapshot{Readings: map[pollen.Type]pollen.Reading{}}

	reading := snapshot.Reading(pollen.TypeTree)
	assert.Equal(t, pollen.TypeTree, reading.Type)
	assert.True(t, reading.Absent())
	assert.Equal(t, pollen.CategoryNone, reading.Category)
}

func TestValidateCoordinates(t *testing.T) {
	require.NoError(t, pollen.ValidateCoordinates(52.370, 4.895))

	tests := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"lat too high", 91.0, 4.895},
		{"lat too low", -91.0, 4.895},
		{"lon too high", 52.370, 181.0},
		{"lon too low", 52.370, -181.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pollen.ValidateCoordinates(tt.lat, tt.lon)
			assert.ErrorIs(t, err, pollen.ErrInvalidCoordinates)
		})
	}
}
