package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentmem/internal/config"
)

func TestNormalizeMinMax(t *testing.T) {
	out, err := Normalize([]float64{2, 4, 6, 10}, config.NormalizeMinMax, 0)
	require.NoError(t, err)

	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 1.0, out[3])
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestNormalizeMinMaxAllEqual(t *testing.T) {
	out, err := Normalize([]float64{3, 3, 3}, config.NormalizeMinMax, 0)
	require.NoError(t, err)
	for _, v := range out {
		assert.Equal(t, 1.0, v)
	}
}

func TestNormalizeMax(t *testing.T) {
	out, err := Normalize([]float64{1, 2, 4}, config.NormalizeMax, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.25, out[0])
	assert.Equal(t, 0.5, out[1])
	assert.Equal(t, 1.0, out[2])
}

func TestNormalizeMaxZero(t *testing.T) {
	out, err := Normalize([]float64{0, 0}, config.NormalizeMax, 0)
	require.NoError(t, err)
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestNormalizeFloorClampsUp(t *testing.T) {
	out, err := Normalize([]float64{0, 5, 10}, config.NormalizeMinMax, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 0.2, out[0])
	assert.Equal(t, 0.5, out[1])
	assert.Equal(t, 1.0, out[2])
}

func TestNormalizeEmpty(t *testing.T) {
	out, err := Normalize(nil, config.NormalizeMinMax, 0)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNormalizeUnknownMode(t *testing.T) {
	_, err := Normalize([]float64{1}, config.NormalizationMode("zscore"), 0)
	assert.Error(t, err)
}

func TestNormalizeByID(t *testing.T) {
	out, err := NormalizeByID(map[string]float64{"a": 1, "b": 3}, config.NormalizeMinMax, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out["a"])
	assert.Equal(t, 1.0, out["b"])
}
