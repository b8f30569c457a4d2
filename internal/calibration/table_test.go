package calibration

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

func TestResolve(t *testing.T) {
	table, err := NewTable("unit-a", []Record{
		{ID: 1, Name: "right_elbow", Min: 0x40, Center: 0x80, Max: 0xC0, Invert: true},
		{ID: 3, Name: "left_shoulder", Min: 0x30, Center: 0x78, Max: 0xD0},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		id     int
		target Target
		want   uint8
	}{
		{"正向最小", 3, Min, 0x30},
		{"正向最大", 3, Max, 0xD0},
		{"正向中位取真实偏移", 3, Center, 0x78},
		{"正向比例0.5落在中位", 3, Fraction(0.5), 0x78},
		{"正向比例0.25", 3, Fraction(0.25), 0x54},
		{"反向最小取max", 1, Min, 0xC0},
		{"反向最大取min", 1, Max, 0x40},
		{"反向中位不变", 1, Center, 0x80},
		{"反向比例0", 1, Fraction(0), 0xC0},
		{"反向比例1", 1, Fraction(1), 0x40},
		{"原始字节不反向", 1, Raw(0x50), 0x50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.id, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	table := Default()

	_, err := table.Resolve(2, Raw(0x20))
	assert.ErrorIs(t, err, mecca.ErrValidation, "超出校准范围应拒绝而不是截断")

	_, err = table.Resolve(2, Raw(0xC1))
	assert.ErrorIs(t, err, mecca.ErrValidation)

	_, err = table.Resolve(2, Fraction(1.5))
	assert.ErrorIs(t, err, mecca.ErrValidation)

	partial, err := NewTable("p", []Record{{ID: 0, Min: 0, Center: 128, Max: 255}})
	require.NoError(t, err)
	_, err = partial.Resolve(5, Center)
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestResolve_NonFiniteFraction(t *testing.T) {
	table := Default()

	t.Run("NaN", func(t *testing.T) {
		_, err := table.Resolve(2, Fraction(math.NaN()))
		var verr *mecca.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, -1, verr.Value)
		assert.Contains(t, verr.Reason, "NaN")
	})

	t.Run("正无穷", func(t *testing.T) {
		_, err := table.Resolve(2, Fraction(math.Inf(1)))
		var verr *mecca.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, math.MaxInt32, verr.Value)
	})

	t.Run("负无穷", func(t *testing.T) {
		_, err := table.Resolve(2, Fraction(math.Inf(-1)))
		var verr *mecca.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, math.MinInt32, verr.Value)
	})

	t.Run("越界百分比", func(t *testing.T) {
		_, err := table.Resolve(2, Fraction(1.5))
		var verr *mecca.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, 150, verr.Value)
	})
}

func TestNewTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{"ID越界", []Record{{ID: 8, Min: 0, Center: 1, Max: 2}}},
		{"中位不在范围内", []Record{{ID: 0, Min: 10, Center: 5, Max: 20}}},
		{"超过255", []Record{{ID: 0, Min: 0, Center: 128, Max: 300}}},
		{"重复ID", []Record{{ID: 0, Min: 0, Center: 1, Max: 2}, {ID: 0, Min: 0, Center: 1, Max: 2}}},
		{"重复名称", []Record{{ID: 0, Name: "a", Min: 0, Center: 1, Max: 2}, {ID: 1, Name: "A", Min: 0, Center: 1, Max: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable("x", tt.records)
			assert.ErrorIs(t, err, ErrCalibration)
		})
	}
}

func TestLookup(t *testing.T) {
	table := Default()

	id, err := table.Lookup("Left_Elbow")
	require.NoError(t, err)
	assert.Equal(t, 4, id)

	id, err = table.Lookup("2")
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = table.Lookup("tail")
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want Target
	}{
		{"min", Min},
		{"MAX", Max},
		{"center", Center},
		{"0.75", Fraction(0.75)},
		{"raw:0x90", Raw(0x90)},
		{"raw:100", Raw(100)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseTarget("sideways")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "unit.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
unit: "5C:F8:21:EF:ED:D1"
servos:
  - {id: 1, name: right_elbow, min: 0x40, center: 0x80, max: 0xC0, invert: true}
  - {id: 3, name: left_shoulder, min: 0x40, center: 0x84, max: 0xC0}
`), 0o644))

	table, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "5C:F8:21:EF:ED:D1", table.Unit())
	assert.Equal(t, []int{1, 3}, table.IDs())
	rec, ok := table.Record(1)
	require.True(t, ok)
	assert.True(t, rec.Invert)

	tomlPath := filepath.Join(dir, "unit.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
unit = "bench"

[[servos]]
id = 4
name = "left_elbow"
min = 64
center = 128
max = 192
`), 0o644))

	table, err = Load(tomlPath)
	require.NoError(t, err)
	got, err := table.Resolve(4, Max)
	require.NoError(t, err)
	assert.Equal(t, uint8(192), got)

	_, err = Load(filepath.Join(dir, "unit.json"))
	assert.Error(t, err)
}
