package field

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	m := map[string]any{"label": "Agency", "count": 3, "empty": ""}

	assert.Equal(t, "Agency", String(m, "label", "x"))
	assert.Equal(t, "x", String(m, "count", "x"))
	assert.Equal(t, "x", String(m, "missing", "x"))
	assert.Equal(t, "", String(m, "empty", "x"))
	assert.Equal(t, "x", String(nil, "label", "x"))

	assert.Equal(t, "Agency", First(m, "empty", "name", "label"))
	assert.Empty(t, First(m, "empty", "missing"))
}

func TestFloat(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"float64", 1.5, 1.5},
		{"float32", float32(2.5), 2.5},
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"json number", json.Number("5.25"), 5.25},
		{"numeric string", "6", 6},
		{"bad string", "six", -1},
		{"bool", true, -1},
		{"nil", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Float(map[string]any{"v": tt.value}, "v", -1))
		})
	}

	assert.Equal(t, 7, Int(map[string]any{"n": 7.9}, "n", 0))
	assert.Equal(t, 9, Int(nil, "n", 9))
}

func TestMapAndStrings(t *testing.T) {
	m := map[string]any{
		"position": map[string]any{"x": 1.0},
		"targets":  []any{"contract", nil, 42},
		"typed":    []string{"a"},
		"single":   "office",
		"number":   1,
	}

	assert.Equal(t, map[string]any{"x": 1.0}, Map(m, "position"))
	assert.Nil(t, Map(m, "single"))
	assert.Nil(t, Map(nil, "position"))

	assert.Equal(t, []string{"contract", "42"}, Strings(m, "targets"))
	assert.Equal(t, []string{"a"}, Strings(m, "typed"))
	assert.Equal(t, []string{"office"}, Strings(m, "single"))
	assert.Nil(t, Strings(m, "number"))
	assert.Nil(t, Strings(m, "missing"))
}

func TestTime(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	m := map[string]any{
		"createdAt": "2025-03-14T09:26:53Z",
		"unix":      float64(want.Unix()),
		"bad":       "yesterday",
	}

	got, ok := Time(m, "createdAt")
	assert.True(t, ok)
	assert.True(t, want.Equal(got))

	got, ok = Time(m, "unix")
	assert.True(t, ok)
	assert.True(t, want.Equal(got))

	_, ok = Time(m, "bad")
	assert.False(t, ok)
	_, ok = Time(m, "missing")
	assert.False(t, ok)
}
