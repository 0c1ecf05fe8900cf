package metadata

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldEqual(t *testing.T) {
	a := &Field{Name: "amount", StorageType: StorageNumber, Info: map[string]any{"format": "0.00"}}
	b := &Field{Name: "amount", StorageType: StorageNumber, Info: map[string]any{"format": "0.00"}}
	assert.True(t, a.Equal(a))
	assert.True(t, a.Equal(b))

	b.Info["format"] = "0.0"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))

	src := NewField("amount", StorageNumber, AnalyticalMeasure)
	c := a.Clone()
	c.Origin = OriginOfField(src)
	assert.False(t, a.Equal(c))
	d := a.Clone()
	d.Origin = OriginOfField(src)
	assert.True(t, c.Equal(d))
}

func TestFieldCloneSharesInfo(t *testing.T) {
	f := &Field{Name: "code", Info: map[string]any{"tags": []any{"pk"}}}

	shallow := f.Clone()
	shallow.Name = "code2"
	shallow.Info["extra"] = true
	assert.Equal(t, "code", f.Name)
	assert.Contains(t, f.Info, "extra")

	deep := f.DeepClone()
	deep.Info["other"] = true
	deep.Info["tags"].([]any)[0] = "id"
	assert.NotContains(t, f.Info, "other")
	assert.Equal(t, []any{"pk"}, f.Info["tags"])
}

func TestResolvedAnalyticalType(t *testing.T) {
	assert.Equal(t, AnalyticalDiscrete, NewField("n", StorageInteger, AnalyticalUnset).ResolvedAnalyticalType())
	assert.Equal(t, AnalyticalNominal, NewField("n", StorageInteger, AnalyticalNominal).ResolvedAnalyticalType())
	assert.Equal(t, AnalyticalUnset, NewField("b", StorageBoolean, AnalyticalUnset).ResolvedAnalyticalType())
}

func TestFieldAttributes(t *testing.T) {
	f := &Field{Name: "price", StorageType: StorageNumber, Size: 10, Description: "unit price"}
	assert.Equal(t, map[string]any{
		"name":         "price",
		"storage_type": "number",
		"size":         10,
		"description":  "unit price",
	}, f.Attributes())
}

func TestOriginIsWeak(t *testing.T) {
	src := NewField("amount", StorageNumber, AnalyticalUnset)
	derived := src.Clone()
	derived.Origin = OriginOfField(src)
	require.Same(t, src, derived.Origin.Field())
	assert.Nil(t, derived.Origin.List())
	assert.False(t, derived.Origin.IsZero())
	assert.True(t, Origin{}.IsZero())

	origin := OriginOfField(NewField("temp", StorageString, AnalyticalUnset))
	runtime.GC()
	runtime.GC()
	assert.Nil(t, origin.Field())
}
