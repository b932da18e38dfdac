package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/wavs/internal/config"
	"github.com/0x6d61/wavs/internal/store"
)

func noop(context.Context, *ScanContext, *Output) error { return nil }

func TestRegistry_Plan(t *testing.T) {
	r := NewRegistry()
	r.Register(Stage{Name: "a", Run: noop})
	r.Register(Stage{Name: "b", Requires: []string{"a"}, Run: noop})

	plan, err := r.Plan(map[string][]string{"both": {"a", "b"}}, "both")
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "a", plan[0].Name)
	assert.Equal(t, "b", plan[1].Name)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_PlanErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(Stage{Name: "a", Run: noop})
	r.Register(Stage{Name: "b", Requires: []string{"a"}, Run: noop})
	types := map[string][]string{
		"reversed": {"b", "a"},
		"unknown":  {"a", "zzz"},
		"alone":    {"b"},
	}

	_, err := r.Plan(types, "nope")
	assert.ErrorIs(t, err, ErrUnknownScanType)

	_, err = r.Plan(types, "unknown")
	assert.ErrorIs(t, err, ErrUnknownStage)

	_, err = r.Plan(types, "reversed")
	assert.ErrorIs(t, err, ErrStageOrder)

	// An unscheduled dependency is fine: the stage reads empty output.
	_, err = r.Plan(types, "alone")
	assert.NoError(t, err)
}

func TestRunner_DefaultScanTypesPlan(t *testing.T) {
	r := NewRunner(nil, nil, nil, Options{ScanTypes: config.DefaultScanTypes()})
	for name := range config.DefaultScanTypes() {
		_, err := r.Plan(name)
		assert.NoError(t, err, "scan type %q", name)
	}

	plan, err := r.Plan("default")
	require.NoError(t, err)
	assert.Equal(t, StageInitial, plan[0].Name)
	assert.Equal(t, store.CategoryInfoDisclosure, plan[len(plan)-1].Name)
}

func TestRunner_RegistersEveryCategory(t *testing.T) {
	r := NewRunner(nil, nil, nil, Options{})
	for _, c := range store.Categories() {
		_, ok := r.Registry().Lookup(c)
		assert.True(t, ok, "category %q has no stage", c)
	}
	for _, s := range []string{StageInitial, StageDirectories, StageFiles, StageCrawler, StageParser} {
		_, ok := r.Registry().Lookup(s)
		assert.True(t, ok, "stage %q not registered", s)
	}
}
