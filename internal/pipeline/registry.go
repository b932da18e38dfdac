// Package pipeline orders scan stages by named scan type and runs them
// against one scan session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/0x6d61/wavs/internal/store"
)

// Discovery stage names. Probe stages are named after their finding
// category.
const (
	StageInitial     = "initial"
	StageDirectories = store.OutputDirectories
	StageFiles       = store.OutputFiles
	StageCrawler     = store.OutputPages
	StageParser      = store.OutputParameters
)

var (
	// ErrUnknownScanType is returned for a scan type with no stage list.
	ErrUnknownScanType = errors.New("pipeline: unknown scan type")

	// ErrUnknownStage is returned when a scan type names an unregistered stage.
	ErrUnknownStage = errors.New("pipeline: unknown stage")

	// ErrStageOrder is returned when a stage is scheduled before a stage
	// whose output it reads.
	ErrStageOrder = errors.New("pipeline: stage scheduled before its input")
)

// StageFunc runs one stage. It reads earlier output and records its own
// through out.
type StageFunc func(ctx context.Context, sc *ScanContext, out *Output) error

// Stage is a registered pipeline step.
type Stage struct {
	Name string
	// Requires lists the stages whose output this one reads. They need not
	// be scheduled, but when they are they must run first.
	Requires []string
	Run      StageFunc
}

// Registry maps stage names to stages.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds or replaces a stage.
func (r *Registry) Register(s Stage) {
	r.stages[s.Name] = s
}

// Lookup returns the stage registered under name.
func (r *Registry) Lookup(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the registered stage names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stages))
	for n := range r.stages {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Plan resolves scanType against scanTypes and validates the result before
// anything runs.
func (r *Registry) Plan(scanTypes map[string][]string, scanType string) ([]Stage, error) {
	names, ok := scanTypes[scanType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScanType, scanType)
	}

	position := make(map[string]int, len(names))
	plan := make([]Stage, 0, len(names))
	for i, name := range names {
		s, ok := r.stages[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q in scan type %q", ErrUnknownStage, name, scanType)
		}
		if _, dup := position[name]; !dup {
			position[name] = i
		}
		plan = append(plan, s)
	}

	for i, s := range plan {
		for _, dep := range s.Requires {
			if at, scheduled := position[dep]; scheduled && at > i {
				return nil, fmt.Errorf("%w: %q runs before %q in scan type %q", ErrStageOrder, s.Name, dep, scanType)
			}
		}
	}
	return plan, nil
}
