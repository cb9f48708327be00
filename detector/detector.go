// Package detector defines the uniform contract every detector adapter
// implements (spec.md §4.1): detect(shot, cfg) -> {payload, provenance,
// resource_class, suspendable?}. Concrete adapters live in package
// detectors; this package holds only the contract and the static
// registry.
//
// Detectors are represented as a closed set of variants registered at
// construction time — no runtime reflection or dynamic dispatch through
// a module-level map of callables (spec.md §9).
package detector

import (
	"context"

	"github.com/basui01/reelscope/types"
)

// Request bundles everything a detector needs to analyze one shot.
type Request struct {
	Shot   types.Shot
	Params map[string]any
}

// Result is what a detector invocation produces before provenance
// wrapping; Detector.Detect returns this shape.
type Result struct {
	Payload any
}

// Detector is the uniform capability contract every adapter satisfies.
type Detector interface {
	// Kind returns the detector kind this instance implements.
	Kind() types.DetectorKind
	// ResourceClass returns the admission class (gpu_heavy/gpu_light/cpu/io).
	ResourceClass() types.ResourceClass
	// ToolName and ToolVersion identify this adapter for provenance.
	ToolName() string
	ToolVersion() string
	// Detect runs the detector. Returned errors must be classified via
	// package errs (errs.Transient/InputDefect/Internal/External) so the
	// fallback controller can route them correctly.
	Detect(ctx context.Context, req Request) (Result, error)
}

// Suspendable is an optional interface a Detector may implement to mark
// itself eligible for mid-flight cancellation at a specific checkpoint
// (spec.md §4.1 "suspendable?").
type Suspendable interface {
	Suspendable() bool
}

// Registry is the static, closed set of registered detectors keyed by
// kind. Adding a detector means constructing it and calling Register —
// no reflection-based discovery.
type Registry struct {
	detectors map[types.DetectorKind]Detector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[types.DetectorKind]Detector)}
}

// Register adds d to the registry, keyed by d.Kind().
func (r *Registry) Register(d Detector) {
	r.detectors[d.Kind()] = d
}

// Get looks up a detector by kind.
func (r *Registry) Get(kind types.DetectorKind) (Detector, bool) {
	d, ok := r.detectors[kind]
	return d, ok
}

// Kinds returns every registered kind, in no particular order.
func (r *Registry) Kinds() []types.DetectorKind {
	out := make([]types.DetectorKind, 0, len(r.detectors))
	for k := range r.detectors {
		out = append(out, k)
	}
	return out
}

// Enabled reports whether kind is both registered and not present in the
// disabled set (ablations / fallback ladder disablement).
func (r *Registry) Enabled(kind types.DetectorKind, disabled map[types.DetectorKind]bool) bool {
	if _, ok := r.detectors[kind]; !ok {
		return false
	}
	return !disabled[kind]
}
