package core

import (
	"fmt"

	"ncube/pkg/domain"
	"ncube/pkg/domain/metaprops"
)

// ReferenceAxisLoader resolves a reference axis's columns by copying them
// from the source axis a RefSpec names, optionally passing the whole list of
// values through a transform cube's rule column in one call first. It depends only on
// domain.CubeResolver, so internal/core.Registry can supply itself as the
// resolver without a circular package dependency.
type ReferenceAxisLoader struct {
	resolver  domain.CubeResolver
	evaluator domain.ExpressionEvaluator
}

// NewReferenceAxisLoader constructs a loader over resolver. evaluator may be
// nil if no reference axis in the deployment declares a transform.
func NewReferenceAxisLoader(resolver domain.CubeResolver, evaluator domain.ExpressionEvaluator) *ReferenceAxisLoader {
	return &ReferenceAxisLoader{resolver: resolver, evaluator: evaluator}
}

// Load populates axis's columns from its RefSpec. A no-op if axis carries no
// reference. Cycle detection walks a chain of reference axes (a reference
// axis whose source axis is itself a reference) via a visited set keyed by
// application/cube/axis.
func (l *ReferenceAxisLoader) Load(axis *domain.Axis) error {
	ref := axis.Reference()
	if ref == nil {
		return nil
	}
	return l.load(axis, ref, map[string]bool{})
}

func (l *ReferenceAxisLoader) load(axis *domain.Axis, ref *domain.RefSpec, visited map[string]bool) error {
	key := ref.SourceApplicationID().CacheKey() + "!" + lowerKey(ref.SourceCube) + "!" + lowerKey(ref.SourceAxis)
	if visited[key] {
		return domain.IllegalStateError{Message: "reference axis cycle detected resolving " + key}
	}
	visited[key] = true

	sourceCube, err := l.resolver.ResolveCube(ref.SourceApplicationID(), ref.SourceCube)
	if err != nil {
		return domain.IllegalStateError{Message: fmt.Sprintf("reference axis source cube %s missing: %v", ref.SourceCube, err)}
	}
	sourceAxis, ok := sourceCube.GetAxis(ref.SourceAxis)
	if !ok {
		return domain.IllegalStateError{Message: fmt.Sprintf("reference axis source axis %s missing on cube %s", ref.SourceAxis, ref.SourceCube)}
	}

	// A reference axis may itself be a reference; resolve the chain to its
	// ultimate concrete columns before copying from it.
	if sourceAxis.Reference() != nil {
		if err := l.load(sourceAxis, sourceAxis.Reference(), visited); err != nil {
			return err
		}
	}

	sourceCols := sourceAxis.Columns()
	var transformed []domain.Value
	if ref.HasTransform {
		transformCube, err := l.resolver.ResolveCube(ref.TransformApplicationID(), ref.TransformCube)
		if err != nil {
			return domain.IllegalStateError{Message: fmt.Sprintf("reference axis transform cube %s missing: %v", ref.TransformCube, err)}
		}
		methodAxis, ok := transformCube.GetAxis("method")
		if !ok {
			return domain.IllegalStateError{Message: fmt.Sprintf("reference axis transform cube %s has no method axis", ref.TransformCube)}
		}
		methodCol, err := methodAxis.FindColumn(ref.TransformMethod)
		if err != nil {
			return domain.IllegalStateError{Message: fmt.Sprintf("reference axis transform method %s missing on cube %s: %v", ref.TransformMethod, ref.TransformCube, err)}
		}
		expr, ok := methodCol.Value.(domain.Expression)
		if !ok {
			return domain.IllegalStateError{Message: fmt.Sprintf("reference axis transform method %s is not a rule expression", ref.TransformMethod)}
		}
		if l.evaluator == nil {
			return domain.IllegalStateError{Message: "reference axis declares a transform but no expression evaluator is configured"}
		}
		transformed, err = l.transform(expr, sourceCols)
		if err != nil {
			return err
		}
		if len(transformed) != len(sourceCols) {
			return domain.IllegalStateError{Message: fmt.Sprintf("reference axis transform method %s returned %d values for %d source columns", ref.TransformMethod, len(transformed), len(sourceCols))}
		}
	}

	for i, col := range sourceCols {
		value := col.Value
		if transformed != nil {
			value = transformed[i]
		}
		axis.RestoreColumn(&domain.Column{ID: col.ID, Value: value, Meta: col.Meta.Clone()})
	}
	if sourceAxis.HasDefault() && axis.DefaultColumn() == nil {
		axis.RestoreDefaultColumn(&domain.Column{ID: sourceAxis.DefaultColumn().ID, Meta: sourceAxis.DefaultColumn().Meta.Clone()})
	}

	// Local meta-properties (declared directly on the reference axis) win
	// over the source axis's on key collision.
	axis.SetMeta(metaprops.Merge(sourceAxis.Meta(), axis.Meta()))
	return nil
}

// transform invokes expr (the transform cube's "method" column named by
// RefSpec.TransformMethod) exactly once, passing the copied column list as a
// single batch, and returns the batch it produces in its place.
func (l *ReferenceAxisLoader) transform(expr domain.Expression, cols []*domain.Column) ([]domain.Value, error) {
	values := make([]domain.Value, len(cols))
	for i, c := range cols {
		values[i] = c.Value
	}
	result, err := l.evaluator.Execute(expr, map[string]any{"columns": values})
	if err != nil {
		return nil, err
	}
	out, ok := result.([]domain.Value)
	if !ok {
		return nil, domain.IllegalStateError{Message: "reference axis transform method must return a []domain.Value batch"}
	}
	return out, nil
}

// BreakAxisReference materializes axis's current columns as an ordinary
// axis: it removes the RefSpec so future cube saves/loads treat the columns
// as locally owned. Cells bound against the axis are unaffected since they
// key off column ids, which BreakAxisReference leaves untouched.
func BreakAxisReference(axis *domain.Axis) {
	axis.SetReference(nil)
}
