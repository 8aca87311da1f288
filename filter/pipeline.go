package filter

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Pipeline threads a select query through an ordered list of stages.
type Pipeline struct {
	stages []Stage
}

// NewPipeline keeps the declaration order of stages, except that visibility
// stages (Trashed) are moved behind every other stage.
func NewPipeline(stages ...Stage) *Pipeline {
	ordered := make([]Stage, 0, len(stages))
	var visibility []Stage
	for _, s := range stages {
		if s == nil {
			continue
		}
		if _, ok := s.(visibilityStage); ok {
			visibility = append(visibility, s)
			continue
		}
		ordered = append(ordered, s)
	}
	return &Pipeline{stages: append(ordered, visibility...)}
}

// Apply runs every stage. It never short-circuits; the query is only
// materialized by the caller.
func (p *Pipeline) Apply(q *bun.SelectQuery, d Descriptor) *bun.SelectQuery {
	if p == nil {
		return q
	}
	for _, s := range p.stages {
		q = s.Apply(q, d)
	}
	return q
}

// Criteria binds d and exposes the pipeline as select criteria.
func (p *Pipeline) Criteria(d Descriptor) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return p.Apply(q, d)
	}
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	if p == nil {
		return nil
	}
	return append([]Stage(nil), p.stages...)
}
