package extract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// Projector evaluates declarative JMESPath projections
type Projector struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// NewProjector creates a new projector
func NewProjector() *Projector {
	return &Projector{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Evaluate evaluates a JMESPath expression against data
func (p *Projector) Evaluate(expression string, data any) (any, error) {
	compiled, err := p.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// Validate checks if an expression is valid
func (p *Projector) Validate(expression string) error {
	_, err := p.getOrCompile(expression)
	return err
}

// Project evaluates every field of a projection. Fields evaluating to nothing
// are left out of the result.
func (p *Projector) Project(proj refdata.Projection, data any) (map[model.Key]any, error) {
	keys := make([]model.Key, 0, len(proj.Fields))
	for k := range proj.Fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make(map[model.Key]any, len(keys))
	for _, k := range keys {
		v, err := p.Evaluate(proj.Fields[k], data)
		if err != nil {
			return nil, apperr.Parse("projection "+string(k), err)
		}
		if !empty(v) {
			out[k] = v
		}
	}
	return out, nil
}

// Relations collects related resources from the properties named in the
// projection's relation table
func (p *Projector) Relations(proj refdata.Projection, obj map[string]any) []model.RelatedResource {
	props := make([]string, 0, len(proj.Relations))
	for prop := range proj.Relations {
		props = append(props, prop)
	}
	sort.Strings(props)

	var rels []model.RelatedResource
	for _, prop := range props {
		v, ok := obj[prop]
		if !ok {
			continue
		}
		for _, id := range identifierValues(v) {
			rels = append(rels, model.RelatedResource{RelationType: proj.Relations[prop], Identifier: id})
		}
	}
	return rels
}

func (p *Projector) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	p.mu.RLock()
	compiled, ok := p.cache[expression]
	p.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if compiled, ok := p.cache[expression]; ok {
		return compiled, nil
	}
	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	p.cache[expression] = compiled
	return compiled, nil
}
