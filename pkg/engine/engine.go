// Package engine assembles profile resolution, structural walking and
// terminology checking into a single document validation facade.
//
// An Engine is built once over a frozen registry.Index and is safe for
// concurrent use. Each validation run owns its own Result; nothing a run
// touches is shared mutable state.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/resolver"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/terminology"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/walker"
)

// Mode selects how issues are collected during a run.
type Mode = issue.Mode

// Collection modes accepted by Validate.
const (
	// ModeRegular stops collecting at the first error-severity issue.
	ModeRegular = issue.ModeRegular
	// ModeVerbose collects every issue the engine can find.
	ModeVerbose = issue.ModeVerbose
)

// Engine validates clinical documents against the profiles held by a
// frozen schema index.
type Engine struct {
	index    *registry.Index
	resolver *resolver.Resolver
	walker   *walker.Walker
	config   *Config
	metrics  *Metrics
}

// New creates an Engine backed by the given index. The index must
// already be built; an engine over a mutable catalog is not supported.
func New(index *registry.Index, opts ...Option) (*Engine, error) {
	if index == nil {
		return nil, errors.New("engine: index must not be nil")
	}
	if !index.Built() {
		return nil, fmt.Errorf("engine: %w", registry.ErrNotBuilt)
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	var checker walker.CodeChecker
	if config.Terminology {
		checker = terminology.New(index)
	}

	return &Engine{
		index:    index,
		resolver: resolver.New(index),
		walker:   walker.New(checker),
		config:   config,
		metrics:  NewMetrics(),
	}, nil
}

// Validate parses and validates a JSON document. A document that does
// not parse fails validation with a single structural issue; the error
// return is reserved for engine misuse and context cancellation.
func (e *Engine) Validate(ctx context.Context, document []byte, mode Mode) (*issue.Result, error) {
	return e.ValidateWithProfiles(ctx, document, mode)
}

// ValidateWithProfiles validates a document against the union of its
// declared profiles and the given additional canonical URLs. Additional
// URLs that do not resolve are reported the same way as unresolvable
// declared profiles.
func (e *Engine) ValidateWithProfiles(ctx context.Context, document []byte, mode Mode, profiles ...string) (*issue.Result, error) {
	start := time.Now()

	var doc map[string]any
	if err := json.Unmarshal(document, &doc); err != nil {
		e.config.Logger.Debug("rejecting unparseable document: %v", err)
		result := issue.GetPooledResult(mode)
		result.AddErrorWithID(issue.DiagDocumentInvalid, map[string]any{"error": err.Error()}, issue.LocationRoot)
		e.record(start, result)
		return result, nil
	}

	return e.run(ctx, doc, mode, profiles, start)
}

// ValidateData validates a document that has already been parsed into a
// map. The map is read, never mutated.
func (e *Engine) ValidateData(ctx context.Context, doc map[string]any, mode Mode) (*issue.Result, error) {
	return e.run(ctx, doc, mode, nil, time.Now())
}

// run is the single validation path. Issue order is deterministic:
// resolver findings first, then each profile walk in resolution order,
// then at most one trailing informational issue.
func (e *Engine) run(ctx context.Context, doc map[string]any, mode Mode, extra []string, start time.Time) (*issue.Result, error) {
	result := issue.GetPooledResult(mode)

	resourceType, _ := doc["resourceType"].(string)
	if resourceType == "" {
		result.AddErrorWithID(issue.DiagDocumentNoType, nil, issue.LocationRoot)
		e.record(start, result)
		return result, nil
	}

	res, err := e.resolver.Resolve(doc, result)
	if err != nil {
		issue.ReleaseResult(result)
		return nil, err
	}

	defs := res.Profiles
	for _, url := range extra {
		pd, err := e.index.Profile(url)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				result.AddWarningWithID(issue.DiagProfileNotFound, map[string]any{"url": url}, issue.LocationRoot)
				continue
			}
			issue.ReleaseResult(result)
			return nil, err
		}
		if !containsProfile(defs, pd.URL) {
			defs = append(defs, pd)
		}
	}

	e.config.Logger.Debug("validating %s against %d profile(s)", resourceType, len(defs))

	for _, pd := range defs {
		if result.Halted() {
			break
		}
		if err := e.walker.Walk(ctx, doc, pd, result); err != nil {
			issue.ReleaseResult(result)
			return nil, err
		}
	}

	if len(defs) == 0 {
		result.AddInfoWithID(issue.DiagNoProfileApplied, map[string]any{"type": resourceType}, issue.LocationRoot)
	}
	if len(result.Issues) == 0 {
		result.AddInfoWithID(issue.DiagValidationPassed, nil, issue.LocationRoot)
	}

	e.record(start, result)
	return result, nil
}

func (e *Engine) record(start time.Time, result *issue.Result) {
	e.metrics.RecordValidation(time.Since(start), result.Valid())
	e.metrics.RecordIssues(result)
}

func containsProfile(defs []*registry.ProfileDefinition, url string) bool {
	for _, pd := range defs {
		if pd.URL == url {
			return true
		}
	}
	return false
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Index returns the schema index the engine validates against.
func (e *Engine) Index() *registry.Index {
	return e.index
}
