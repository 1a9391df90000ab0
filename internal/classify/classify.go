// Package classify implements the Content Classifiers (C2): a fixed
// pipeline of independent, idempotent stages run against a single Field,
// each of which returns an updated Field view folded forward into the next
// stage via an explicit value + reducer rather than a threaded mutable map.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

// Thresholds, exposed for tuning.
const (
	URLThreshold         = 0.95
	CardinalityThreshold = 40
	AvgLengthThreshold   = 50
	// JSONSampleCap mirrors the source's max_sync_lazy_seq_results constant.
	JSONSampleCap = 10000
)

// Outcome records what, if anything, a classifier stage changed, for
// logging and for the failure-isolation boundary in the orchestrator.
type Outcome struct {
	Changed bool
	Reason  string
}

func noChange(reason string) Outcome { return Outcome{Changed: false, Reason: reason} }
func changed(reason string) Outcome  { return Outcome{Changed: true, Reason: reason} }

// Deps bundles the collaborators a classifier stage needs.
type Deps struct {
	Driver driver.Driver
	Store  catalog.Store
}

// Stage is one step of the pipeline: given the current field view, it
// returns the (possibly unchanged) field the next stage should see, an
// Outcome describing what happened, and an error. A non-nil error is a
// per-unit failure: Run passes it to its onStageError callback and leaves
// the field as it was going into this stage.
type Stage func(ctx context.Context, deps Deps, table catalogmodel.Table, f catalogmodel.Field) (catalogmodel.Field, Outcome, error)

// LiteStages run on every sync, full or not: the driver hook and the URL
// marker are cheap enough, and important enough to a column's identity,
// that an analyze toggle shouldn't hide them.
var LiteStages = []Stage{
	DriverSpecificHook,
	URLMarker,
}

// FullOnlyStages run only when the caller opted into a full analyze pass:
// each one scans row content, which is the expensive part of C2.
var FullOnlyStages = []Stage{
	NoPreviewMarker,
	CategoryOrFieldValuesRefresh,
	JSONMarker,
}

// Pipeline is the complete, ordered sequence of stages a full sync runs.
// Nested-field reconciliation is handled separately by the field
// reconciler since it produces new catalog rows rather than just mutating
// the current field.
var Pipeline = append(append([]Stage{}, LiteStages...), FullOnlyStages...)

// Run folds stages left-to-right over f, persisting each stage's change to
// the store as it commits. It returns the final field view.
func Run(ctx context.Context, deps Deps, table catalogmodel.Table, f catalogmodel.Field, stages []Stage, onStageError func(stageIndex int, err error)) catalogmodel.Field {
	current := f
	for i, stage := range stages {
		next, outcome, err := stage(ctx, deps, table, current)
		if err != nil {
			if onStageError != nil {
				onStageError(i, err)
			}
			continue // per-unit failure: skip this stage, keep going
		}
		if outcome.Changed {
			current = next
		}
	}
	return current
}

// DriverSpecificHook is pipeline stage 1: the driver may annotate the
// field; the result is threaded forward unconditionally.
func DriverSpecificHook(ctx context.Context, deps Deps, _ catalogmodel.Table, f catalogmodel.Field) (catalogmodel.Field, Outcome, error) {
	updated, err := deps.Driver.DriverSpecificSyncField(ctx, f)
	if err != nil {
		return f, Outcome{}, fmt.Errorf("driver specific sync field: %w", err)
	}
	if updated == f {
		return f, noChange("driver made no changes"), nil
	}
	return updated, changed("driver annotated field"), nil
}

// URLMarker is pipeline stage 2: requires no special_type and a textual
// base type. If the driver reports percent_urls > URLThreshold, marks the
// field special_type = :url.
func URLMarker(ctx context.Context, deps Deps, table catalogmodel.Table, f catalogmodel.Field) (catalogmodel.Field, Outcome, error) {
	if f.SpecialType != nil || !f.BaseType.IsTextual() {
		return f, noChange("disqualified: special_type set or not textual"), nil
	}
	pct, err := deps.Driver.FieldPercentUrls(ctx, table, f)
	if err != nil {
		return f, Outcome{}, fmt.Errorf("field percent urls: %w", err)
	}
	if pct <= URLThreshold {
		return f, noChange("below url threshold"), nil
	}
	special := catalogmodel.SpecialURL
	if err := deps.Store.UpdateField(ctx, f.ID, catalog.FieldPatch{SpecialType: doublePtr(&special)}); err != nil {
		return f, Outcome{}, fmt.Errorf("mark url: %w", err)
	}
	f.SpecialType = &special
	return f, changed("percent_urls above threshold"), nil
}

// NoPreviewMarker is pipeline stage 3: requires preview_display = true and
// a textual base type. If the driver reports avg_length > AvgLengthThreshold,
// sets preview_display = false.
func NoPreviewMarker(ctx context.Context, deps Deps, table catalogmodel.Table, f catalogmodel.Field) (catalogmodel.Field, Outcome, error) {
	if !f.PreviewDisplay || !f.BaseType.IsTextual() {
		return f, noChange("disqualified: preview already false or not textual"), nil
	}
	avg, err := deps.Driver.FieldAvgLength(ctx, table, f)
	if err != nil {
		return f, Outcome{}, fmt.Errorf("field avg length: %w", err)
	}
	if avg <= AvgLengthThreshold {
		return f, noChange("below avg length threshold"), nil
	}
	no := false
	if err := deps.Store.UpdateField(ctx, f.ID, catalog.FieldPatch{PreviewDisplay: &no}); err != nil {
		return f, Outcome{}, fmt.Errorf("clear preview display: %w", err)
	}
	f.PreviewDisplay = false
	return f, changed("avg_length above threshold"), nil
}

// CategoryOrFieldValuesRefresh is pipeline stage 4: if no special_type is
// set and preview_display is true, mark category when distinct count is in
// (0, CardinalityThreshold). Otherwise, if the field already qualifies for
// a FieldValues cache, trigger a refresh.
func CategoryOrFieldValuesRefresh(ctx context.Context, deps Deps, _ catalogmodel.Table, f catalogmodel.Field) (catalogmodel.Field, Outcome, error) {
	if f.SpecialType == nil && f.PreviewDisplay {
		n, err := deps.Store.FieldDistinctCount(ctx, f.ID, CardinalityThreshold)
		if err != nil {
			return f, Outcome{}, fmt.Errorf("field distinct count: %w", err)
		}
		if n > 0 && n < CardinalityThreshold {
			special := catalogmodel.SpecialCategory
			if err := deps.Store.UpdateField(ctx, f.ID, catalog.FieldPatch{SpecialType: doublePtr(&special)}); err != nil {
				return f, Outcome{}, fmt.Errorf("mark category: %w", err)
			}
			f.SpecialType = &special
			return f, changed(fmt.Sprintf("cardinality %d below threshold", n)), nil
		}
		return f, noChange("cardinality out of category range"), nil
	}

	should, err := deps.Store.FieldShouldHaveFieldValues(ctx, f)
	if err != nil {
		return f, Outcome{}, fmt.Errorf("field should have field values: %w", err)
	}
	if !should {
		return f, noChange("does not qualify for field values"), nil
	}
	if err := deps.Store.UpdateFieldValues(ctx, f); err != nil {
		return f, Outcome{}, fmt.Errorf("update field values: %w", err)
	}
	return f, changed("field values refreshed"), nil
}

// JSONMarker is pipeline stage 5: requires no special_type and a textual
// base type. Samples up to JSONSampleCap values; if every non-blank sample
// parses as a JSON object or array, and at least one non-blank sample
// exists, marks special_type = :json and preview_display = false.
func JSONMarker(ctx context.Context, deps Deps, table catalogmodel.Table, f catalogmodel.Field) (catalogmodel.Field, Outcome, error) {
	if f.SpecialType != nil || !f.BaseType.IsTextual() {
		return f, noChange("disqualified: special_type set or not textual"), nil
	}

	seq, err := deps.Driver.FieldValuesLazySeq(ctx, table, f)
	if err != nil {
		return f, Outcome{}, fmt.Errorf("field values lazy seq: %w", err)
	}
	defer seq.Close()

	qualifies, err := sampleQualifiesAsJSON(seq, JSONSampleCap)
	if err != nil {
		return f, Outcome{}, err
	}
	if !qualifies {
		return f, noChange("samples are not all JSON object/array"), nil
	}

	special := catalogmodel.SpecialJSON
	no := false
	if err := deps.Store.UpdateField(ctx, f.ID, catalog.FieldPatch{
		SpecialType:    doublePtr(&special),
		PreviewDisplay: &no,
	}); err != nil {
		return f, Outcome{}, fmt.Errorf("mark json: %w", err)
	}
	f.SpecialType = &special
	f.PreviewDisplay = false
	return f, changed("samples are all JSON object/array"), nil
}

// sampleQualifiesAsJSON implements the JSON qualification rule: every
// non-blank sample, up to cap samples, must parse as a JSON object or array
// (scalars disqualify), and at least one non-blank sample must exist.
func sampleQualifiesAsJSON(seq driver.LazySeq[*string], cap int) (bool, error) {
	sawNonBlank := false
	for i := 0; i < cap; i++ {
		val, ok := seq.Next()
		if !ok {
			break
		}
		if val == nil || strings.TrimSpace(*val) == "" {
			continue
		}
		sawNonBlank = true
		if !isJSONObjectOrArray(*val) {
			return false, nil
		}
	}
	return sawNonBlank, nil
}

func isJSONObjectOrArray(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '{', '[':
	default:
		return false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return false
	}
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// doublePtr wraps a *catalogmodel.SpecialType so it can be passed through
// FieldPatch.SpecialType's **SpecialType "set vs. leave unset" encoding.
func doublePtr(p *catalogmodel.SpecialType) **catalogmodel.SpecialType { return &p }
