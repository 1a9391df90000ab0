package classify

import (
	"context"
	"testing"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

func TestSampleQualifiesAsJSON(t *testing.T) {
	tests := []struct {
		name    string
		samples []*string
		want    bool
	}{
		{"scalar disqualifies", []*string{strp(`"42"`)}, false},
		{"object qualifies", []*string{strp(`{"a":1}`)}, true},
		{"null scalar disqualifies, blank ignored", []*string{strp("null"), strp("")}, false},
		{"object and null qualify, null ignored", []*string{strp(`{"a":1}`), nil}, true},
		{"array qualifies", []*string{strp(`[1,2]`)}, true},
		{"mixed object then scalar disqualifies", []*string{strp(`{"a":1}`), strp("7")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := &sliceSeq{items: tt.samples}
			got, err := sampleQualifiesAsJSON(seq, JSONSampleCap)
			if err != nil {
				t.Fatalf("sampleQualifiesAsJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("sampleQualifiesAsJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampleQualifiesAsJSON_RespectsCap(t *testing.T) {
	// The first two samples (the cap passed below) are objects; the
	// disqualifying scalar sits just past the cap and must not be consulted.
	items := make([]*string, 0, 3)
	items = append(items, strp(`{"a":1}`), strp(`{"b":2}`), strp("7"))
	seq := &sliceSeq{items: items}
	got, err := sampleQualifiesAsJSON(seq, 2)
	if err != nil {
		t.Fatalf("sampleQualifiesAsJSON() error = %v", err)
	}
	if !got {
		t.Errorf("sampleQualifiesAsJSON() = false, want true within cap")
	}
}

func strp(s string) *string { return &s }

// fakeDriver implements driver.Driver with configurable returns for the
// handful of methods the classifier stages actually call; every other
// method is a stub the stages never reach in these tests.
type fakeDriver struct {
	percentUrls float64
	avgLength   int
}

func (d *fakeDriver) SyncInContext(ctx context.Context, _ catalogmodel.Database, fn func(context.Context) error) error {
	return fn(ctx)
}
func (d *fakeDriver) DescribeDatabase(context.Context, catalogmodel.Database) (driver.DatabaseDescription, error) {
	return driver.DatabaseDescription{}, nil
}
func (d *fakeDriver) DescribeTable(context.Context, catalogmodel.Table) (driver.TableDescription, error) {
	return driver.TableDescription{}, nil
}
func (d *fakeDriver) DescribeTableFks(context.Context, catalogmodel.Table) ([]driver.FKDescription, error) {
	return nil, nil
}
func (d *fakeDriver) AnalyzeTable(context.Context, catalogmodel.Table) (map[string]any, error) {
	return nil, nil
}
func (d *fakeDriver) FieldPercentUrls(context.Context, catalogmodel.Table, catalogmodel.Field) (float64, error) {
	return d.percentUrls, nil
}
func (d *fakeDriver) FieldAvgLength(context.Context, catalogmodel.Table, catalogmodel.Field) (int, error) {
	return d.avgLength, nil
}
func (d *fakeDriver) FieldValuesLazySeq(context.Context, catalogmodel.Table, catalogmodel.Field) (driver.LazySeq[*string], error) {
	return &sliceSeq{}, nil
}
func (d *fakeDriver) ActiveNestedFieldNameToType(context.Context, catalogmodel.Table, catalogmodel.Field) (map[string]catalogmodel.BaseType, error) {
	return nil, nil
}
func (d *fakeDriver) TableRowsSeq(context.Context, catalogmodel.Database, string) (driver.LazySeq[driver.MetadataRow], error) {
	return nil, nil
}
func (d *fakeDriver) Features() map[driver.Capability]bool { return nil }
func (d *fakeDriver) DriverSpecificSyncField(_ context.Context, f catalogmodel.Field) (catalogmodel.Field, error) {
	return f, nil
}
func (d *fakeDriver) Name() string { return "fake" }

// fakeStore implements catalog.Store with configurable returns for the
// field-values methods CategoryOrFieldValuesRefresh calls; the rest are
// unused by the classifier stages and stub out to zero values.
type fakeStore struct {
	distinctCount        int
	shouldHaveFieldValues bool
	updateFieldCalls      []catalog.FieldPatch
	updateFieldValuesCalls int
}

func (s *fakeStore) ActiveTables(context.Context, int64) ([]catalogmodel.Table, error) { return nil, nil }
func (s *fakeStore) InsertTable(context.Context, catalogmodel.Table) (catalogmodel.Table, error) {
	return catalogmodel.Table{}, nil
}
func (s *fakeStore) UpdateTable(context.Context, int64, catalog.TablePatch) error { return nil }
func (s *fakeStore) DeactivateTables(context.Context, []int64) error             { return nil }
func (s *fakeStore) TableByKey(context.Context, int64, catalogmodel.TableKey) (catalogmodel.Table, error) {
	return catalogmodel.Table{}, nil
}
func (s *fakeStore) TableByNameInDB(context.Context, int64, string) (catalogmodel.Table, error) {
	return catalogmodel.Table{}, nil
}
func (s *fakeStore) ActiveTopLevelFields(context.Context, int64) ([]catalogmodel.Field, error) {
	return nil, nil
}
func (s *fakeStore) ActiveChildFields(context.Context, int64) ([]catalogmodel.Field, error) {
	return nil, nil
}
func (s *fakeStore) InsertField(context.Context, catalogmodel.Field) (catalogmodel.Field, error) {
	return catalogmodel.Field{}, nil
}
func (s *fakeStore) UpdateField(_ context.Context, _ int64, patch catalog.FieldPatch) error {
	s.updateFieldCalls = append(s.updateFieldCalls, patch)
	return nil
}
func (s *fakeStore) DeactivateFields(context.Context, []int64) error            { return nil }
func (s *fakeStore) DeactivateFieldsForTables(context.Context, []int64) error   { return nil }
func (s *fakeStore) FieldByName(context.Context, int64, *int64, string) (catalogmodel.Field, error) {
	return catalogmodel.Field{}, catalog.ErrNotFound
}
func (s *fakeStore) FieldByNameAnyStatus(context.Context, int64, *int64, string) (catalogmodel.Field, error) {
	return catalogmodel.Field{}, catalog.ErrNotFound
}
func (s *fakeStore) FieldByID(context.Context, int64) (catalogmodel.Field, error) {
	return catalogmodel.Field{}, catalog.ErrNotFound
}
func (s *fakeStore) FieldInTableByName(context.Context, int64, string, string) (catalogmodel.Field, error) {
	return catalogmodel.Field{}, catalog.ErrNotFound
}
func (s *fakeStore) InsertForeignKey(context.Context, catalogmodel.ForeignKey) (catalogmodel.ForeignKey, error) {
	return catalogmodel.ForeignKey{}, nil
}
func (s *fakeStore) ForeignKeyByOrigin(context.Context, int64) (catalogmodel.ForeignKey, error) {
	return catalogmodel.ForeignKey{}, catalog.ErrNotFound
}
func (s *fakeStore) FieldDistinctCount(context.Context, int64, int) (int, error) {
	return s.distinctCount, nil
}
func (s *fakeStore) FieldShouldHaveFieldValues(context.Context, catalogmodel.Field) (bool, error) {
	return s.shouldHaveFieldValues, nil
}
func (s *fakeStore) UpdateFieldValues(context.Context, catalogmodel.Field) error {
	s.updateFieldValuesCalls++
	return nil
}
func (s *fakeStore) TableRowCount(context.Context, int64) (int64, error) { return 0, nil }
func (s *fakeStore) NameToHumanReadable(name string) string              { return name }

func textualField() catalogmodel.Field {
	return catalogmodel.Field{ID: 1, Name: "bio", BaseType: catalogmodel.CharField, PreviewDisplay: true}
}

func TestURLMarkerAboveThreshold(t *testing.T) {
	deps := Deps{Driver: &fakeDriver{percentUrls: 0.96}, Store: &fakeStore{}}
	got, outcome, err := URLMarker(context.Background(), deps, catalogmodel.Table{}, textualField())
	if err != nil {
		t.Fatalf("URLMarker: %v", err)
	}
	if !outcome.Changed || got.SpecialType == nil || *got.SpecialType != catalogmodel.SpecialURL {
		t.Errorf("got field %+v outcome %+v, want special_type url", got, outcome)
	}
}

func TestURLMarkerAtThresholdDoesNotMark(t *testing.T) {
	deps := Deps{Driver: &fakeDriver{percentUrls: URLThreshold}, Store: &fakeStore{}}
	got, outcome, err := URLMarker(context.Background(), deps, catalogmodel.Table{}, textualField())
	if err != nil {
		t.Fatalf("URLMarker: %v", err)
	}
	if outcome.Changed || got.SpecialType != nil {
		t.Errorf("got field %+v outcome %+v, want no change at the threshold itself", got, outcome)
	}
}

func TestNoPreviewMarkerAboveThreshold(t *testing.T) {
	deps := Deps{Driver: &fakeDriver{avgLength: AvgLengthThreshold + 1}, Store: &fakeStore{}}
	got, outcome, err := NoPreviewMarker(context.Background(), deps, catalogmodel.Table{}, textualField())
	if err != nil {
		t.Fatalf("NoPreviewMarker: %v", err)
	}
	if !outcome.Changed || got.PreviewDisplay {
		t.Errorf("got field %+v outcome %+v, want preview_display cleared", got, outcome)
	}
}

func TestNoPreviewMarkerAtThresholdDoesNotMark(t *testing.T) {
	deps := Deps{Driver: &fakeDriver{avgLength: AvgLengthThreshold}, Store: &fakeStore{}}
	got, outcome, err := NoPreviewMarker(context.Background(), deps, catalogmodel.Table{}, textualField())
	if err != nil {
		t.Fatalf("NoPreviewMarker: %v", err)
	}
	if outcome.Changed || !got.PreviewDisplay {
		t.Errorf("got field %+v outcome %+v, want no change at the threshold itself", got, outcome)
	}
}

func TestCategoryOrFieldValuesRefreshMarksCategoryBelowThreshold(t *testing.T) {
	store := &fakeStore{distinctCount: CardinalityThreshold - 1}
	deps := Deps{Driver: &fakeDriver{}, Store: store}
	got, outcome, err := CategoryOrFieldValuesRefresh(context.Background(), deps, catalogmodel.Table{}, textualField())
	if err != nil {
		t.Fatalf("CategoryOrFieldValuesRefresh: %v", err)
	}
	if !outcome.Changed || got.SpecialType == nil || *got.SpecialType != catalogmodel.SpecialCategory {
		t.Errorf("got field %+v outcome %+v, want special_type category", got, outcome)
	}
}

func TestCategoryOrFieldValuesRefreshAtCardinalityThresholdDoesNotMark(t *testing.T) {
	store := &fakeStore{distinctCount: CardinalityThreshold}
	deps := Deps{Driver: &fakeDriver{}, Store: store}
	got, outcome, err := CategoryOrFieldValuesRefresh(context.Background(), deps, catalogmodel.Table{}, textualField())
	if err != nil {
		t.Fatalf("CategoryOrFieldValuesRefresh: %v", err)
	}
	if outcome.Changed || got.SpecialType != nil {
		t.Errorf("got field %+v outcome %+v, want no change at the cardinality threshold itself", got, outcome)
	}
}

func TestCategoryOrFieldValuesRefreshFallsBackToFieldValuesRefresh(t *testing.T) {
	f := textualField()
	f.PreviewDisplay = false // disqualified from the category branch
	store := &fakeStore{shouldHaveFieldValues: true}
	deps := Deps{Driver: &fakeDriver{}, Store: store}
	got, outcome, err := CategoryOrFieldValuesRefresh(context.Background(), deps, catalogmodel.Table{}, f)
	if err != nil {
		t.Fatalf("CategoryOrFieldValuesRefresh: %v", err)
	}
	if !outcome.Changed || store.updateFieldValuesCalls != 1 {
		t.Errorf("got outcome %+v, updateFieldValuesCalls %d, want a refreshed field values cache", outcome, store.updateFieldValuesCalls)
	}
	_ = got
}

func TestRunLiteStagesSkipsFullOnlyStages(t *testing.T) {
	// A field with high avg length would be marked no-preview by
	// NoPreviewMarker, but LiteStages never reaches that stage.
	deps := Deps{Driver: &fakeDriver{avgLength: AvgLengthThreshold + 1}, Store: &fakeStore{}}
	got := Run(context.Background(), deps, catalogmodel.Table{}, textualField(), LiteStages, nil)
	if !got.PreviewDisplay {
		t.Errorf("got preview_display %v, want true: LiteStages must not run NoPreviewMarker", got.PreviewDisplay)
	}
}

// sliceSeq is a minimal driver.LazySeq[*string] backed by a slice, used only
// by this package's tests.
type sliceSeq struct {
	items []*string
	pos   int
}

func (s *sliceSeq) Next() (*string, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

func (s *sliceSeq) Close() error { return nil }
