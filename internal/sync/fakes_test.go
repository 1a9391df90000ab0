package sync

import (
	"context"

	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

// fakeDriver implements driver.Driver with configurable returns for the
// methods this package's tests actually exercise; everything else is a
// stub the tests never reach.
type fakeDriver struct {
	fks              []driver.FKDescription
	fksErr           error
	nestedFieldTypes map[string]catalogmodel.BaseType
	capabilities     map[driver.Capability]bool
	analysis         map[string]any
	metadataRows     []driver.MetadataRow

	tables           []catalogmodel.TableDescriptor
	fieldsByTable    map[string][]catalogmodel.FieldDescriptor
	describeTableErr map[string]error
}

func (d *fakeDriver) SyncInContext(ctx context.Context, _ catalogmodel.Database, fn func(context.Context) error) error {
	return fn(ctx)
}
func (d *fakeDriver) DescribeDatabase(context.Context, catalogmodel.Database) (driver.DatabaseDescription, error) {
	return driver.DatabaseDescription{Tables: d.tables}, nil
}
func (d *fakeDriver) DescribeTable(_ context.Context, table catalogmodel.Table) (driver.TableDescription, error) {
	if err, ok := d.describeTableErr[table.Name]; ok {
		return driver.TableDescription{}, err
	}
	return driver.TableDescription{Fields: d.fieldsByTable[table.Name]}, nil
}
func (d *fakeDriver) DescribeTableFks(context.Context, catalogmodel.Table) ([]driver.FKDescription, error) {
	if d.fksErr != nil {
		return nil, d.fksErr
	}
	return d.fks, nil
}
func (d *fakeDriver) AnalyzeTable(context.Context, catalogmodel.Table) (map[string]any, error) {
	return d.analysis, nil
}
func (d *fakeDriver) FieldPercentUrls(context.Context, catalogmodel.Table, catalogmodel.Field) (float64, error) {
	return 0, nil
}
func (d *fakeDriver) FieldAvgLength(context.Context, catalogmodel.Table, catalogmodel.Field) (int, error) {
	return 0, nil
}
func (d *fakeDriver) FieldValuesLazySeq(context.Context, catalogmodel.Table, catalogmodel.Field) (driver.LazySeq[*string], error) {
	return &fakeLazySeq[*string]{}, nil
}
func (d *fakeDriver) ActiveNestedFieldNameToType(context.Context, catalogmodel.Table, catalogmodel.Field) (map[string]catalogmodel.BaseType, error) {
	return d.nestedFieldTypes, nil
}
func (d *fakeDriver) TableRowsSeq(context.Context, catalogmodel.Database, string) (driver.LazySeq[driver.MetadataRow], error) {
	return &fakeLazySeq[driver.MetadataRow]{items: d.metadataRows}, nil
}
func (d *fakeDriver) Features() map[driver.Capability]bool { return d.capabilities }
func (d *fakeDriver) DriverSpecificSyncField(_ context.Context, f catalogmodel.Field) (catalogmodel.Field, error) {
	return f, nil
}
func (d *fakeDriver) Name() string { return "fake" }

// fakeLazySeq is a minimal driver.LazySeq[T] backed by a slice.
type fakeLazySeq[T any] struct {
	items []T
	pos   int
}

func (s *fakeLazySeq[T]) Next() (T, bool) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

func (s *fakeLazySeq[T]) Close() error { return nil }
