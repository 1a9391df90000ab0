package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/eventbus"
	"github.com/faucetdb/syncer/internal/infer"
)

type fakeBus struct {
	events []string
}

func (b *fakeBus) Publish(_ context.Context, event string, _ map[string]any) {
	b.events = append(b.events, event)
}

func newOrchestrator(t *testing.T) (*Orchestrator, *catalog.SQLiteStore, *fakeBus) {
	t.Helper()
	store, err := catalog.NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	inf, err := infer.New()
	if err != nil {
		t.Fatalf("infer.New: %v", err)
	}
	bus := &fakeBus{}
	return NewOrchestrator(store, bus, inf, newTestLogger()), store, bus
}

func TestOrchestratorSyncsEveryTable(t *testing.T) {
	o, store, bus := newOrchestrator(t)
	d := &fakeDriver{
		tables: []catalogmodel.TableDescriptor{{Name: "orders"}, {Name: "customers"}},
		fieldsByTable: map[string][]catalogmodel.FieldDescriptor{
			"orders":    {{Name: "id", BaseType: catalogmodel.IntegerField, PK: true}},
			"customers": {{Name: "id", BaseType: catalogmodel.IntegerField, PK: true}},
		},
	}
	db := catalogmodel.Database{ID: 1, Name: "warehouse"}

	if err := o.SyncDatabase(context.Background(), d, db, false, driver.LogContext{}); err != nil {
		t.Fatalf("SyncDatabase: %v", err)
	}

	tables, err := store.ActiveTables(context.Background(), db.ID)
	if err != nil {
		t.Fatalf("ActiveTables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(tables))
	}
	if bus.events[0] != eventbus.DatabaseSyncBegin || bus.events[len(bus.events)-1] != eventbus.DatabaseSyncEnd {
		t.Errorf("got events %v, want begin ... end", bus.events)
	}
}

func TestOrchestratorAbortsRunOnDriverContractViolation(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	d := &fakeDriver{
		tables: []catalogmodel.TableDescriptor{{Name: "orders"}, {Name: "customers"}},
		fieldsByTable: map[string][]catalogmodel.FieldDescriptor{
			"customers": {{Name: "id", BaseType: catalogmodel.IntegerField, PK: true}},
		},
		describeTableErr: map[string]error{"orders": errors.New("malformed describe_table response")},
	}
	db := catalogmodel.Database{ID: 1, Name: "warehouse"}

	err := o.SyncDatabase(context.Background(), d, db, false, driver.LogContext{})
	if err == nil {
		t.Fatal("expected SyncDatabase to return an error")
	}
	var violation *DriverContractViolationError
	if !errors.As(err, &violation) {
		t.Errorf("got %v, want a DriverContractViolationError to propagate out of the run", err)
	}
}

func TestOrchestratorAbortsRunOnFKContractViolation(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	d := &fakeDriver{
		tables: []catalogmodel.TableDescriptor{{Name: "orders"}},
		fieldsByTable: map[string][]catalogmodel.FieldDescriptor{
			"orders": {{Name: "id", BaseType: catalogmodel.IntegerField, PK: true}},
		},
		capabilities: map[driver.Capability]bool{driver.CapabilityForeignKeys: true},
		fksErr:       errors.New("malformed fk response"),
	}
	db := catalogmodel.Database{ID: 1, Name: "warehouse"}

	err := o.SyncDatabase(context.Background(), d, db, false, driver.LogContext{})
	if err == nil {
		t.Fatal("expected SyncDatabase to return an error")
	}
	var violation *DriverContractViolationError
	if !errors.As(err, &violation) {
		t.Errorf("got %v, want a DriverContractViolationError to propagate out of the FK loop", err)
	}
}
