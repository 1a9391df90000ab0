package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTableReconciler(t *testing.T) (*TableReconciler, *catalog.SQLiteStore) {
	t.Helper()
	store, err := catalog.NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &TableReconciler{Store: store, Logger: newTestLogger()}, store
}

func TestTableReconcilerCreatesNewTables(t *testing.T) {
	r, _ := newTableReconciler(t)
	ctx := context.Background()
	db := catalogmodel.Database{ID: 1, Name: "warehouse"}

	got, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{
			{Schema: "public", Name: "orders"},
			{Schema: "public", Name: "customers"},
		},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tables, want 2", len(got))
	}
	if got[0].Name != "customers" || got[1].Name != "orders" {
		t.Errorf("got tables in order %v, want sorted by name", []string{got[0].Name, got[1].Name})
	}
}

func TestTableReconcilerExcludesMetadataTable(t *testing.T) {
	r, _ := newTableReconciler(t)
	ctx := context.Background()
	db := catalogmodel.Database{ID: 1}

	got, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{
			{Name: "orders"},
			{Name: "_metabase_metadata"},
		},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(got) != 1 || got[0].Name != "orders" {
		t.Fatalf("got %v, want only orders", got)
	}
}

func TestTableReconcilerDeactivatesMissingTables(t *testing.T) {
	r, _ := newTableReconciler(t)
	ctx := context.Background()
	db := catalogmodel.Database{ID: 1}

	if _, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{{Name: "orders"}, {Name: "customers"}},
	}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	got, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{{Name: "orders"}},
	})
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if len(got) != 1 || got[0].Name != "orders" {
		t.Fatalf("got %v, want only orders to remain active", got)
	}
}

func TestTableReconcilerReactivatesReappearingTable(t *testing.T) {
	r, store := newTableReconciler(t)
	ctx := context.Background()
	db := catalogmodel.Database{ID: 1}

	if _, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{{Schema: "public", Name: "orders"}},
	}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	original, err := store.TableByKey(ctx, db.ID, catalogmodel.TableKey{Schema: "public", Name: "orders"})
	if err != nil {
		t.Fatalf("TableByKey: %v", err)
	}

	// Deactivate by reporting it as gone, then bring it back in a later run.
	if _, err := r.Reconcile(ctx, db, driver.DatabaseDescription{Tables: nil}); err != nil {
		t.Fatalf("deactivating Reconcile: %v", err)
	}
	got, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{{Schema: "public", Name: "orders"}},
	})
	if err != nil {
		t.Fatalf("reactivating Reconcile: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d tables, want 1 reactivated table", len(got))
	}
	if got[0].ID != original.ID {
		t.Errorf("got a new row with ID %d, want the original row (ID %d) reactivated in place", got[0].ID, original.ID)
	}
	if !got[0].Active {
		t.Error("expected reactivated table to be active")
	}
}

func TestTableReconcilerRejectsEmptyName(t *testing.T) {
	r, _ := newTableReconciler(t)
	ctx := context.Background()
	db := catalogmodel.Database{ID: 1}

	_, err := r.Reconcile(ctx, db, driver.DatabaseDescription{
		Tables: []catalogmodel.TableDescriptor{{Name: ""}},
	})
	if err == nil {
		t.Fatal("expected an error for an empty table name")
	}
	var violation *DriverContractViolationError
	if !errors.As(err, &violation) {
		t.Errorf("got %v, want a DriverContractViolationError", err)
	}
}
