package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/faucetdb/syncer/internal/catalogmodel"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTableCRUDAndDeactivate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tbl, err := s.InsertTable(ctx, catalogmodel.Table{DBID: 1, Schema: "public", Name: "orders"})
	if err != nil {
		t.Fatalf("InsertTable: %v", err)
	}
	if !tbl.Active {
		t.Error("expected newly inserted table to be active")
	}

	active, err := s.ActiveTables(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveTables: %v", err)
	}
	if len(active) != 1 || active[0].Name != "orders" {
		t.Fatalf("got %+v, want one active table named orders", active)
	}

	if err := s.DeactivateTables(ctx, []int64{tbl.ID}); err != nil {
		t.Fatalf("DeactivateTables: %v", err)
	}
	active, err = s.ActiveTables(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveTables after deactivate: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("got %d active tables after deactivate, want 0", len(active))
	}

	// A deactivated table is still findable by key, any status.
	got, err := s.TableByKey(ctx, 1, catalogmodel.TableKey{Schema: "public", Name: "orders"})
	if err != nil {
		t.Fatalf("TableByKey after deactivate: %v", err)
	}
	if got.Active {
		t.Error("expected table to be inactive after DeactivateTables")
	}
}

func TestTableByKeyNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.TableByKey(ctx, 1, catalogmodel.TableKey{Schema: "public", Name: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateTableReactivation(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tbl, err := s.InsertTable(ctx, catalogmodel.Table{DBID: 1, Schema: "", Name: "events"})
	if err != nil {
		t.Fatalf("InsertTable: %v", err)
	}
	if err := s.DeactivateTables(ctx, []int64{tbl.ID}); err != nil {
		t.Fatalf("DeactivateTables: %v", err)
	}

	active := true
	if err := s.UpdateTable(ctx, tbl.ID, TablePatch{Active: &active}); err != nil {
		t.Fatalf("UpdateTable (reactivate): %v", err)
	}

	got, err := s.TableByKey(ctx, 1, catalogmodel.TableKey{Schema: "", Name: "events"})
	if err != nil {
		t.Fatalf("TableByKey: %v", err)
	}
	if !got.Active {
		t.Error("expected table to be active after reactivation")
	}

	reActive, err := s.ActiveTables(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveTables: %v", err)
	}
	if len(reActive) != 1 {
		t.Fatalf("got %d active tables, want 1 after reactivation", len(reActive))
	}
}

func TestUpdateTableNoOpReturnsNilWithoutQuery(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// An empty patch against a nonexistent ID must not error: there is no
	// SET clause to execute, so RowsAffected is never consulted.
	if err := s.UpdateTable(ctx, 99999, TablePatch{}); err != nil {
		t.Errorf("expected nil error for empty patch, got %v", err)
	}
}

func TestUpdateTableMissingRowIsNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	active := true
	if err := s.UpdateTable(ctx, 99999, TablePatch{Active: &active}); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestFieldByNameAnyStatusSeesDeactivated(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tbl, err := s.InsertTable(ctx, catalogmodel.Table{DBID: 1, Name: "users"})
	if err != nil {
		t.Fatalf("InsertTable: %v", err)
	}
	f, err := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, Name: "email", BaseType: catalogmodel.CharField})
	if err != nil {
		t.Fatalf("InsertField: %v", err)
	}

	if err := s.DeactivateFields(ctx, []int64{f.ID}); err != nil {
		t.Fatalf("DeactivateFields: %v", err)
	}

	if _, err := s.FieldByName(ctx, tbl.ID, nil, "email"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FieldByName on deactivated field: got %v, want ErrNotFound", err)
	}

	got, err := s.FieldByNameAnyStatus(ctx, tbl.ID, nil, "email")
	if err != nil {
		t.Fatalf("FieldByNameAnyStatus: %v", err)
	}
	if got.ID != f.ID {
		t.Errorf("got field ID %d, want %d", got.ID, f.ID)
	}
	if got.Active {
		t.Error("expected deactivated field to still read as inactive")
	}
}

func TestNestedFieldIdentityIsScopedByParent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tbl, err := s.InsertTable(ctx, catalogmodel.Table{DBID: 1, Name: "profiles"})
	if err != nil {
		t.Fatalf("InsertTable: %v", err)
	}
	parent, err := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, Name: "meta", BaseType: catalogmodel.DictionaryField})
	if err != nil {
		t.Fatalf("InsertField(parent): %v", err)
	}

	// "name" at the top level and "name" nested under parent are distinct
	// identities, so both inserts must succeed despite sharing a name.
	if _, err := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, Name: "name", BaseType: catalogmodel.CharField}); err != nil {
		t.Fatalf("InsertField(top-level name): %v", err)
	}
	if _, err := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, ParentID: &parent.ID, Name: "name", BaseType: catalogmodel.CharField}); err != nil {
		t.Fatalf("InsertField(nested name): %v", err)
	}

	children, err := s.ActiveChildFields(ctx, parent.ID)
	if err != nil {
		t.Fatalf("ActiveChildFields: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("got %d children, want 1", len(children))
	}
}

func TestNameToHumanReadable(t *testing.T) {
	s := newTestSQLiteStore(t)
	cases := map[string]string{
		"user_id":    "User Id",
		"first-name": "First Name",
		"id":         "Id",
	}
	for in, want := range cases {
		if got := s.NameToHumanReadable(in); got != want {
			t.Errorf("NameToHumanReadable(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForeignKeyUpsertOnConflict(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tbl, _ := s.InsertTable(ctx, catalogmodel.Table{DBID: 1, Name: "orders"})
	origin, _ := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, Name: "customer_id", BaseType: catalogmodel.IntegerField})
	dest1, _ := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, Name: "id", BaseType: catalogmodel.IntegerField})
	dest2, _ := s.InsertField(ctx, catalogmodel.Field{TableID: tbl.ID, Name: "id2", BaseType: catalogmodel.IntegerField})

	if _, err := s.InsertForeignKey(ctx, catalogmodel.ForeignKey{
		OriginFieldID: origin.ID, DestinationFieldID: dest1.ID, Relationship: catalogmodel.ManyToOne,
	}); err != nil {
		t.Fatalf("InsertForeignKey: %v", err)
	}

	// Re-pointing the same origin at a different destination must upsert,
	// not violate the UNIQUE(origin_field_id) constraint.
	if _, err := s.InsertForeignKey(ctx, catalogmodel.ForeignKey{
		OriginFieldID: origin.ID, DestinationFieldID: dest2.ID, Relationship: catalogmodel.ManyToOne,
	}); err != nil {
		t.Fatalf("InsertForeignKey (re-point): %v", err)
	}

	got, err := s.ForeignKeyByOrigin(ctx, origin.ID)
	if err != nil {
		t.Fatalf("ForeignKeyByOrigin: %v", err)
	}
	if got.DestinationFieldID != dest2.ID {
		t.Errorf("got destination %d, want %d", got.DestinationFieldID, dest2.ID)
	}
}
