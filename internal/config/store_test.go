package config

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegistrationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg := &Registration{
		Name:         "testdb",
		Driver:       "postgres",
		DSN:          "postgres://localhost/test",
		Schema:       "public",
		IsActive:     true,
		SyncInterval: DefaultSyncInterval,
		Pool:         DefaultPoolConfig(),
	}
	if err := s.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}
	if reg.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}

	got, err := s.GetRegistration(ctx, reg.ID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if got.Name != "testdb" {
		t.Errorf("got name %q, want %q", got.Name, "testdb")
	}
	if got.Driver != "postgres" {
		t.Errorf("got driver %q, want %q", got.Driver, "postgres")
	}

	got2, err := s.GetRegistrationByName(ctx, "testdb")
	if err != nil {
		t.Fatalf("GetRegistrationByName: %v", err)
	}
	if got2.ID != reg.ID {
		t.Errorf("got ID %d, want %d", got2.ID, reg.ID)
	}

	list, err := s.ListRegistrations(ctx)
	if err != nil {
		t.Fatalf("ListRegistrations: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d registrations, want 1", len(list))
	}

	reg.Schema = "analytics"
	if err := s.UpdateRegistration(ctx, reg); err != nil {
		t.Fatalf("UpdateRegistration: %v", err)
	}
	got3, _ := s.GetRegistration(ctx, reg.ID)
	if got3.Schema != "analytics" {
		t.Errorf("got schema %q, want %q", got3.Schema, "analytics")
	}

	if err := s.DeleteRegistration(ctx, reg.ID); err != nil {
		t.Fatalf("DeleteRegistration: %v", err)
	}
	_, err = s.GetRegistration(ctx, reg.ID)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRegistrationByName_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetRegistrationByName(ctx, "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveRegistrations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := &Registration{Name: "active-db", Driver: "sqlite", DSN: "file::memory:", IsActive: true, SyncInterval: DefaultSyncInterval, Pool: DefaultPoolConfig()}
	inactive := &Registration{Name: "inactive-db", Driver: "sqlite", DSN: "file::memory:", IsActive: false, SyncInterval: DefaultSyncInterval, Pool: DefaultPoolConfig()}
	if err := s.CreateRegistration(ctx, active); err != nil {
		t.Fatalf("CreateRegistration(active): %v", err)
	}
	if err := s.CreateRegistration(ctx, inactive); err != nil {
		t.Fatalf("CreateRegistration(inactive): %v", err)
	}

	got, err := s.ListActiveRegistrations(ctx)
	if err != nil {
		t.Fatalf("ListActiveRegistrations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d active registrations, want 1", len(got))
	}
	if got[0].Name != "active-db" {
		t.Errorf("got %q, want %q", got[0].Name, "active-db")
	}
}

func TestUpdateRegistration_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg := &Registration{ID: 999, Name: "ghost", Driver: "postgres", DSN: "x", Pool: DefaultPoolConfig()}
	if err := s.UpdateRegistration(ctx, reg); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRegistration_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.DeleteRegistration(ctx, 999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPoolConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pool := PoolConfig{
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: 10 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
	}

	reg := &Registration{
		Name:         "pooltest",
		Driver:       "postgres",
		DSN:          "postgres://localhost/test",
		Schema:       "public",
		IsActive:     true,
		SyncInterval: DefaultSyncInterval,
		Pool:         pool,
	}
	if err := s.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}

	got, err := s.GetRegistration(ctx, reg.ID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}

	if got.Pool.MaxOpenConns != 50 {
		t.Errorf("MaxOpenConns: got %d, want 50", got.Pool.MaxOpenConns)
	}
	if got.Pool.MaxIdleConns != 10 {
		t.Errorf("MaxIdleConns: got %d, want 10", got.Pool.MaxIdleConns)
	}
	if got.Pool.ConnMaxLifetime != 10*time.Minute {
		t.Errorf("ConnMaxLifetime: got %v, want 10m", got.Pool.ConnMaxLifetime)
	}
}
