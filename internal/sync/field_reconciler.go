package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/classify"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/infer"
)

// FieldReconciler is C4: per-table (and, recursively, per-nested-field)
// reconciliation of the field list against the catalog, plus the analyze
// passes (row count, content classifiers) when enabled.
type FieldReconciler struct {
	Store    catalog.Store
	Driver   driver.Driver
	Inferrer *infer.Inferrer
	Logger   *slog.Logger
}

// Reconcile drives one table's top-level field list reconciliation, then
// runs classify.LiteStages against every field that has no special type,
// regardless of fullSync.
// When fullSync is true it additionally runs AnalyzeTable's row count
// update and classify.FullOnlyStages, the content-scanning classifiers.
func (r *FieldReconciler) Reconcile(ctx context.Context, table catalogmodel.Table, desc driver.TableDescription, fullSync bool) error {
	if err := validateFieldDescriptors(desc.Fields); err != nil {
		return &DriverContractViolationError{Component: "field-reconciler", Detail: err.Error()}
	}

	if table.DisplayName == "" {
		display := r.Store.NameToHumanReadable(table.Name)
		if err := r.Store.UpdateTable(ctx, table.ID, catalog.TablePatch{DisplayName: &display}); err != nil {
			return fmt.Errorf("set table display name: %w", err)
		}
		table.DisplayName = display
	}

	fields, err := r.reconcileFieldList(ctx, table, nil, desc.Fields)
	if err != nil {
		return err
	}

	stages := classify.LiteStages
	if fullSync {
		stages = classify.Pipeline

		analysis, err := r.Driver.AnalyzeTable(ctx, table)
		if err != nil {
			r.Logger.LogAttrs(ctx, slog.LevelError, "analyze table failed",
				slog.String("table", table.Name), slog.String("error", err.Error()))
		} else if analysis != nil {
			if err := r.updateRowCount(ctx, table, analysis); err != nil {
				r.Logger.LogAttrs(ctx, slog.LevelError, "row count update failed",
					slog.String("table", table.Name), slog.String("error", err.Error()))
			}
		}
	}

	deps := classify.Deps{Driver: r.Driver, Store: r.Store}
	for _, f := range fields {
		if err := r.syncField(ctx, deps, table, f, stages); err != nil {
			r.Logger.LogAttrs(ctx, slog.LevelError, "field sync failed",
				slog.String("table", table.Name), slog.String("field", f.Name),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// reconcileFieldList reconciles one level of fields (top-level when
// parentID is nil, nested children otherwise) against the catalog.
func (r *FieldReconciler) reconcileFieldList(ctx context.Context, table catalogmodel.Table, parentID *int64, incoming []catalogmodel.FieldDescriptor) ([]catalogmodel.Field, error) {
	var existing []catalogmodel.Field
	var err error
	if parentID == nil {
		existing, err = r.Store.ActiveTopLevelFields(ctx, table.ID)
	} else {
		existing, err = r.Store.ActiveChildFields(ctx, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load existing fields: %w", err)
	}
	existingByName := make(map[string]catalogmodel.Field, len(existing))
	for _, f := range existing {
		existingByName[f.Name] = f
	}

	incomingNames := make(map[string]bool, len(incoming))
	for _, fd := range incoming {
		incomingNames[fd.Name] = true
	}

	quiet := driver.LogContextFrom(ctx).SuppressCatalogLog
	var toDeactivate []int64
	for name, f := range existingByName {
		if !incomingNames[name] {
			toDeactivate = append(toDeactivate, f.ID)
			if !quiet {
				r.Logger.LogAttrs(ctx, slog.LevelInfo, "deactivating field", slog.String("field", name))
			}
		}
	}
	if err := r.Store.DeactivateFields(ctx, toDeactivate); err != nil {
		return nil, fmt.Errorf("deactivate fields: %w", err)
	}

	result := make([]catalogmodel.Field, 0, len(incoming))
	for _, fd := range incoming {
		current, hasExisting := existingByName[fd.Name]
		if !hasExisting {
			if prior, err := r.Store.FieldByNameAnyStatus(ctx, table.ID, parentID, fd.Name); err == nil {
				current, hasExisting = prior, true
			} else if !errors.Is(err, catalog.ErrNotFound) {
				return nil, fmt.Errorf("look up field %q: %w", fd.Name, err)
			}
		}

		f, err := r.reconcileOneField(ctx, table.ID, parentID, current, fd, hasExisting)
		if err != nil {
			return nil, err
		}
		result = append(result, f)

		if fd.BaseType == catalogmodel.DictionaryField && driver.HasCapability(r.Driver, driver.CapabilityNestedFields) {
			if err := r.reconcileNested(ctx, table, f); err != nil {
				r.Logger.LogAttrs(ctx, slog.LevelError, "nested field reconcile failed",
					slog.String("field", fd.Name), slog.String("error", err.Error()))
			}
		}
	}
	return result, nil
}

// reconcileOneField resolves special_type, display_name, and base_type and
// either inserts a new Field or updates the changed columns of an existing
// one. No-op writes are forbidden.
func (r *FieldReconciler) reconcileOneField(ctx context.Context, tableID int64, parentID *int64, existing catalogmodel.Field, fd catalogmodel.FieldDescriptor, hasExisting bool) (catalogmodel.Field, error) {
	resolvedSpecial := existing.SpecialType
	if resolvedSpecial == nil {
		resolvedSpecial = r.Inferrer.Infer(infer.FieldDescriptor{
			Name:             fd.Name,
			BaseType:         fd.BaseType,
			PK:               fd.PK,
			PriorSpecialType: existing.SpecialType,
		})
	}

	resolvedDisplay := existing.DisplayName
	if resolvedDisplay == "" {
		resolvedDisplay = r.Store.NameToHumanReadable(fd.Name)
	}

	if !hasExisting {
		return r.Store.InsertField(ctx, catalogmodel.Field{
			TableID:        tableID,
			ParentID:       parentID,
			Name:           fd.Name,
			BaseType:       fd.BaseType,
			SpecialType:    resolvedSpecial,
			DisplayName:    resolvedDisplay,
			PreviewDisplay: true,
		})
	}

	patch := catalog.FieldPatch{}
	changedAny := false
	if !existing.Active {
		active := true
		patch.Active = &active
		changedAny = true
	}
	if existing.DisplayName != resolvedDisplay {
		patch.DisplayName = &resolvedDisplay
		changedAny = true
	}
	if existing.BaseType != fd.BaseType {
		bt := fd.BaseType
		patch.BaseType = &bt
		changedAny = true
	}
	if !specialTypeEqual(existing.SpecialType, resolvedSpecial) {
		patch.SpecialType = doublePtrSpecial(resolvedSpecial)
		changedAny = true
	}
	if !changedAny {
		return existing, nil
	}
	if err := r.Store.UpdateField(ctx, existing.ID, patch); err != nil {
		return catalogmodel.Field{}, fmt.Errorf("update field %q: %w", fd.Name, err)
	}

	updated := existing
	if patch.Active != nil {
		updated.Active = *patch.Active
	}
	if patch.DisplayName != nil {
		updated.DisplayName = *patch.DisplayName
	}
	if patch.BaseType != nil {
		updated.BaseType = *patch.BaseType
	}
	if patch.SpecialType != nil {
		updated.SpecialType = *patch.SpecialType
	}
	return updated, nil
}

// reconcileNested deactivates children absent from the driver's current
// map, inserts children present but not yet recorded, and recurses into
// each child (new or existing) whose base type is DictionaryField.
func (r *FieldReconciler) reconcileNested(ctx context.Context, table catalogmodel.Table, parent catalogmodel.Field) error {
	childTypes, err := r.Driver.ActiveNestedFieldNameToType(ctx, table, parent)
	if err != nil {
		return fmt.Errorf("active nested field name to type: %w", err)
	}

	descriptors := make([]catalogmodel.FieldDescriptor, 0, len(childTypes))
	for name, bt := range childTypes {
		descriptors = append(descriptors, catalogmodel.FieldDescriptor{Name: name, BaseType: bt})
	}

	parentID := parent.ID
	_, err = r.reconcileFieldList(ctx, table, &parentID, descriptors)
	return err
}

// updateRowCount reads the row count out of the driver's own AnalyzeTable
// result rather than the catalog, which only ever knows what was last
// written here.
func (r *FieldReconciler) updateRowCount(ctx context.Context, table catalogmodel.Table, analysis map[string]any) error {
	raw, ok := analysis["row_count"]
	if !ok {
		return nil // this driver's analyze pass doesn't report a row count
	}
	var count int64
	switch v := raw.(type) {
	case int64:
		count = v
	case int:
		count = int64(v)
	default:
		return fmt.Errorf("analyze table: row_count has unexpected type %T", raw)
	}

	if table.Rows != nil && *table.Rows == count {
		return nil // unchanged; no-op writes are forbidden
	}
	return r.Store.UpdateTable(ctx, table.ID, catalog.TablePatch{Rows: &count})
}

// syncField runs stages (LiteStages on every sync, the full Pipeline when
// fullSync) for one field.
func (r *FieldReconciler) syncField(ctx context.Context, deps classify.Deps, table catalogmodel.Table, f catalogmodel.Field, stages []classify.Stage) error {
	if f.SpecialType != nil {
		return nil // classifiers never run against a field with a known special type
	}
	var firstErr error
	classify.Run(ctx, deps, table, f, stages, func(stageIndex int, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("stage %d: %w", stageIndex, err)
		}
		r.Logger.LogAttrs(ctx, slog.LevelError, "classifier stage failed",
			slog.String("field", f.Name), slog.Int("stage", stageIndex), slog.String("error", err.Error()))
	})
	return nil // per-unit failures inside the pipeline are already isolated per stage
}

func validateFieldDescriptors(fields []catalogmodel.FieldDescriptor) error {
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field descriptor at index %d has empty name", i)
		}
		if !catalogmodel.KnownBaseTypes[f.BaseType] {
			return fmt.Errorf("field %q has unknown base_type %q", f.Name, f.BaseType)
		}
	}
	return nil
}

func specialTypeEqual(a, b *catalogmodel.SpecialType) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func doublePtrSpecial(p *catalogmodel.SpecialType) **catalogmodel.SpecialType { return &p }
