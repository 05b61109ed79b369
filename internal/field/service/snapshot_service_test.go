package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
)

func TestSnapshotScopedToTechnician(t *testing.T) {
	f := setupFieldTest(t)
	f.seedCatalog(t)
	ctx := context.Background()

	mine := f.createTestOrder(t)

	// 另一名技师的工单不得混入
	other := f.seedUser(t, "tech-002", "Other Tech", "technician")
	if _, err := f.Order.Create(ctx, "admin-001", &CreateOrderRequest{
		ClientID:      f.Client.ID,
		EquipmentID:   f.Machine.ID,
		ServiceTypeID: f.ServiceType.ID,
		TechnicianID:  other.ID,
		Priority:      entity.PriorityNormal,
	}); err != nil {
		t.Fatalf("Failed to create other order: %v", err)
	}

	snap, err := f.Snapshot.Build(ctx, f.Technician.ID, time.Now())
	if err != nil {
		t.Fatalf("Build snapshot failed: %v", err)
	}
	if len(snap.Orders) != 1 {
		t.Fatalf("Expected 1 order in snapshot, got %d", len(snap.Orders))
	}
	if snap.Orders[0].Order.ID != mine.ID {
		t.Errorf("Expected order %s, got %s", mine.ID, snap.Orders[0].Order.ID)
	}

	if _, err := f.Snapshot.Build(ctx, "", time.Now()); !errors.Is(err, ErrValidation) {
		t.Errorf("Empty technician id should fail validation, got %v", err)
	}
}

func TestSnapshotRetentionWindow(t *testing.T) {
	f := setupFieldTest(t)
	f.seedCatalog(t)
	ctx := context.Background()
	now := time.Now()

	recent := f.createTestOrder(t)
	stale := f.createTestOrder(t)

	// 直接置终态绕过全流程，只看检索窗口
	completed := f.States[entity.OrderStateCompleted]
	f.closeOrder(t, recent.ID, completed.ID, now.AddDate(0, 0, -5))
	f.closeOrder(t, stale.ID, completed.ID, now.AddDate(0, 0, -45))

	snap, err := f.Snapshot.Build(ctx, f.Technician.ID, now)
	if err != nil {
		t.Fatalf("Build snapshot failed: %v", err)
	}
	if len(snap.Orders) != 1 {
		t.Fatalf("Expected only the recently closed order, got %d", len(snap.Orders))
	}
	if snap.Orders[0].Order.ID != recent.ID {
		t.Errorf("Expected order %s, got %s", recent.ID, snap.Orders[0].Order.ID)
	}
}

func TestSnapshotHydratesExecutionRecords(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, param := f.seedCatalog(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	if _, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		CatalogActivityID: acts[0].ID,
	}); err != nil {
		t.Fatalf("Record activity failed: %v", err)
	}
	v := 4.1
	if _, err := f.Execution.RecordMeasurement(ctx, order.ID, f.Technician.ID, &RecordMeasurementRequest{
		ParameterID:  param.ID,
		ValueNumeric: &v,
	}); err != nil {
		t.Fatalf("Record measurement failed: %v", err)
	}
	if _, err := f.Execution.RecordSignature(ctx, order.ID, &RecordSignatureRequest{
		PersonID: f.Technician.ID,
		Role:     entity.SignatureRoleTechnician,
		Payload:  "c2ln",
	}); err != nil {
		t.Fatalf("Record signature failed: %v", err)
	}

	snap, err := f.Snapshot.Build(ctx, f.Technician.ID, time.Now())
	if err != nil {
		t.Fatalf("Build snapshot failed: %v", err)
	}
	if len(snap.Orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(snap.Orders))
	}
	so := snap.Orders[0]

	if so.Checklist == nil || so.Checklist.Source != ChecklistSourceCatalog {
		t.Error("Snapshot should embed the resolved checklist")
	}
	if len(so.Activities) != 1 {
		t.Errorf("Expected 1 executed activity, got %d", len(so.Activities))
	}
	if len(so.Readings) != 1 {
		t.Errorf("Expected 1 measurement, got %d", len(so.Readings))
	}
	if so.TechSignature == nil {
		t.Error("Technician signature should be embedded")
	}
	if so.ClientSignature != nil {
		t.Error("No client signature was recorded")
	}
	if len(so.Order.Equipments) != 1 {
		t.Errorf("Expected 1 equipment row, got %d", len(so.Order.Equipments))
	}
}
