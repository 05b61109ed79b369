package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/testutil"
)

func TestAttachRejectedOnClosedOrder(t *testing.T) {
	f := setupFieldTest(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	f.closeOrder(t, order.ID, f.States[entity.OrderStateCompleted].ID, time.Now())

	eq2 := testutil.SeedTestEquipment(t, f.DB, "equip-002", f.Client.ID, "Chiller Unit B")
	_, err := f.Equipment.Attach(ctx, order.ID, &AttachRequest{EquipmentID: eq2.ID})
	if !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Attach to closed order should be rejected, got %v", err)
	}

	oes, err := f.Equipment.List(ctx, order.ID)
	if err != nil {
		t.Fatalf("List equipment failed: %v", err)
	}
	if len(oes) != 1 {
		t.Errorf("Closed order should keep its single equipment row, got %d", len(oes))
	}
}

func TestAttachKeepsSequenceContiguous(t *testing.T) {
	f := setupFieldTest(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	for i, id := range []string{"equip-002", "equip-003"} {
		eq := testutil.SeedTestEquipment(t, f.DB, id, f.Client.ID, "Compressor Unit")
		oe, err := f.Equipment.Attach(ctx, order.ID, &AttachRequest{EquipmentID: eq.ID})
		if err != nil {
			t.Fatalf("Attach %s failed: %v", id, err)
		}
		if oe.Sequence != i+2 {
			t.Errorf("Expected sequence %d for %s, got %d", i+2, id, oe.Sequence)
		}
	}

	oes, err := f.Equipment.List(ctx, order.ID)
	if err != nil {
		t.Fatalf("List equipment failed: %v", err)
	}
	for i, oe := range oes {
		if oe.Sequence != i+1 {
			t.Errorf("Sequence gap at position %d: got %d", i, oe.Sequence)
		}
	}
}
