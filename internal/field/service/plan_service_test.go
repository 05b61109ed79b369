package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/mekanos/internal/field/entity"
)

func TestChecklistFallsBackToCatalog(t *testing.T) {
	f := setupFieldTest(t)
	f.seedCatalog(t)
	order := f.createTestOrder(t)

	checklist, err := f.Plan.ResolveByOrderID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if checklist.Source != ChecklistSourceCatalog {
		t.Errorf("Expected source CATALOG, got %s", checklist.Source)
	}
	if len(checklist.Items) != 2 {
		t.Fatalf("Expected 2 catalog items, got %d", len(checklist.Items))
	}
	// 目录回退是虚拟计划：顺序从1起连续，来源标记目录默认
	for i, item := range checklist.Items {
		if item.Sequence != i+1 {
			t.Errorf("Item %d: expected sequence %d, got %d", i, i+1, item.Sequence)
		}
		if item.Origin != entity.PlanOriginCatalog {
			t.Errorf("Item %d: expected origin CATALOG_DEFAULT, got %s", i, item.Origin)
		}
	}
	// 测量项带参数定义下发
	if checklist.Items[1].Parameter == nil {
		t.Error("Measurement item should carry its parameter definition")
	}
	// 回退不落库
	count, err := f.Repos.Plan.CountByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("CountByOrder failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Catalog fallback must not persist plan rows, found %d", count)
	}
}

func TestChecklistPlanIsExclusive(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, _ := f.seedCatalog(t)
	order := f.createTestOrder(t)

	// 只指派一个目录项作为工单专属计划
	_, err := f.Plan.Assign(context.Background(), order.ID, &AssignRequest{
		ActivityIDs: []string{acts[0].ID},
	})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	checklist, err := f.Plan.ResolveByOrderID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if checklist.Source != ChecklistSourcePlan {
		t.Errorf("Expected source PLAN, got %s", checklist.Source)
	}
	// 计划是唯一来源：目录里还有 act-002，但绝不混入
	if len(checklist.Items) != 1 {
		t.Fatalf("Plan must be exclusive, expected 1 item, got %d", len(checklist.Items))
	}
	if checklist.Items[0].CatalogActivityID != acts[0].ID {
		t.Errorf("Expected activity %s, got %s", acts[0].ID, checklist.Items[0].CatalogActivityID)
	}
	if checklist.Items[0].Origin != entity.PlanOriginAdmin {
		t.Errorf("Expected origin ADMIN_OVERRIDE, got %s", checklist.Items[0].Origin)
	}
}

func TestAssignReplacesAtomically(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, _ := f.seedCatalog(t)
	order := f.createTestOrder(t)

	ctx := context.Background()
	if _, err := f.Plan.Assign(ctx, order.ID, &AssignRequest{ActivityIDs: []string{acts[0].ID, acts[1].ID}}); err != nil {
		t.Fatalf("First assign failed: %v", err)
	}
	rows, err := f.Plan.Assign(ctx, order.ID, &AssignRequest{ActivityIDs: []string{acts[1].ID}})
	if err != nil {
		t.Fatalf("Second assign failed: %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("Expected replacement to leave 1 row, got %d", len(rows))
	}
	if rows[0].CatalogActivityID != acts[1].ID {
		t.Errorf("Expected remaining activity %s, got %s", acts[1].ID, rows[0].CatalogActivityID)
	}
	if rows[0].Sequence != 1 {
		t.Errorf("Replacement should renumber from 1, got %d", rows[0].Sequence)
	}
}

func TestAssignRejectsBadInput(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, _ := f.seedCatalog(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	if _, err := f.Plan.Assign(ctx, order.ID, &AssignRequest{ActivityIDs: []string{}}); !errors.Is(err, ErrValidation) {
		t.Errorf("Empty activity list should fail validation, got %v", err)
	}
	if _, err := f.Plan.Assign(ctx, order.ID, &AssignRequest{ActivityIDs: []string{acts[0].ID, acts[0].ID}}); !errors.Is(err, ErrValidation) {
		t.Errorf("Duplicate activities should fail validation, got %v", err)
	}
	if _, err := f.Plan.Assign(ctx, order.ID, &AssignRequest{ActivityIDs: []string{"no-such-activity"}}); err == nil {
		t.Error("Unknown activity should fail")
	}
}
