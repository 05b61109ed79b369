package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/bitfantasy/mekanos/internal/field/testutil"
	"gorm.io/gorm"
)

type fieldFixture struct {
	DB        *gorm.DB
	Repos     *repository.Repositories
	Order     *OrderService
	Equipment *EquipmentService
	Plan      *PlanService
	Execution *ExecutionService
	Snapshot  *SnapshotService

	Client      *entity.Client
	Technician  *entity.User
	Machine     *entity.Equipment
	ServiceType *entity.ServiceType
	States      map[string]*entity.OrderState
}

func setupFieldTest(t *testing.T) *fieldFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)

	f := &fieldFixture{
		DB:    db,
		Repos: repos,
	}
	f.Order = NewOrderService(db, repos)
	f.Equipment = NewEquipmentService(db, repos.Equipment, repos.Order)
	f.Plan = NewPlanService(repos.Plan, repos.Catalog, repos.Order)
	f.Execution = NewExecutionService(repos)
	f.Snapshot = NewSnapshotService(db, repos, f.Plan, 30)

	f.States = testutil.SeedOrderStates(t, db)
	f.Client = testutil.SeedTestClient(t, db, "client-001", "Acme Industrial")
	f.Technician = testutil.SeedTestUser(t, db, "tech-001", "Field Tech", "technician")
	f.Machine = testutil.SeedTestEquipment(t, db, "equip-001", "client-001", "Chiller Unit A")
	f.ServiceType = testutil.SeedTestServiceType(t, db, "stype-001", "PREV", "预防性维保")
	return f
}

// createTestOrder 建一张指派给默认技师的工单
func (f *fieldFixture) createTestOrder(t *testing.T) *entity.ServiceOrder {
	t.Helper()
	order, err := f.Order.Create(context.Background(), "admin-001", &CreateOrderRequest{
		ClientID:      f.Client.ID,
		EquipmentID:   f.Machine.ID,
		ServiceTypeID: f.ServiceType.ID,
		TechnicianID:  f.Technician.ID,
		Priority:      entity.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("Failed to create test order: %v", err)
	}
	return order
}

func (f *fieldFixture) seedUser(t *testing.T, id, name, role string) *entity.User {
	t.Helper()
	return testutil.SeedTestUser(t, f.DB, id, name, role)
}

// closeOrder 直接把工单置为终态并写结束时间（测试捷径，不走状态机）
func (f *fieldFixture) closeOrder(t *testing.T, orderID, stateID string, actualEnd time.Time) {
	t.Helper()
	err := f.DB.Model(&entity.ServiceOrder{}).Where("id = ?", orderID).
		Updates(map[string]interface{}{"state_id": stateID, "actual_end": actualEnd}).Error
	if err != nil {
		t.Fatalf("Failed to close order %s: %v", orderID, err)
	}
}

// seedCatalog 种一个系统 + 两个目录项（一个检查项，一个带参数的测量项）
func (f *fieldFixture) seedCatalog(t *testing.T) (*entity.EquipSystem, []entity.CatalogActivity, *entity.MeasurementParameter) {
	t.Helper()
	ctx := context.Background()

	sys := &entity.EquipSystem{
		ID:           "sys-001",
		Code:         "COOL",
		Name:         "制冷系统",
		DisplayOrder: 1,
		CreatedAt:    time.Now(),
	}
	if err := f.Repos.Catalog.CreateSystem(ctx, sys); err != nil {
		t.Fatalf("Failed to seed system: %v", err)
	}

	min, max := 2.0, 6.0
	cmin, cmax := 1.0, 9.0
	param := &entity.MeasurementParameter{
		ID:          "param-001",
		Code:        "PRESS_SUCTION",
		Name:        "吸气压力",
		Unit:        "bar",
		Numeric:     true,
		NormalMin:   &min,
		NormalMax:   &max,
		CriticalMin: &cmin,
		CriticalMax: &cmax,
		CreatedAt:   time.Now(),
	}
	if err := f.Repos.Catalog.CreateParameter(ctx, param); err != nil {
		t.Fatalf("Failed to seed parameter: %v", err)
	}

	now := time.Now()
	acts := []entity.CatalogActivity{
		{
			ID:             "act-001",
			ServiceTypeID:  f.ServiceType.ID,
			SystemID:       sys.ID,
			Type:           entity.ActivityTypeInspection,
			Description:    "检查压缩机异响",
			ExecutionOrder: 1,
			Mandatory:      true,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             "act-002",
			ServiceTypeID:  f.ServiceType.ID,
			SystemID:       sys.ID,
			Type:           entity.ActivityTypeMeasurement,
			Description:    "测量吸气压力",
			ExecutionOrder: 2,
			Mandatory:      true,
			ParameterID:    &param.ID,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	for i := range acts {
		if err := f.Repos.Catalog.CreateActivity(ctx, &acts[i]); err != nil {
			t.Fatalf("Failed to seed catalog activity: %v", err)
		}
	}
	return sys, acts, param
}
