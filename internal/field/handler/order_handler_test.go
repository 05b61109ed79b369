package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/bitfantasy/mekanos/internal/field/service"
	"github.com/bitfantasy/mekanos/internal/field/testutil"
	"github.com/gin-gonic/gin"
)

func setupOrderTest(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.SetupTestDB(t)

	testutil.SeedOrderStates(t, db)
	testutil.SeedTestClient(t, db, "client-001", "Acme Industrial")
	testutil.SeedTestUser(t, db, "tech-001", "Field Tech", "technician")
	testutil.SeedTestEquipment(t, db, "equip-001", "client-001", "Chiller Unit A")
	testutil.SeedTestEquipment(t, db, "equip-002", "client-001", "Chiller Unit B")
	testutil.SeedTestServiceType(t, db, "stype-001", "PREV", "预防性维保")

	repos := repository.NewRepositories(db)
	orderSvc := service.NewOrderService(db, repos)
	equipSvc := service.NewEquipmentService(db, repos.Equipment, repos.Order)
	planSvc := service.NewPlanService(repos.Plan, repos.Catalog, repos.Order)
	execSvc := service.NewExecutionService(repos)

	orderHandler := NewOrderHandler(orderSvc, equipSvc, planSvc)
	execHandler := NewExecutionHandler(execSvc, nil)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	orders := api.Group("/orders")
	orders.POST("", orderHandler.Create)
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/transition", orderHandler.Transition)
	orders.GET("/:id/history", orderHandler.History)
	orders.GET("/:id/equipment", orderHandler.ListEquipment)
	orders.POST("/:id/equipment", orderHandler.AttachEquipment)
	orders.PATCH("/:id/equipment/:equipmentId/substate", orderHandler.UpdateEquipmentSubState)
	orders.POST("/:id/signatures", execHandler.RecordSignature)

	return router
}

func createOrder(t *testing.T, router *gin.Engine, token string) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/orders", map[string]interface{}{
		"client_id":       "client-001",
		"equipment_id":    "equip-001",
		"service_type_id": "stype-001",
		"technician_id":   "tech-001",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

func transition(t *testing.T, router *gin.Engine, token, orderID, target, reason string) *testResult {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/orders/"+orderID+"/transition",
		map[string]string{"target": target, "reason": reason}, token)
	return &testResult{code: w.Code, body: w.Body.String(), resp: testutil.ParseResponse(w)}
}

type testResult struct {
	code int
	body string
	resp map[string]interface{}
}

func TestOrderCreate(t *testing.T) {
	router := setupOrderTest(t)
	token := testutil.AdminToken()

	order := createOrder(t, router, token)

	if order["id"] == nil || order["id"] == "" {
		t.Error("Expected non-empty id")
	}
	code, ok := order["code"].(string)
	if !ok || len(code) == 0 {
		t.Errorf("Expected generated order code, got %v", order["code"])
	}
	state := order["state"].(map[string]interface{})
	if state["code"] != entity.OrderStateCreated {
		t.Errorf("Expected initial state CREATED, got %v", state["code"])
	}
	// 主设备自动挂载为第一台
	equips := order["equipments"].([]interface{})
	if len(equips) != 1 {
		t.Fatalf("Expected primary equipment attached, got %d rows", len(equips))
	}
	oe := equips[0].(map[string]interface{})
	if oe["sub_state"] != entity.EquipSubStatePending {
		t.Errorf("Expected sub_state PENDING, got %v", oe["sub_state"])
	}
}

func TestOrderIllegalTransition(t *testing.T) {
	router := setupOrderTest(t)
	token := testutil.AdminToken()
	order := createOrder(t, router, token)
	orderID := order["id"].(string)

	// CREATED 不能直接完成
	r := transition(t, router, token, orderID, entity.OrderStateCompleted, "")
	if r.code != http.StatusConflict {
		t.Errorf("Expected 409 for CREATED -> COMPLETED, got %d: %s", r.code, r.body)
	}
}

func TestOrderLifecycle(t *testing.T) {
	router := setupOrderTest(t)
	token := testutil.AdminToken()
	order := createOrder(t, router, token)
	orderID := order["id"].(string)

	if r := transition(t, router, token, orderID, entity.OrderStateAssigned, ""); r.code != http.StatusOK {
		t.Fatalf("Assign failed: %d %s", r.code, r.body)
	}
	if r := transition(t, router, token, orderID, entity.OrderStateInProgress, ""); r.code != http.StatusOK {
		t.Fatalf("Start failed: %d %s", r.code, r.body)
	}

	// 没有签名、设备未收尾：完成被挡下
	if r := transition(t, router, token, orderID, entity.OrderStateCompleted, ""); r.code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 before preconditions met, got %d: %s", r.code, r.body)
	}

	// 双方签字
	for _, sig := range []map[string]string{
		{"person_id": "tech-001", "person_name": "Field Tech", "role": entity.SignatureRoleTechnician, "payload": "c2lnLXRlY2g="},
		{"person_id": "client-rep-01", "person_name": "王经理", "role": entity.SignatureRoleClient, "payload": "c2lnLWNsaWVudA=="},
	} {
		w := testutil.DoRequest(router, "POST", "/api/v1/orders/"+orderID+"/signatures", sig, token)
		if w.Code != http.StatusCreated {
			t.Fatalf("Signature failed: %d %s", w.Code, w.Body.String())
		}
	}

	// 设备仍未收尾：还是 422
	if r := transition(t, router, token, orderID, entity.OrderStateCompleted, ""); r.code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 with pending equipment, got %d: %s", r.code, r.body)
	}

	// 设备收尾 PENDING -> IN_PROGRESS -> DONE
	w := testutil.DoRequest(router, "GET", "/api/v1/orders/"+orderID+"/equipment", nil, token)
	oeID := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})[0].(map[string]interface{})["id"].(string)
	for _, sub := range []string{entity.EquipSubStateInProgress, entity.EquipSubStateDone} {
		path := fmt.Sprintf("/api/v1/orders/%s/equipment/%s/substate", orderID, oeID)
		w := testutil.DoRequest(router, "PATCH", path, map[string]string{"sub_state": sub}, token)
		if w.Code != http.StatusOK {
			t.Fatalf("Substate %s failed: %d %s", sub, w.Code, w.Body.String())
		}
	}

	if r := transition(t, router, token, orderID, entity.OrderStateCompleted, ""); r.code != http.StatusOK {
		t.Fatalf("Complete failed: %d %s", r.code, r.body)
	}

	// 终态回退必须给原因
	if r := transition(t, router, token, orderID, entity.OrderStateInProgress, ""); r.code != http.StatusBadRequest {
		t.Fatalf("Expected 400 reverting without reason, got %d: %s", r.code, r.body)
	}
	if r := transition(t, router, token, orderID, entity.OrderStateInProgress, "客户反馈漏油未处理"); r.code != http.StatusOK {
		t.Fatalf("Revert with reason failed: %d %s", r.code, r.body)
	}

	// 历史只追加：创建 + 4 次流转
	w = testutil.DoRequest(router, "GET", "/api/v1/orders/"+orderID+"/history", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("History failed: %d %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 5 {
		t.Errorf("Expected 5 history entries, got %d", len(items))
	}
}

func TestOrderAttachEquipment(t *testing.T) {
	router := setupOrderTest(t)
	token := testutil.AdminToken()
	order := createOrder(t, router, token)
	orderID := order["id"].(string)

	w := testutil.DoRequest(router, "POST", "/api/v1/orders/"+orderID+"/equipment",
		map[string]string{"equipment_id": "equip-002"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Attach failed: %d %s", w.Code, w.Body.String())
	}
	oe := testutil.ParseResponse(w)["data"].(map[string]interface{})
	// 序号连续：主设备是 1，新挂的是 2
	if oe["sequence"].(float64) != 2 {
		t.Errorf("Expected sequence 2, got %v", oe["sequence"])
	}

	// 同一设备不能重复挂载
	w = testutil.DoRequest(router, "POST", "/api/v1/orders/"+orderID+"/equipment",
		map[string]string{"equipment_id": "equip-002"}, token)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate equipment, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOrderRequiresAuth(t *testing.T) {
	router := setupOrderTest(t)

	w := testutil.DoRequest(router, "GET", "/api/v1/orders/any-id", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}
