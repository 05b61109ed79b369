package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/mekanos/internal/field/entity"
)

func TestRecordActivityCatalogIdempotent(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, _ := f.seedCatalog(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	first, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		CatalogActivityID: acts[0].ID,
		State:             entity.ExecStateDone,
		DurationMinutes:   10,
	})
	if err != nil {
		t.Fatalf("First record failed: %v", err)
	}

	// 离线重传同一目录项：不产生第二行，结果覆盖为最新
	second, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		CatalogActivityID: acts[0].ID,
		State:             entity.ExecStateFailed,
		DurationMinutes:   25,
		Notes:             "压缩机异响明显",
	})
	if err != nil {
		t.Fatalf("Retry record failed: %v", err)
	}

	count, err := f.Repos.Execution.CountActivitiesByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 executed activity after retry, got %d", count)
	}
	if second.ID != first.ID {
		t.Errorf("Retry should land on the same row, got %s vs %s", second.ID, first.ID)
	}
	if second.State != entity.ExecStateFailed {
		t.Errorf("Expected state FAILED after retry, got %s", second.State)
	}
	if second.DurationMinutes != 25 {
		t.Errorf("Expected duration 25, got %d", second.DurationMinutes)
	}
}

func TestRecordActivityExactlyOneSource(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, _ := f.seedCatalog(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	_, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		CatalogActivityID: acts[0].ID,
		Description:       "顺手紧了下皮带",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Both catalog and description should fail validation, got %v", err)
	}

	_, err = f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Neither catalog nor description should fail validation, got %v", err)
	}
}

func TestRecordManualActivityTokenReplay(t *testing.T) {
	f := setupFieldTest(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	token := "client-tok-0001"
	first, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		Description: "更换干燥过滤器",
		ClientToken: &token,
	})
	if err != nil {
		t.Fatalf("First manual record failed: %v", err)
	}

	// 同一令牌重放：吞掉重复，回执仍是首次落库的那一行
	replay, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		Description: "更换干燥过滤器",
		ClientToken: &token,
	})
	if err != nil {
		t.Fatalf("Replay should succeed, got %v", err)
	}
	if replay.ID != first.ID {
		t.Errorf("Replay should return the stored row, got ID %s, want %s", replay.ID, first.ID)
	}

	// 无令牌的自由文本每次都追加
	if _, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		Description: "更换干燥过滤器",
	}); err != nil {
		t.Fatalf("Tokenless manual record failed: %v", err)
	}

	count, err := f.Repos.Execution.CountActivitiesByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 rows (token replay collapsed), got %d", count)
	}
	if first.Description != "更换干燥过滤器" {
		t.Errorf("Unexpected description: %s", first.Description)
	}
}

func TestRecordMeasurementEvaluatesAndUpserts(t *testing.T) {
	f := setupFieldTest(t)
	_, _, param := f.seedCatalog(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	// 吸气压力正常区间 2–6，危急区间 1–9
	warn := 6.5
	m, err := f.Execution.RecordMeasurement(ctx, order.ID, f.Technician.ID, &RecordMeasurementRequest{
		ParameterID:  param.ID,
		ValueNumeric: &warn,
	})
	if err != nil {
		t.Fatalf("Record measurement failed: %v", err)
	}
	if m.Evaluation != entity.ReadingWarning {
		t.Errorf("6.5 bar should evaluate warning, got %s", m.Evaluation)
	}

	// 重传修正值：同键覆盖，不新增行，评估跟着新值走
	ok := 3.2
	m2, err := f.Execution.RecordMeasurement(ctx, order.ID, f.Technician.ID, &RecordMeasurementRequest{
		ParameterID:  param.ID,
		ValueNumeric: &ok,
	})
	if err != nil {
		t.Fatalf("Retry measurement failed: %v", err)
	}
	if m2.Evaluation != entity.ReadingNormal {
		t.Errorf("3.2 bar should evaluate normal, got %s", m2.Evaluation)
	}

	all, err := f.Execution.ListMeasurements(ctx, order.ID)
	if err != nil {
		t.Fatalf("List measurements failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 measurement row, got %d", len(all))
	}
	if all[0].ValueNumeric == nil || *all[0].ValueNumeric != 3.2 {
		t.Errorf("Stored value should be the latest (3.2), got %v", all[0].ValueNumeric)
	}

	// 数值参数必须给数值
	_, err = f.Execution.RecordMeasurement(ctx, order.ID, f.Technician.ID, &RecordMeasurementRequest{
		ParameterID: param.ID,
		ValueText:   "偏高",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Text value for numeric parameter should fail, got %v", err)
	}
}

func TestRecordSignatureLatestWins(t *testing.T) {
	f := setupFieldTest(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	sig1, err := f.Execution.RecordSignature(ctx, order.ID, &RecordSignatureRequest{
		PersonID:   f.Technician.ID,
		PersonName: f.Technician.Name,
		Role:       entity.SignatureRoleTechnician,
		Payload:    "c2lnLXYx",
	})
	if err != nil {
		t.Fatalf("First signature failed: %v", err)
	}
	sig2, err := f.Execution.RecordSignature(ctx, order.ID, &RecordSignatureRequest{
		PersonID:   f.Technician.ID,
		PersonName: f.Technician.Name,
		Role:       entity.SignatureRoleTechnician,
		Payload:    "c2lnLXYy",
	})
	if err != nil {
		t.Fatalf("Second signature failed: %v", err)
	}

	// 历史全保留，工单引用指向最新一条
	sigs, err := f.Execution.ListSignatures(ctx, order.ID)
	if err != nil {
		t.Fatalf("List signatures failed: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("Expected 2 signatures kept, got %d", len(sigs))
	}
	if sig1.ContentHash == sig2.ContentHash {
		t.Error("Different payloads should hash differently")
	}

	reloaded, err := f.Repos.Order.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("Reload order failed: %v", err)
	}
	if reloaded.TechSignatureID == nil || *reloaded.TechSignatureID != sig2.ID {
		t.Errorf("Order should reference latest technician signature %s, got %v", sig2.ID, reloaded.TechSignatureID)
	}

	_, err = f.Execution.RecordSignature(ctx, order.ID, &RecordSignatureRequest{
		PersonID: "p1",
		Role:     "witness",
		Payload:  "eA==",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Unknown signature role should fail, got %v", err)
	}
}

func TestRecordEvidenceAppends(t *testing.T) {
	f := setupFieldTest(t)
	_, acts, _ := f.seedCatalog(t)
	order := f.createTestOrder(t)
	ctx := context.Background()

	if _, err := f.Execution.RecordActivity(ctx, order.ID, f.Technician.ID, &RecordActivityRequest{
		CatalogActivityID: acts[0].ID,
	}); err != nil {
		t.Fatalf("Record activity failed: %v", err)
	}

	// 同阶段两张照片都保留
	for i := 0; i < 2; i++ {
		if _, err := f.Execution.RecordEvidence(ctx, order.ID, f.Technician.ID, &RecordEvidenceRequest{
			CatalogActivityID: acts[0].ID,
			Phase:             entity.EvidencePhaseAfter,
			ObjectKey:         "evidence/test/photo.jpg",
		}); err != nil {
			t.Fatalf("Record evidence %d failed: %v", i, err)
		}
	}

	evs, err := f.Execution.ListEvidence(ctx, order.ID)
	if err != nil {
		t.Fatalf("List evidence failed: %v", err)
	}
	if len(evs) != 2 {
		t.Errorf("Expected 2 evidence rows, got %d", len(evs))
	}

	// 挂到目录项的证据会把该项的 evidence_captured 打上
	ea, err := f.Repos.Execution.FindActivityByKey(ctx, order.ID, "", acts[0].ID)
	if err != nil {
		t.Fatalf("Find activity failed: %v", err)
	}
	if !ea.EvidenceCaptured {
		t.Error("Evidence on a catalog activity should flip evidence_captured")
	}

	_, err = f.Execution.RecordEvidence(ctx, order.ID, f.Technician.ID, &RecordEvidenceRequest{
		Phase:     "midway",
		ObjectKey: "evidence/test/photo.jpg",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Unknown phase should fail, got %v", err)
	}
}
