package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_field"
	JWTSecret  = "mekanos-jwt-secret-key-2026"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "mekanos")
	password := getEnv("DB_PASSWORD", "mekanos123")
	dbname := getEnv("DB_NAME", "mekanos")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled connections use test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate test tables
	err = db.AutoMigrate(
		&entity.User{},
		&entity.Client{},
		&entity.Equipment{},
		&entity.ServiceType{},
		&entity.EquipSystem{},
		&entity.MeasurementParameter{},
		&entity.CatalogActivity{},
		&entity.OrderState{},
		&entity.ServiceOrder{},
		&entity.OrderStateHistory{},
		&entity.OrderEquipment{},
		&entity.OrderActivityPlan{},
		&entity.ExecutedActivity{},
		&entity.Measurement{},
		&entity.Evidence{},
		&entity.DigitalSignature{},
		&entity.GeneratedDocument{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	// gorm 标签表达不了的部分唯一索引和序列
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_exec_activity
		ON executed_activities(order_id, order_equipment_id, catalog_activity_id)
		WHERE catalog_activity_id <> ''`)
	db.Exec(`CREATE SEQUENCE IF NOT EXISTS service_order_code_seq START 1`)

	// Cleanup on test completion
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		// Reconnect to drop the schema
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SeedOrderStates inserts the five workflow states
func SeedOrderStates(t *testing.T, db *gorm.DB) map[string]*entity.OrderState {
	t.Helper()
	seeds := []struct {
		Code    string
		Name    string
		IsFinal bool
	}{
		{entity.OrderStateCreated, "已创建", false},
		{entity.OrderStateAssigned, "已指派", false},
		{entity.OrderStateInProgress, "执行中", false},
		{entity.OrderStateCompleted, "已完成", true},
		{entity.OrderStateCancelled, "已取消", true},
	}
	states := make(map[string]*entity.OrderState, len(seeds))
	for i, s := range seeds {
		st := &entity.OrderState{
			ID:        fmt.Sprintf("state-%02d", i+1),
			Code:      s.Code,
			Name:      s.Name,
			IsFinal:   s.IsFinal,
			CreatedAt: time.Now(),
		}
		if err := db.Create(st).Error; err != nil {
			t.Fatalf("Failed to seed order state %s: %v", s.Code, err)
		}
		states[s.Code] = st
	}
	return states
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, role string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"uid":  userID,
		"name": name,
		"role": role,
		"iss":  "mekanos",
		"iat":  now.Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
		"jti":  fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// AdminToken returns a token for a default admin test user
func AdminToken() string {
	return GenerateTestToken("test-admin-001", "Test Admin", "admin")
}

// TechnicianToken returns a token for a technician test user
func TechnicianToken(userID string) string {
	return GenerateTestToken(userID, "Test Technician", "technician")
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedTestUser creates a test user in the database
func SeedTestUser(t *testing.T, db *gorm.DB, id, name, role string) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:           id,
		Username:     "user_" + id,
		Name:         name,
		PasswordHash: "$2a$10$test.hash.not.a.real.one.padding",
		Role:         role,
		Status:       "active",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed test user: %v", err)
	}
	return user
}

// SeedTestClient creates a test client in the database
func SeedTestClient(t *testing.T, db *gorm.DB, id, name string) *entity.Client {
	t.Helper()
	client := &entity.Client{
		ID:        id,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("Failed to seed test client: %v", err)
	}
	return client
}

// SeedTestEquipment creates a test equipment in the database
func SeedTestEquipment(t *testing.T, db *gorm.DB, id, clientID, name string) *entity.Equipment {
	t.Helper()
	eq := &entity.Equipment{
		ID:        id,
		Code:      "EQ-" + id,
		Name:      name,
		ClientID:  clientID,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(eq).Error; err != nil {
		t.Fatalf("Failed to seed test equipment: %v", err)
	}
	return eq
}

// SeedTestServiceType creates a test service type in the database
func SeedTestServiceType(t *testing.T, db *gorm.DB, id, code, name string) *entity.ServiceType {
	t.Helper()
	st := &entity.ServiceType{
		ID:        id,
		Code:      code,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("Failed to seed test service type: %v", err)
	}
	return st
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
