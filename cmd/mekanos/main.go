package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/mekanos/internal/config"
	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/handler"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/bitfantasy/mekanos/internal/field/service"
	"github.com/bitfantasy/mekanos/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting mekanos service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}
	seedOrderStates(db)

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, rdb, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
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
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// AutoMigrate 的 gorm 标签表达不了部分唯一索引和序列，用原始 SQL 补
	migrationSQL := []string{
		// 目录项幂等键：自由文本项 catalog_activity_id 为空串，不参与唯一约束
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_exec_activity
			ON executed_activities(order_id, order_equipment_id, catalog_activity_id)
			WHERE catalog_activity_id <> ''`,
		// 工单编码序列
		`CREATE SEQUENCE IF NOT EXISTS service_order_code_seq START 1`,
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("migration sql: %w", err)
		}
	}
	return nil
}

func seedOrderStates(db *gorm.DB) {
	stateSeeds := []struct {
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
	for _, s := range stateSeeds {
		db.Exec(`INSERT INTO order_states (id, code, name, is_final, created_at)
			VALUES (md5(random()::text), ?, ?, ?, NOW())
			ON CONFLICT (code) DO NOTHING`, s.Code, s.Name, s.IsFinal)
	}
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证 (无需登录)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// 当前用户
			authorized.GET("/auth/me", h.Auth.Me)

			// 工单
			orders := authorized.Group("/orders")
			{
				orders.GET("", h.Order.List)
				orders.POST("", h.Order.Create)
				orders.GET("/:id", h.Order.Get)
				orders.POST("/:id/transition", h.Order.Transition)
				orders.GET("/:id/history", h.Order.History)
				orders.POST("/:id/documents", h.Order.RegisterDocument)

				// 工单设备
				orders.GET("/:id/equipment", h.Order.ListEquipment)
				orders.POST("/:id/equipment", h.Order.AttachEquipment)
				orders.PATCH("/:id/equipment/:equipmentId/substate", h.Order.UpdateEquipmentSubState)

				// 作业清单
				orders.GET("/:id/checklist", h.Order.Checklist)
				orders.PUT("/:id/plan", middleware.RequireRole("admin"), h.Order.AssignPlan)

				// 现场执行
				orders.POST("/:id/activities", h.Execution.RecordActivity)
				orders.GET("/:id/activities", h.Execution.ListActivities)
				orders.POST("/:id/measurements", h.Execution.RecordMeasurement)
				orders.GET("/:id/measurements", h.Execution.ListMeasurements)
				orders.POST("/:id/evidence", h.Execution.RecordEvidence)
				orders.POST("/:id/evidence/upload", h.Execution.UploadEvidence)
				orders.GET("/:id/evidence", h.Execution.ListEvidence)
				orders.POST("/:id/signatures", h.Execution.RecordSignature)
				orders.GET("/:id/signatures", h.Execution.ListSignatures)
			}

			// 技师端同步
			authorized.GET("/sync/snapshot", h.Sync.Snapshot)

			// 作业目录
			catalog := authorized.Group("/catalog")
			{
				catalog.GET("/service-types", h.Catalog.ListServiceTypes)
				catalog.GET("/systems", h.Catalog.ListSystems)
				catalog.GET("/parameters", h.Catalog.ListParameters)
				catalog.GET("/activities", h.Catalog.ListActivities)
				catalog.POST("/activities", middleware.RequireRole("admin"), h.Catalog.CreateActivity)
				catalog.DELETE("/activities/:id", middleware.RequireRole("admin"), h.Catalog.DeactivateActivity)
				catalog.POST("/activities/import", middleware.RequireRole("admin"), h.Catalog.ImportActivities)
			}
		}
	}
}
