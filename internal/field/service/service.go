package service

import (
	"github.com/bitfantasy/mekanos/internal/config"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Auth      *AuthService
	Order     *OrderService
	Equipment *EquipmentService
	Plan      *PlanService
	Execution *ExecutionService
	Snapshot  *SnapshotService
	Catalog   *CatalogService
	Media     *MediaService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config) *Services {
	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			minioClient = nil
		}
	}

	planSvc := NewPlanService(repos.Plan, repos.Catalog, repos.Order)

	return &Services{
		Auth:      NewAuthService(repos.User, rdb, cfg),
		Order:     NewOrderService(db, repos),
		Equipment: NewEquipmentService(db, repos.Equipment, repos.Order),
		Plan:      planSvc,
		Execution: NewExecutionService(repos),
		Snapshot:  NewSnapshotService(db, repos, planSvc, cfg.Sync.RetentionDays),
		Catalog:   NewCatalogService(repos, rdb),
		Media:     NewMediaService(minioClient, cfg.MinIO.Bucket),
	}
}
