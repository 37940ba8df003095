package handler

import (
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		allocation := api.Group("/allocation")
		{
			allocation.GET("/list", h.ListAllocations)
			allocation.GET("/stats", h.GetAllocationStats)
			allocation.POST("/create", h.CreateAllocation)
			allocation.POST("/update", h.UpdateAllocation)
			allocation.POST("/delete", h.DeleteAllocation)
			allocation.POST("/bulk-upsert", h.BulkUpsertAllocations)
			allocation.POST("/confirm-all", h.ConfirmAllAllocations)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
