// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/VideoNarratorMCP/internal/ai"
	"github.com/Corphon/VideoNarratorMCP/internal/config"
	"github.com/Corphon/VideoNarratorMCP/internal/di"
	"github.com/Corphon/VideoNarratorMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不再创建新实例
	container := di.GetContainer()

	jobService, ok := container.Get("job").(*services.JobService)
	if !ok {
		return nil, fmt.Errorf("作业服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	aiClient, ok := container.Get("ai").(*ai.OpenAIClient)
	if !ok {
		return nil, fmt.Errorf("AI客户端未正确初始化")
	}

	handler := NewHandler(jobService, progressService, statsService, aiClient)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// WebSocket 进度推送
	r.GET("/ws/progress/:jobID", handler.ProgressWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// 作业提交与查询
		api.POST("/videos", handler.CreateVideoJob)

		jobsGroup := api.Group("/jobs")
		{
			jobsGroup.GET("/:id", handler.GetJobResult)
			jobsGroup.GET("/:id/story", handler.GetJobStory)
			jobsGroup.GET("/:id/story/combined", handler.GetCombinedStory)
			jobsGroup.GET("/:id/narration", handler.GetNarration)
		}

		// 进度订阅
		api.GET("/progress/:jobID", handler.SubscribeProgress)

		// AI配置相关路由
		aiGroup := api.Group("/ai")
		{
			aiGroup.GET("/status", handler.GetAIStatus)
			aiGroup.PUT("/config", handler.UpdateAIConfig)
		}

		// 统计与健康检查
		api.GET("/stats", handler.GetStats)
		api.GET("/health", handler.HealthCheck)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
