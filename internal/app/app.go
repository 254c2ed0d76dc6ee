// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/VideoNarratorMCP/internal/ai"
	"github.com/Corphon/VideoNarratorMCP/internal/config"
	"github.com/Corphon/VideoNarratorMCP/internal/di"
	"github.com/Corphon/VideoNarratorMCP/internal/media"
	"github.com/Corphon/VideoNarratorMCP/internal/services"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// Server 抽象HTTP服务器，便于测试时替换
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   Server
	stopChan chan os.Signal
}

var (
	instance *App
	once     sync.Once
)

// GetApp 获取应用单例
func GetApp() *App {
	once.Do(func() {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	})
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 当前是否为调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}

// initLogger 初始化日志系统
func initLogger(logDir string) error {
	return utils.InitLogger(logDir)
}

// InitServices 按依赖顺序初始化并注册所有服务
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()
	logger := utils.GetLogger()

	// 文件存储，所有持久化的根
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// AI客户端，未配置密钥时各能力返回ErrNotConfigured
	aiClient := ai.NewOpenAIClient(cfg.AIConfig)
	container.Register("ai", aiClient)

	// 外部工具
	sampler := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	detector := media.NewSceneDetectCLI(cfg.SceneDetectPath)
	fetcher := media.NewYtdlpClient(cfg.YtdlpPath)
	if err := fetcher.CheckDependency(); err != nil {
		logger.Warn("yt-dlp不可用，远程视频获取功能关闭", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// 基础服务
	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	statsService := services.NewStatsService(fileStorage)
	container.Register("stats", statsService)

	// 流水线阶段服务
	segmentService := services.NewSegmentService(detector, sampler, fileStorage)
	container.Register("segment", segmentService)

	extractService := services.NewExtractService(sampler, fileStorage)
	container.Register("extract", extractService)

	narrativeService := services.NewNarrativeService(aiClient, aiClient)
	container.Register("narrative", narrativeService)

	narrationService := services.NewNarrationService(aiClient, fileStorage, cfg.NarrationChunkMax)
	container.Register("narration", narrationService)

	// 队列发布：Redis可用时作为主目标，本地日志始终作为回退
	var primary services.QueueSink
	if cfg.RedisAddr != "" {
		redisSink, err := services.NewRedisQueueSink(cfg.RedisAddr, cfg.SceneQueue)
		if err != nil {
			logger.Warn("Redis队列不可用，使用本地日志回退", map[string]interface{}{
				"addr":  cfg.RedisAddr,
				"error": err.Error(),
			})
		} else {
			primary = redisSink
		}
	}
	fallback := services.NewLocalLogSink(fileStorage, "queue")
	queueService := services.NewQueueService(primary, fallback)
	container.Register("queue", queueService)

	// 作业协调器，依赖全部阶段服务
	jobService := services.NewJobService(fileStorage, segmentService, extractService,
		narrativeService, narrationService, queueService, progressService, statsService, fetcher)
	container.Register("job", jobService)

	return nil
}

// Initialize 完成配置、日志、服务与路由的初始化
func Initialize(dataDir string, router http.Handler) error {
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	cfg := config.GetCurrentConfig()
	app := GetApp()
	app.config = cfg

	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	app.router = router
	return nil
}

// Run 启动HTTP服务并阻塞到收到退出信号
func Run() error {
	app := GetApp()

	if app.server == nil {
		app.server = &http.Server{
			Addr:    ":" + app.config.Port,
			Handler: app.router,
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("服务器启动失败: %w", err)
	case <-app.stopChan:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	app.cleanup()
	return nil
}

// cleanup 释放持有外部连接的服务
func (a *App) cleanup() {
	container := di.GetContainer()

	if queueService, ok := container.Get("queue").(*services.QueueService); ok && queueService != nil {
		if redisSink, ok := queueService.Primary.(*services.RedisQueueSink); ok && redisSink != nil {
			redisSink.Close()
		}
	}

	if progressService, ok := container.Get("progress").(*services.ProgressService); ok && progressService != nil {
		progressService.CleanupCompletedTrackers(0)
	}
}
