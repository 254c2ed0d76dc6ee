// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/VideoNarratorMCP/internal/ai"
	"github.com/Corphon/VideoNarratorMCP/internal/config"
	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/services"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
)

// uploadDestination 返回上传视频在数据目录内的落盘路径
// 上传文件统一放在数据目录的temp子目录下，作业树保持自包含
func uploadDestination(fs *storage.FileStorage, ext string) (string, error) {
	if err := fs.EnsureDir("temp"); err != nil {
		return "", err
	}
	return fs.FullPath("temp", time.Now().Format("20060102150405")+ext), nil
}

// Handler 处理API请求
type Handler struct {
	JobService      *services.JobService      // 作业协调器
	ProgressService *services.ProgressService // 进度跟踪服务
	StatsService    *services.StatsService    // 统计服务
	AIClient        *ai.OpenAIClient          // AI客户端，用于状态查询与配置热更新
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(jobService *services.JobService, progressService *services.ProgressService,
	statsService *services.StatsService, aiClient *ai.OpenAIClient) *Handler {
	return &Handler{
		JobService:      jobService,
		ProgressService: progressService,
		StatsService:    statsService,
		AIClient:        aiClient,
		Response:        NewResponseHelper(),
	}
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// CreateVideoJobRequest 提交远程视频作业的请求结构
type CreateVideoJobRequest struct {
	URL             string  `json:"url"`                        // 远程视频地址
	Persona         string  `json:"persona,omitempty"`          // 叙事人设
	Threshold       float64 `json:"threshold,omitempty"`        // 场景检测灵敏度
	KeyframeCount   int     `json:"keyframe_count,omitempty"`   // 每场景关键帧数
	WithNarration   bool    `json:"with_narration,omitempty"`   // 流水线内生成旁白
	TranscribeAudio bool    `json:"transcribe_audio,omitempty"` // 场景音频转写
}

// respondAppError 把领域错误映射为HTTP响应
func (h *Handler) respondAppError(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFoundError(err):
		h.Response.NotFound(c, "作业", err.Error())
	case apperrors.IsValidationError(err):
		h.Response.BadRequest(c, err.Error())
	default:
		h.Response.InternalError(c, err.Error())
	}
}

// CreateVideoJob 提交视频处理作业
// 支持multipart文件上传与JSON提交远程URL两种方式
func (h *Handler) CreateVideoJob(c *gin.Context) {
	var source string
	var opts models.JobOptions

	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, err := c.FormFile("video")
		if err != nil {
			h.Response.BadRequest(c, "获取上传文件失败", err.Error())
			return
		}

		ext := strings.ToLower(filepath.Ext(file.Filename))
		if ext != ".mp4" && ext != ".mov" && ext != ".mkv" && ext != ".webm" && ext != ".avi" {
			h.Response.BadRequest(c, "不支持的视频格式: "+ext)
			return
		}

		uploadPath, err := uploadDestination(h.JobService.Storage, ext)
		if err != nil {
			h.Response.InternalError(c, "准备上传目录失败", err.Error())
			return
		}
		if err := c.SaveUploadedFile(file, uploadPath); err != nil {
			h.Response.InternalError(c, "保存上传文件失败", err.Error())
			return
		}
		source = uploadPath

		opts.Persona = c.PostForm("persona")
		if v, err := strconv.ParseFloat(c.PostForm("threshold"), 64); err == nil {
			opts.Threshold = v
		}
		if v, err := strconv.Atoi(c.PostForm("keyframe_count")); err == nil {
			opts.KeyframeCount = v
		}
		opts.WithNarration = c.PostForm("with_narration") == "true"
		opts.TranscribeAudio = c.PostForm("transcribe_audio") == "true"
	} else {
		var req CreateVideoJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "请求格式错误", err.Error())
			return
		}
		if req.URL == "" {
			h.Response.BadRequest(c, "url不能为空")
			return
		}
		source = req.URL
		opts = models.JobOptions{
			Persona:         req.Persona,
			Threshold:       req.Threshold,
			KeyframeCount:   req.KeyframeCount,
			WithNarration:   req.WithNarration,
			TranscribeAudio: req.TranscribeAudio,
		}
	}

	job, err := h.JobService.CreateJob(source)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	// 流水线在后台执行，调用方通过进度端点跟踪
	go h.JobService.RunPipeline(context.Background(), job, opts)

	h.Response.Created(c, gin.H{
		"job_id":       job.ID,
		"progress_url": "/api/progress/" + job.ID,
		"result_url":   "/api/jobs/" + job.ID,
	}, "作业已提交，请订阅进度更新")
}

// GetJobResult 获取作业的结果清单
func (h *Handler) GetJobResult(c *gin.Context) {
	jobID := c.Param("id")

	result, err := h.JobService.GetJobResult(jobID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	h.Response.Success(c, result)
}

// GetJobStory 获取片段拼接版故事文本
func (h *Handler) GetJobStory(c *gin.Context) {
	jobID := c.Param("id")

	story, err := h.JobService.GetJobStory(jobID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"job_id": jobID,
		"story":  story,
	})
}

// GetCombinedStory 获取整体合成版故事文本
func (h *Handler) GetCombinedStory(c *gin.Context) {
	jobID := c.Param("id")

	story, err := h.JobService.GetCombinedStory(jobID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"job_id": jobID,
		"story":  story,
	})
}

// GetNarration 获取旁白音频，不存在时即时合成
func (h *Handler) GetNarration(c *gin.Context) {
	jobID := c.Param("id")
	combined := c.DefaultQuery("combined", "false") == "true"

	path, err := h.JobService.GetNarration(c.Request.Context(), jobID, combined)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}

// SubscribeProgress 订阅作业进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	jobID := c.Param("jobID")

	tracker, exists := h.ProgressService.GetTracker(jobID)
	if !exists {
		h.Response.NotFound(c, "进度")
		return
	}

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")

	subscriber := tracker.Subscribe()
	defer tracker.Unsubscribe(subscriber)

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// 发送初始事件保持连接打开
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"message\":\"连接已建立\"}\n\n")
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-subscriber:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", string(data))
			c.Writer.Flush()

			// 终态事件之后结束连接
			if event.Stage == services.StageComplete || event.Stage == services.StageError {
				return
			}
		case <-ticker.C:
			// 发送心跳以保持连接
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// GetAIStatus 查询AI能力状态
func (h *Handler) GetAIStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	h.Response.Success(c, gin.H{
		"configured":   h.AIClient.IsConfigured(),
		"vision_model": cfg.AIConfig["vision_model"],
		"asr_model":    cfg.AIConfig["asr_model"],
		"tts_model":    cfg.AIConfig["tts_model"],
	})
}

// UpdateAIConfig 热更新AI配置
func (h *Handler) UpdateAIConfig(c *gin.Context) {
	var aiConfig map[string]string
	if err := c.ShouldBindJSON(&aiConfig); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := config.UpdateAIConfig(aiConfig); err != nil {
		h.Response.InternalError(c, "保存配置失败", err.Error())
		return
	}
	h.AIClient.UpdateConfig(aiConfig)

	h.Response.Success(c, gin.H{
		"configured": h.AIClient.IsConfigured(),
	}, "AI配置已更新")
}

// GetStats 获取运行统计
func (h *Handler) GetStats(c *gin.Context) {
	h.Response.Success(c, h.StatsService.GetStats())
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"ai_ready":  h.AIClient.IsConfigured(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
