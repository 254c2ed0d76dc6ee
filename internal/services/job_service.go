// internal/services/job_service.go
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/media"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// JobService 作业协调器
// 负责作业生命周期管理与流水线各阶段的串联
type JobService struct {
	Storage   *storage.FileStorage
	Segment   *SegmentService
	Extract   *ExtractService
	Narrative *NarrativeService
	Narration *NarrationService
	Queue     *QueueService
	Progress  *ProgressService
	Stats     *StatsService
	Fetcher   media.VideoFetcher

	jobs   map[string]*models.Job
	mutex  sync.RWMutex
	logger *utils.Logger
}

// NewJobService 创建作业协调器
func NewJobService(fileStorage *storage.FileStorage, segment *SegmentService,
	extract *ExtractService, narrative *NarrativeService, narration *NarrationService,
	queue *QueueService, progress *ProgressService, stats *StatsService,
	fetcher media.VideoFetcher) *JobService {
	return &JobService{
		Storage:   fileStorage,
		Segment:   segment,
		Extract:   extract,
		Narrative: narrative,
		Narration: narration,
		Queue:     queue,
		Progress:  progress,
		Stats:     stats,
		Fetcher:   fetcher,
		jobs:      make(map[string]*models.Job),
		logger:    utils.GetLogger(),
	}
}

// CreateJob 创建新作业并初始化其独占目录
func (s *JobService) CreateJob(source string) (*models.Job, error) {
	if strings.TrimSpace(source) == "" {
		return nil, apperrors.NewValidationError("视频来源不能为空", nil)
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Source:    source,
		CreatedAt: time.Now(),
	}
	// 目录名与作业ID保持一致
	job.OutputDir = filepath.Join("jobs", job.ID)

	if err := s.Storage.EnsureDir(job.OutputDir); err != nil {
		return nil, fmt.Errorf("创建作业目录失败: %w", err)
	}
	if err := s.Storage.SaveJSONFile(job.OutputDir, "job.json", job); err != nil {
		return nil, fmt.Errorf("保存作业记录失败: %w", err)
	}

	s.mutex.Lock()
	s.jobs[job.ID] = job
	s.mutex.Unlock()

	s.Progress.CreateTracker(job.ID)
	s.Stats.RecordJobStarted()

	s.logger.Info("作业已创建", map[string]interface{}{
		"job_id": job.ID,
		"source": source,
	})

	return job, nil
}

// GetJob 获取作业记录，优先内存，其次磁盘
func (s *JobService) GetJob(jobID string) (*models.Job, error) {
	s.mutex.RLock()
	job, exists := s.jobs[jobID]
	s.mutex.RUnlock()
	if exists {
		return job, nil
	}

	jobDir := filepath.Join("jobs", jobID)
	var saved models.Job
	if err := s.Storage.LoadJSONFile(jobDir, "job.json", &saved); err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("作业不存在: %s", jobID), err)
	}

	s.mutex.Lock()
	s.jobs[jobID] = &saved
	s.mutex.Unlock()

	return &saved, nil
}

// resolveSource 把作业来源解析为本地视频文件
// 远程URL通过yt-dlp下载，本地路径只做存在性校验
func (s *JobService) resolveSource(ctx context.Context, job *models.Job, tracker *ProgressTracker) (string, error) {
	if strings.HasPrefix(job.Source, "http://") || strings.HasPrefix(job.Source, "https://") {
		if s.Fetcher == nil {
			return "", apperrors.NewAcquisitionError("远程视频获取不可用", nil)
		}

		tracker.Publish(StageAcquisition, StatusStarted, "开始下载远程视频", nil)

		localPath, err := s.Fetcher.Fetch(ctx, job.Source, s.Storage.FullPath(job.OutputDir))
		if err != nil {
			return "", apperrors.NewAcquisitionError("远程视频下载失败", err)
		}

		tracker.Publish(StageAcquisition, StatusCompleted, "远程视频下载完成", map[string]string{
			"path": localPath,
		})
		return localPath, nil
	}

	if _, err := os.Stat(job.Source); err != nil {
		return "", apperrors.NewValidationError(fmt.Sprintf("视频文件不可访问: %s", job.Source), err)
	}
	return job.Source, nil
}

// RunPipeline 执行完整流水线
// 只有场景切分失败和来源解析失败是致命的，其余阶段失败降级处理
func (s *JobService) RunPipeline(ctx context.Context, job *models.Job, opts models.JobOptions) {
	tracker := s.Progress.CreateTracker(job.ID)
	cfg := s.pipelineDefaults(opts)

	fail := func(stage string, err error) {
		s.logger.Error("流水线失败", map[string]interface{}{
			"job_id": job.ID,
			"stage":  stage,
			"error":  err.Error(),
		})
		s.Stats.RecordJobFailed()
		tracker.Fail(err.Error())
	}

	// 输入校验与来源解析
	tracker.Publish(StageValidation, StatusStarted, "校验视频来源", nil)
	videoPath, err := s.resolveSource(ctx, job, tracker)
	if err != nil {
		fail(StageValidation, err)
		return
	}
	job.VideoPath = videoPath
	tracker.Publish(StageValidation, StatusCompleted, "视频来源可用", nil)

	// 初始化：持久化解析后的作业记录
	tracker.Publish(StageInit, StatusStarted, "初始化作业目录", nil)
	if err := s.Storage.SaveJSONFile(job.OutputDir, "job.json", job); err != nil {
		fail(StageInit, err)
		return
	}
	tracker.Publish(StageInit, StatusCompleted, "作业目录就绪", nil)

	// 场景切分，失败即终止
	tracker.Publish(StageSceneSegmentation, StatusStarted, "检测场景边界", nil)
	scenes, err := s.Segment.SegmentVideo(ctx, videoPath, cfg.threshold, job.OutputDir)
	if err != nil {
		fail(StageSceneSegmentation, err)
		return
	}
	tracker.Publish(StageSceneSegmentation, StatusCompleted,
		fmt.Sprintf("检出%d个场景", len(scenes)), map[string]string{
			"scenes": fmt.Sprintf("%d", len(scenes)),
		})

	// 场景音频截取
	tracker.Publish(StageAudioExtraction, StatusStarted, "截取场景音频", nil)
	segments, err := s.Extract.ExtractAudio(ctx, videoPath, scenes, job.OutputDir)
	if err != nil {
		// 清单写盘失败才会走到这里，音频缺失不影响解读
		s.logger.Warn("音频截取阶段异常", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		segments = nil
	}
	tracker.Publish(StageAudioExtraction, StatusCompleted,
		fmt.Sprintf("产出%d个音频片段", len(segments)), nil)

	// 关键帧采样
	tracker.Publish(StageKeyframeExtraction, StatusStarted, "采样场景关键帧", nil)
	keyframes, err := s.Extract.ExtractKeyframes(ctx, videoPath, scenes, cfg.keyframeCount, job.OutputDir)
	if err != nil {
		s.logger.Warn("关键帧采样阶段异常", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		keyframes = nil
	}
	totalFrames := 0
	for _, sk := range keyframes {
		totalFrames += len(sk.Keyframes)
	}
	tracker.Publish(StageKeyframeExtraction, StatusCompleted,
		fmt.Sprintf("采样%d帧", totalFrames), nil)

	// 人设持久化，供后续查询与重跑使用
	if opts.Persona != "" {
		tracker.Publish(StagePersonaSave, StatusStarted, "保存叙事人设", nil)
		if err := s.Storage.SaveFile(job.OutputDir, "persona.txt", []byte(opts.Persona)); err != nil {
			s.logger.Warn("保存人设失败", map[string]interface{}{
				"job_id": job.ID,
				"error":  err.Error(),
			})
		}
		tracker.Publish(StagePersonaSave, StatusCompleted, "人设已保存", nil)
	}

	// 逐场景叙事合成
	tracker.Publish(StageNarrativeSynthesis, StatusStarted, "开始逐场景叙事合成", nil)
	analyses := s.Narrative.AnalyzeScenes(ctx, scenes, segments, keyframes, AnalyzeOptions{
		Persona:         opts.Persona,
		TranscribeAudio: opts.TranscribeAudio,
		OnScene: func(current, total int) {
			tracker.Publish(StageNarrativeSynthesis, StatusProcessing,
				fmt.Sprintf("解读场景 %d/%d", current, total), nil)
		},
	})

	if err := s.Storage.SaveJSONFile(job.OutputDir, "analysis.json", analyses); err != nil {
		s.logger.Warn("保存解读结果失败", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}

	// 片段拼接版故事
	var fragments []string
	for i := range analyses {
		if analyses[i].HasStoryPart() {
			fragments = append(fragments, analyses[i].StoryPart)
		}
	}
	if len(fragments) > 0 {
		storyText := strings.Join(fragments, "\n\n")
		if err := s.Storage.SaveFile(job.OutputDir, "story.txt", []byte(storyText)); err != nil {
			s.logger.Warn("保存故事文本失败", map[string]interface{}{
				"job_id": job.ID,
				"error":  err.Error(),
			})
		}

		// 整体合成版故事，失败时内部已回退为片段拼接
		combined := s.Narrative.ComposeStory(ctx, analyses, opts.Persona)
		if combined != "" {
			if err := s.Storage.SaveFile(job.OutputDir, "story_combined.txt", []byte(combined)); err != nil {
				s.logger.Warn("保存合成故事失败", map[string]interface{}{
					"job_id": job.ID,
					"error":  err.Error(),
				})
			}
		}
	}
	tracker.Publish(StageNarrativeSynthesis, StatusCompleted,
		fmt.Sprintf("完成%d个场景的解读", countAnalyzed(analyses)), nil)

	// 发布场景任务到下游队列，失败不影响流水线
	sceneJobs := buildSceneJobs(job, segments, keyframes)
	records := s.Queue.PublishSceneJobs(ctx, sceneJobs)
	if err := s.Storage.SaveJSONFile(job.OutputDir, "publish_records.json", records); err != nil {
		s.logger.Warn("保存发布记录失败", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}

	// 可选的旁白生成
	if opts.WithNarration && len(fragments) > 0 {
		if _, err := s.GetNarration(ctx, job.ID, false); err != nil {
			s.logger.Warn("旁白生成失败", map[string]interface{}{
				"job_id": job.ID,
				"error":  err.Error(),
			})
		}
	}

	// 写入只读的结果清单
	result := s.buildJobResult(job, opts, scenes, segments, keyframes, analyses)
	if err := s.Storage.SaveJSONFile(job.OutputDir, "result.json", result); err != nil {
		fail("result", fmt.Errorf("保存结果清单失败: %w", err))
		return
	}

	s.Stats.RecordJobCompleted(len(scenes), countAnalyzed(analyses), totalFrames)
	tracker.Complete(fmt.Sprintf("流水线完成: %d个场景, %d帧", len(scenes), totalFrames))

	s.logger.Info("流水线完成", map[string]interface{}{
		"job_id": job.ID,
		"scenes": len(scenes),
		"frames": totalFrames,
	})
}

// pipelineConfig 本次运行生效的流水线参数
type pipelineConfig struct {
	threshold     float64
	keyframeCount int
}

// pipelineDefaults 合并作业选项与全局配置
func (s *JobService) pipelineDefaults(opts models.JobOptions) pipelineConfig {
	cfg := pipelineConfig{
		threshold:     27.0,
		keyframeCount: 3,
	}
	if opts.Threshold > 0 {
		cfg.threshold = opts.Threshold
	}
	if opts.KeyframeCount > 0 {
		cfg.keyframeCount = opts.KeyframeCount
	}
	return cfg
}

// countAnalyzed 统计成功产出故事片段的场景数
func countAnalyzed(analyses []models.SceneAnalysis) int {
	count := 0
	for i := range analyses {
		if analyses[i].HasStoryPart() {
			count++
		}
	}
	return count
}

// buildSceneJobs 为每个场景构造下游队列任务
func buildSceneJobs(job *models.Job, segments []models.AudioSegment, keyframes []models.SceneKeyframes) []models.SceneJob {
	audioBySceneNum := make(map[int]string, len(segments))
	for _, seg := range segments {
		audioBySceneNum[seg.SceneNumber] = seg.Path
	}

	now := time.Now()
	jobs := make([]models.SceneJob, 0, len(keyframes))
	for _, sk := range keyframes {
		framePaths := make([]string, 0, len(sk.Keyframes))
		for _, frame := range sk.Keyframes {
			framePaths = append(framePaths, frame.Path)
		}
		jobs = append(jobs, models.SceneJob{
			JobID:       job.ID,
			SceneNumber: sk.SceneNumber,
			Source:      job.Source,
			AudioPath:   audioBySceneNum[sk.SceneNumber],
			FramePaths:  framePaths,
			EnqueuedAt:  now,
		})
	}
	return jobs
}

// buildJobResult 汇总作业结果清单
func (s *JobService) buildJobResult(job *models.Job, opts models.JobOptions,
	scenes []models.Scene, segments []models.AudioSegment,
	keyframes []models.SceneKeyframes, analyses []models.SceneAnalysis) *models.JobResult {

	audioBySceneNum := make(map[int]string, len(segments))
	for _, seg := range segments {
		audioBySceneNum[seg.SceneNumber] = seg.Path
	}
	framesBySceneNum := make(map[int][]models.Keyframe, len(keyframes))
	totalFrames := 0
	for _, sk := range keyframes {
		framesBySceneNum[sk.SceneNumber] = sk.Keyframes
		totalFrames += len(sk.Keyframes)
	}
	analysisBySceneNum := make(map[int]*models.SceneAnalysis, len(analyses))
	for i := range analyses {
		analysisBySceneNum[analyses[i].SceneNumber] = &analyses[i]
	}

	records := make([]models.SceneRecord, 0, len(scenes))
	for _, scene := range scenes {
		records = append(records, models.SceneRecord{
			Scene:     scene,
			AudioPath: audioBySceneNum[scene.Number],
			Keyframes: framesBySceneNum[scene.Number],
			Analysis:  analysisBySceneNum[scene.Number],
		})
	}

	return &models.JobResult{
		JobID:              job.ID,
		Source:             job.Source,
		CreatedAt:          job.CreatedAt,
		CompletedAt:        time.Now(),
		ScenesDetected:     len(scenes),
		AudioSegments:      len(segments),
		KeyframesExtracted: totalFrames,
		ScenesAnalyzed:     countAnalyzed(analyses),
		Persona:            opts.Persona,
		Scenes:             records,
	}
}

// GetJobResult 读取作业的结果清单
func (s *JobService) GetJobResult(jobID string) (*models.JobResult, error) {
	jobDir := filepath.Join("jobs", jobID)
	var result models.JobResult
	if err := s.Storage.LoadJSONFile(jobDir, "result.json", &result); err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("作业结果不存在: %s", jobID), err)
	}
	return &result, nil
}

// GetJobStory 读取片段拼接版的故事文本
func (s *JobService) GetJobStory(jobID string) (string, error) {
	jobDir := filepath.Join("jobs", jobID)
	data, err := s.Storage.LoadFile(jobDir, "story.txt")
	if err != nil {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("作业故事不存在: %s", jobID), err)
	}
	return string(data), nil
}

// GetCombinedStory 读取整体合成版的故事文本
// 没有合成版时回退到片段拼接版
func (s *JobService) GetCombinedStory(jobID string) (string, error) {
	jobDir := filepath.Join("jobs", jobID)
	data, err := s.Storage.LoadFile(jobDir, "story_combined.txt")
	if err != nil {
		return s.GetJobStory(jobID)
	}
	return string(data), nil
}

// GetNarration 获取旁白音频文件路径，不存在时即时生成
// combined为true时使用整体合成版故事，整段文本一次合成
func (s *JobService) GetNarration(ctx context.Context, jobID string, combined bool) (string, error) {
	jobDir := filepath.Join("jobs", jobID)

	filename := "narration.mp3"
	text, err := s.GetJobStory(jobID)
	if combined {
		filename = "story_narration.mp3"
		text, err = s.GetCombinedStory(jobID)
	}
	if err != nil {
		return "", err
	}

	fresh := !s.Storage.FileExists(jobDir, filename)
	var path string
	if combined {
		path, err = s.Narration.GenerateWholeNarration(ctx, text, jobDir, filename)
	} else {
		path, err = s.Narration.GenerateNarration(ctx, text, jobDir, filename)
	}
	if err != nil {
		return "", err
	}
	if fresh {
		s.Stats.RecordNarrationCreated()
	}
	return path, nil
}
