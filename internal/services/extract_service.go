// internal/services/extract_service.go
package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/media"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// extractParallelism 单作业内媒体采样的最大并发数
const extractParallelism = 4

// ExtractService 负责按场景截取音频与采样关键帧
// 单个场景或单帧失败只记录日志，不影响其他场景
type ExtractService struct {
	Sampler media.MediaSampler
	Storage *storage.FileStorage
	logger  *utils.Logger
}

// NewExtractService 创建媒体提取服务
func NewExtractService(sampler media.MediaSampler, fileStorage *storage.FileStorage) *ExtractService {
	return &ExtractService{
		Sampler: sampler,
		Storage: fileStorage,
		logger:  utils.GetLogger(),
	}
}

// resolveSceneSpan 解析场景的有效时间区间
// 结束时间不大于起始时间时视为哨兵值，回退为整个视频时长
func (s *ExtractService) resolveSceneSpan(ctx context.Context, videoPath string, scene models.Scene) (float64, float64, error) {
	if scene.EndTime > scene.StartTime {
		return scene.StartTime, scene.EndTime, nil
	}

	duration, err := s.Sampler.Duration(ctx, videoPath)
	if err != nil {
		return 0, 0, fmt.Errorf("场景%d区间无效且探测时长失败: %w", scene.Number, err)
	}
	if duration <= scene.StartTime {
		return 0, 0, fmt.Errorf("场景%d起始时间超出视频时长", scene.Number)
	}
	return scene.StartTime, duration, nil
}

// ExtractAudio 为每个场景截取音频片段
// 返回成功产出的片段列表，并写入audio_segments.json清单
func (s *ExtractService) ExtractAudio(ctx context.Context, videoPath string, scenes []models.Scene, jobDir string) ([]models.AudioSegment, error) {
	audioDir := filepath.Join(jobDir, "audio")
	if err := s.Storage.EnsureDir(audioDir); err != nil {
		return nil, apperrors.NewExtractionError("创建音频目录失败", err)
	}

	results := make([]*models.AudioSegment, len(scenes))
	var wg sync.WaitGroup
	sem := make(chan struct{}, extractParallelism)

	for i, scene := range scenes {
		wg.Add(1)
		go func(idx int, scene models.Scene) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start, end, err := s.resolveSceneSpan(ctx, videoPath, scene)
			if err != nil {
				s.logger.Warn("跳过音频截取", map[string]interface{}{
					"scene": scene.Number,
					"error": err.Error(),
				})
				return
			}

			audioPath := s.Storage.FullPath(audioDir, fmt.Sprintf("scene_%03d.wav", scene.Number))
			if err := s.Sampler.ClipAudio(ctx, videoPath, start, end, audioPath); err != nil {
				s.logger.Warn("场景音频截取失败", map[string]interface{}{
					"scene": scene.Number,
					"error": err.Error(),
				})
				return
			}

			results[idx] = &models.AudioSegment{
				SceneNumber: scene.Number,
				StartTime:   start,
				EndTime:     end,
				Duration:    roundMs(end - start),
				Path:        audioPath,
			}
		}(i, scene)
	}
	wg.Wait()

	// 保持场景顺序，只保留成功的片段
	var segments []models.AudioSegment
	for _, seg := range results {
		if seg != nil {
			segments = append(segments, *seg)
		}
	}

	if err := s.Storage.SaveJSONFile(jobDir, "audio_segments.json", segments); err != nil {
		return nil, apperrors.NewExtractionError("保存音频清单失败", err)
	}

	s.logger.Info("音频截取完成", map[string]interface{}{
		"scenes":   len(scenes),
		"segments": len(segments),
	})

	return segments, nil
}

// KeyframeTimestamps 计算场景内K个关键帧的采样时间点
// 时间点在区间内均匀分布且不含端点: start + duration/(k+1)*i
func KeyframeTimestamps(start, end float64, count int) []float64 {
	if count <= 0 || end <= start {
		return nil
	}

	duration := end - start
	timestamps := make([]float64, 0, count)
	for i := 1; i <= count; i++ {
		ts := start + duration/float64(count+1)*float64(i)
		timestamps = append(timestamps, roundMs(ts))
	}
	return timestamps
}

// ExtractKeyframes 为每个场景采样关键帧
// 单帧失败跳过该帧，成功帧在场景内从1重新连续编号
func (s *ExtractService) ExtractKeyframes(ctx context.Context, videoPath string, scenes []models.Scene, count int, jobDir string) ([]models.SceneKeyframes, error) {
	framesDir := filepath.Join(jobDir, "frames")
	if err := s.Storage.EnsureDir(framesDir); err != nil {
		return nil, apperrors.NewExtractionError("创建关键帧目录失败", err)
	}

	results := make([]*models.SceneKeyframes, len(scenes))
	var wg sync.WaitGroup
	sem := make(chan struct{}, extractParallelism)

	for i, scene := range scenes {
		wg.Add(1)
		go func(idx int, scene models.Scene) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start, end, err := s.resolveSceneSpan(ctx, videoPath, scene)
			if err != nil {
				s.logger.Warn("跳过关键帧采样", map[string]interface{}{
					"scene": scene.Number,
					"error": err.Error(),
				})
				return
			}

			var keyframes []models.Keyframe
			for _, ts := range KeyframeTimestamps(start, end, count) {
				framePath := s.Storage.FullPath(framesDir,
					fmt.Sprintf("scene_%03d_frame_%d.jpg", scene.Number, len(keyframes)+1))
				if err := s.Sampler.ExtractFrame(ctx, videoPath, ts, framePath); err != nil {
					s.logger.Warn("关键帧采样失败", map[string]interface{}{
						"scene":     scene.Number,
						"timestamp": ts,
						"error":     err.Error(),
					})
					continue
				}
				keyframes = append(keyframes, models.Keyframe{
					Index:     len(keyframes) + 1,
					Timestamp: ts,
					Path:      framePath,
				})
			}

			results[idx] = &models.SceneKeyframes{
				SceneNumber: scene.Number,
				Keyframes:   keyframes,
			}
		}(i, scene)
	}
	wg.Wait()

	var sceneKeyframes []models.SceneKeyframes
	total := 0
	for _, sk := range results {
		if sk != nil {
			sceneKeyframes = append(sceneKeyframes, *sk)
			total += len(sk.Keyframes)
		}
	}

	if err := s.Storage.SaveJSONFile(jobDir, "keyframes.json", sceneKeyframes); err != nil {
		return nil, apperrors.NewExtractionError("保存关键帧清单失败", err)
	}

	s.logger.Info("关键帧采样完成", map[string]interface{}{
		"scenes": len(scenes),
		"frames": total,
	})

	return sceneKeyframes, nil
}
