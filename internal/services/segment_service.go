// internal/services/segment_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/media"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// SegmentService 负责把视频切分为有序的场景列表
// 边界检测失败是致命错误，整个作业无法继续
type SegmentService struct {
	Detector media.BoundaryDetector
	Sampler  media.MediaSampler
	Storage  *storage.FileStorage
	logger   *utils.Logger
}

// NewSegmentService 创建场景切分服务
func NewSegmentService(detector media.BoundaryDetector, sampler media.MediaSampler, fileStorage *storage.FileStorage) *SegmentService {
	return &SegmentService{
		Detector: detector,
		Sampler:  sampler,
		Storage:  fileStorage,
		logger:   utils.GetLogger(),
	}
}

// SegmentVideo 检测场景边界并写入场景清单
// 没有检出任何边界时，整个视频作为单一场景处理
func (s *SegmentService) SegmentVideo(ctx context.Context, videoPath string, threshold float64, jobDir string) ([]models.Scene, error) {
	detected, err := s.Detector.DetectScenes(ctx, videoPath, threshold)
	if err != nil {
		return nil, apperrors.NewSegmentationError("场景边界检测失败", err)
	}

	scenes := normalizeScenes(detected)

	if len(scenes) == 0 {
		// 零边界回退：整个视频视为一个场景
		s.logger.Info("未检出场景边界，整个视频作为单一场景", map[string]interface{}{
			"video": videoPath,
		})

		duration, probeErr := s.Sampler.Duration(ctx, videoPath)
		if probeErr != nil {
			// 时长探测失败时结束时间置0，后续阶段按需再探测
			s.logger.Warn("探测视频时长失败", map[string]interface{}{
				"video": videoPath,
				"error": probeErr.Error(),
			})
			duration = 0
		}

		scenes = []models.Scene{
			{
				Number:    1,
				StartTime: 0,
				EndTime:   roundMs(duration),
				Duration:  roundMs(duration),
			},
		}
	}

	if err := s.Storage.SaveJSONFile(jobDir, "scenes.json", scenes); err != nil {
		return nil, apperrors.NewSegmentationError("保存场景清单失败", err)
	}

	s.logger.Info("场景切分完成", map[string]interface{}{
		"video":  videoPath,
		"scenes": len(scenes),
	})

	return scenes, nil
}

// LoadScenes 从作业目录加载场景清单
func (s *SegmentService) LoadScenes(jobDir string) ([]models.Scene, error) {
	var scenes []models.Scene
	if err := s.Storage.LoadJSONFile(jobDir, "scenes.json", &scenes); err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("场景清单不存在: %s", jobDir), err)
	}
	return scenes, nil
}

// normalizeScenes 清洗检测器输出：按起始时间排序、丢弃非正时长、重编号
func normalizeScenes(detected []models.Scene) []models.Scene {
	var scenes []models.Scene
	for _, scene := range detected {
		start := roundMs(scene.StartTime)
		end := roundMs(scene.EndTime)
		if end <= start {
			continue
		}
		scenes = append(scenes, models.Scene{
			StartTime: start,
			EndTime:   end,
			Duration:  roundMs(end - start),
		})
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].StartTime < scenes[j].StartTime
	})

	// 场景编号从1开始且连续，不沿用检测器给出的编号
	for i := range scenes {
		scenes[i].Number = i + 1
	}

	return scenes
}

// roundMs 将秒数舍入到毫秒精度
func roundMs(v float64) float64 {
	return math.Round(v*1000) / 1000
}
