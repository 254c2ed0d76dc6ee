// internal/services/segment_service_test.go
package services

import (
	"context"
	"fmt"
	"testing"

	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
)

func newTestStorage(t *testing.T) *storage.FileStorage {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建测试存储失败: %v", err)
	}
	return fs
}

func TestSegmentVideoNormalizesScenes(t *testing.T) {
	detector := &fakeDetector{
		scenes: []models.Scene{
			// 乱序输入，包含一个非正时长的坏场景
			{Number: 7, StartTime: 10.0, EndTime: 20.0},
			{Number: 2, StartTime: 0.0, EndTime: 10.0},
			{Number: 9, StartTime: 20.0, EndTime: 20.0},
			{Number: 4, StartTime: 20.0, EndTime: 30.0},
		},
	}
	service := NewSegmentService(detector, newFakeSampler(30.0), newTestStorage(t))

	scenes, err := service.SegmentVideo(context.Background(), "test.mp4", 27.0, "job-1")
	if err != nil {
		t.Fatalf("场景切分不应该失败: %v", err)
	}

	if len(scenes) != 3 {
		t.Fatalf("非正时长的场景应该被丢弃，期望3个场景，实际: %d", len(scenes))
	}

	for i, scene := range scenes {
		if scene.Number != i+1 {
			t.Errorf("场景编号应该从1连续递增，位置%d的编号: %d", i, scene.Number)
		}
		if i > 0 && scene.StartTime < scenes[i-1].StartTime {
			t.Error("场景应该按起始时间升序排列")
		}
		if scene.Duration <= 0 {
			t.Errorf("场景%d的时长应该为正", scene.Number)
		}
	}
}

func TestSegmentVideoZeroBoundariesFallback(t *testing.T) {
	detector := &fakeDetector{scenes: nil}
	sampler := newFakeSampler(42.5)
	service := NewSegmentService(detector, sampler, newTestStorage(t))

	scenes, err := service.SegmentVideo(context.Background(), "test.mp4", 27.0, "job-1")
	if err != nil {
		t.Fatalf("零边界不应该导致失败: %v", err)
	}

	if len(scenes) != 1 {
		t.Fatalf("零边界应该回退为单一场景，实际: %d", len(scenes))
	}
	if scenes[0].Number != 1 || scenes[0].StartTime != 0 || scenes[0].EndTime != 42.5 {
		t.Errorf("单一场景应该覆盖整个视频: %+v", scenes[0])
	}
}

func TestSegmentVideoZeroBoundariesProbeFailure(t *testing.T) {
	detector := &fakeDetector{scenes: nil}
	sampler := newFakeSampler(0)
	sampler.durationErr = fmt.Errorf("模拟探测失败")
	service := NewSegmentService(detector, sampler, newTestStorage(t))

	scenes, err := service.SegmentVideo(context.Background(), "test.mp4", 27.0, "job-1")
	if err != nil {
		t.Fatalf("时长探测失败不应该导致切分失败: %v", err)
	}

	if len(scenes) != 1 || scenes[0].EndTime != 0 {
		t.Errorf("探测失败时结束时间应该为0哨兵值: %+v", scenes)
	}
}

func TestSegmentVideoDetectorErrorIsFatal(t *testing.T) {
	detector := &fakeDetector{err: fmt.Errorf("模拟检测器崩溃")}
	service := NewSegmentService(detector, newFakeSampler(30.0), newTestStorage(t))

	_, err := service.SegmentVideo(context.Background(), "test.mp4", 27.0, "job-1")
	if err == nil {
		t.Fatal("检测器失败应该返回错误")
	}
	if !apperrors.IsSegmentationError(err) {
		t.Errorf("错误类型应该是segmentation_failure: %v", err)
	}
}

func TestSegmentVideoWritesManifest(t *testing.T) {
	detector := &fakeDetector{
		scenes: []models.Scene{{Number: 1, StartTime: 0, EndTime: 5.0}},
	}
	fs := newTestStorage(t)
	service := NewSegmentService(detector, newFakeSampler(5.0), fs)

	if _, err := service.SegmentVideo(context.Background(), "test.mp4", 27.0, "job-1"); err != nil {
		t.Fatalf("场景切分失败: %v", err)
	}

	loaded, err := service.LoadScenes("job-1")
	if err != nil {
		t.Fatalf("加载场景清单失败: %v", err)
	}
	if len(loaded) != 1 || loaded[0].EndTime != 5.0 {
		t.Errorf("清单内容不正确: %+v", loaded)
	}

	if _, err := service.LoadScenes("missing-job"); !apperrors.IsNotFoundError(err) {
		t.Error("缺失的清单应该返回not_found错误")
	}
}

func TestRoundMs(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.23456, 1.235},
		{1.2344, 1.234},
		{0, 0},
		{10.9999, 11.0},
	}
	for _, tc := range cases {
		if got := roundMs(tc.in); got != tc.want {
			t.Errorf("roundMs(%v) = %v，期望 %v", tc.in, got, tc.want)
		}
	}
}
