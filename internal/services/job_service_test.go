// internal/services/job_service_test.go
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
)

// pipelineHarness 端到端测试用的服务装配
type pipelineHarness struct {
	jobs        *JobService
	storage     *storage.FileStorage
	sampler     *fakeSampler
	detector    *fakeDetector
	interpreter *fakeInterpreter
	synthesizer *fakeSynthesizer
	sink        *fakeSink
	videoPath   string
}

func newPipelineHarness(t *testing.T, detector *fakeDetector) *pipelineHarness {
	t.Helper()

	dataDir := t.TempDir()
	fs, err := storage.NewFileStorage(dataDir)
	if err != nil {
		t.Fatalf("创建测试存储失败: %v", err)
	}

	// 流水线入口需要一个真实存在的视频文件
	videoPath := filepath.Join(dataDir, "input.mp4")
	if err := os.WriteFile(videoPath, []byte("fake video"), 0644); err != nil {
		t.Fatalf("创建测试视频文件失败: %v", err)
	}

	sampler := newFakeSampler(30.0)
	interpreter := newFakeInterpreter()
	synthesizer := &fakeSynthesizer{}
	sink := &fakeSink{name: "local:scene_queue.log"}

	progress := NewProgressService()
	stats := NewStatsService(fs)
	segment := NewSegmentService(detector, sampler, fs)
	extract := NewExtractService(sampler, fs)
	narrative := NewNarrativeService(interpreter, &fakeTranscriber{text: "场景对白"})
	narration := NewNarrationService(synthesizer, fs, 4096)
	queue := NewQueueService(nil, sink)

	jobs := NewJobService(fs, segment, extract, narrative, narration,
		queue, progress, stats, &fakeFetcher{localPath: videoPath})

	return &pipelineHarness{
		jobs:        jobs,
		storage:     fs,
		sampler:     sampler,
		detector:    detector,
		interpreter: interpreter,
		synthesizer: synthesizer,
		sink:        sink,
		videoPath:   videoPath,
	}
}

func detectorWithScenes(count int) *fakeDetector {
	var scenes []models.Scene
	for i := 0; i < count; i++ {
		start := float64(i) * 10.0
		scenes = append(scenes, models.Scene{
			Number:    i + 1,
			StartTime: start,
			EndTime:   start + 10.0,
		})
	}
	return &fakeDetector{scenes: scenes}
}

// 场景A：三个场景全部成功
func TestRunPipelineHappyPath(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(3))

	job, err := h.jobs.CreateJob(h.videoPath)
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{KeyframeCount: 3})

	tracker, _ := h.jobs.Progress.GetTracker(job.ID)
	select {
	case <-tracker.Done:
	case <-time.After(time.Second):
		t.Fatal("流水线应该已到终态")
	}

	result, err := h.jobs.GetJobResult(job.ID)
	if err != nil {
		t.Fatalf("读取作业结果失败: %v", err)
	}

	if result.ScenesDetected != 3 {
		t.Errorf("应该检出3个场景，实际: %d", result.ScenesDetected)
	}
	if result.KeyframesExtracted != 9 {
		t.Errorf("3个场景各3帧应该共9帧，实际: %d", result.KeyframesExtracted)
	}
	if result.ScenesAnalyzed != 3 {
		t.Errorf("应该解读3个场景，实际: %d", result.ScenesAnalyzed)
	}
	if result.AudioSegments != 3 {
		t.Errorf("应该产出3个音频片段，实际: %d", result.AudioSegments)
	}

	// 故事文本应该包含全部片段
	story, err := h.jobs.GetJobStory(job.ID)
	if err != nil {
		t.Fatalf("读取故事失败: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if !strings.Contains(story, fmt.Sprintf("故事片段%d", i)) {
			t.Errorf("故事应该包含片段%d", i)
		}
	}

	// 场景任务应该全部发布
	if len(h.sink.published) != 3 {
		t.Errorf("应该发布3个场景任务，实际: %d", len(h.sink.published))
	}

	// 终态事件应该是成功
	events := tracker.Events
	last := events[len(events)-1]
	if last.Stage != StageComplete {
		t.Errorf("最后一个事件应该是complete，实际: %s", last.Stage)
	}

	// 叙事阶段应该逐场景上报processing事件
	processing := 0
	for _, event := range events {
		if event.Stage == StageNarrativeSynthesis && event.Status == StatusProcessing {
			processing++
		}
	}
	if processing != 3 {
		t.Errorf("每个场景解读时都应该有processing事件，实际: %d", processing)
	}
}

// 场景B：第二个场景解读失败，流水线仍然完成
func TestRunPipelineSceneFailureIsNotFatal(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(3))
	h.interpreter.failCalls[2] = true

	job, err := h.jobs.CreateJob(h.videoPath)
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{KeyframeCount: 3})

	result, err := h.jobs.GetJobResult(job.ID)
	if err != nil {
		t.Fatalf("单场景失败后流水线应该仍然产出结果: %v", err)
	}

	if result.ScenesDetected != 3 {
		t.Errorf("应该检出3个场景，实际: %d", result.ScenesDetected)
	}
	if result.ScenesAnalyzed != 2 {
		t.Errorf("应该只有2个场景解读成功，实际: %d", result.ScenesAnalyzed)
	}

	// 失败场景在结果中携带错误标记
	if result.Scenes[1].Analysis == nil || result.Scenes[1].Analysis.Error == "" {
		t.Error("失败场景应该携带错误标记")
	}

	// 前一个场景失败时，第三个场景不携带任何上文片段
	if strings.Contains(h.interpreter.prompts[2], "上一个场景的故事片段") {
		t.Error("失败场景之后的场景不应该携带任何上文片段")
	}

	tracker, _ := h.jobs.Progress.GetTracker(job.ID)
	last := tracker.Events[len(tracker.Events)-1]
	if last.Stage != StageComplete {
		t.Errorf("单场景失败不应该导致终态失败，实际: %s", last.Stage)
	}
}

// 场景C：零边界回退为单一场景
func TestRunPipelineZeroBoundaries(t *testing.T) {
	h := newPipelineHarness(t, &fakeDetector{scenes: nil})

	job, err := h.jobs.CreateJob(h.videoPath)
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{KeyframeCount: 3})

	result, err := h.jobs.GetJobResult(job.ID)
	if err != nil {
		t.Fatalf("读取作业结果失败: %v", err)
	}

	if result.ScenesDetected != 1 {
		t.Errorf("零边界应该回退为1个场景，实际: %d", result.ScenesDetected)
	}
	if result.KeyframesExtracted != 3 {
		t.Errorf("单一场景应该有3帧，实际: %d", result.KeyframesExtracted)
	}
	if result.Scenes[0].Scene.EndTime != 30.0 {
		t.Errorf("单一场景应该覆盖整个视频: %+v", result.Scenes[0].Scene)
	}
}

// 检测器故障是致命错误
func TestRunPipelineSegmentationFailureIsFatal(t *testing.T) {
	h := newPipelineHarness(t, &fakeDetector{err: fmt.Errorf("模拟检测器崩溃")})

	job, err := h.jobs.CreateJob(h.videoPath)
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{})

	tracker, _ := h.jobs.Progress.GetTracker(job.ID)
	last := tracker.Events[len(tracker.Events)-1]
	if last.Stage != StageError {
		t.Errorf("检测器故障应该导致终态失败，实际: %s", last.Stage)
	}

	if _, err := h.jobs.GetJobResult(job.ID); !apperrors.IsNotFoundError(err) {
		t.Error("失败的作业不应该有结果清单")
	}
}

func TestRunPipelineRemoteSource(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(1))

	job, err := h.jobs.CreateJob("https://example.com/video")
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{})

	result, err := h.jobs.GetJobResult(job.ID)
	if err != nil {
		t.Fatalf("远程来源的流水线应该完成: %v", err)
	}
	if result.ScenesDetected != 1 {
		t.Errorf("应该检出1个场景，实际: %d", result.ScenesDetected)
	}

	// 进度事件中应该包含下载阶段
	tracker, _ := h.jobs.Progress.GetTracker(job.ID)
	found := false
	for _, event := range tracker.Events {
		if event.Stage == StageAcquisition {
			found = true
			break
		}
	}
	if !found {
		t.Error("远程来源应该发布acquisition阶段事件")
	}
}

func TestRunPipelineInvalidLocalSource(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(1))

	job, err := h.jobs.CreateJob("/no/such/video.mp4")
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{})

	tracker, _ := h.jobs.Progress.GetTracker(job.ID)
	last := tracker.Events[len(tracker.Events)-1]
	if last.Stage != StageError {
		t.Errorf("不存在的本地文件应该导致终态失败，实际: %s", last.Stage)
	}
}

func TestGetNarrationGeneratesAndCaches(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(2))

	job, err := h.jobs.CreateJob(h.videoPath)
	if err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}
	h.jobs.RunPipeline(context.Background(), job, models.JobOptions{})

	path1, err := h.jobs.GetNarration(context.Background(), job.ID, false)
	if err != nil {
		t.Fatalf("生成旁白失败: %v", err)
	}
	calls := h.synthesizer.callCount()

	path2, err := h.jobs.GetNarration(context.Background(), job.ID, false)
	if err != nil {
		t.Fatalf("第二次获取旁白失败: %v", err)
	}

	if path1 != path2 {
		t.Error("重复获取应该返回相同的音频文件")
	}
	if h.synthesizer.callCount() != calls {
		t.Error("命中缓存时不应该再调用合成接口")
	}
}

func TestGetJobNotFound(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(1))

	if _, err := h.jobs.GetJob("no-such-job"); !apperrors.IsNotFoundError(err) {
		t.Error("不存在的作业应该返回not_found错误")
	}
	if _, err := h.jobs.GetJobStory("no-such-job"); !apperrors.IsNotFoundError(err) {
		t.Error("不存在的故事应该返回not_found错误")
	}
}

func TestCreateJobEmptySource(t *testing.T) {
	h := newPipelineHarness(t, detectorWithScenes(1))

	if _, err := h.jobs.CreateJob("  "); !apperrors.IsValidationError(err) {
		t.Error("空来源应该返回validation_error")
	}
}
