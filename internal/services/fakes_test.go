// internal/services/fakes_test.go
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/Corphon/VideoNarratorMCP/internal/ai"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
)

// fakeSampler 可注入失败的媒体采样器
type fakeSampler struct {
	mu            sync.Mutex
	duration      float64
	durationErr   error
	clipCalls     []string
	clipFailFor   map[int]bool // 按场景起始秒的整数部分注入失败
	frameCalls    []float64
	frameFailAt   map[float64]bool
	extractCalled int
}

func newFakeSampler(duration float64) *fakeSampler {
	return &fakeSampler{
		duration:    duration,
		clipFailFor: make(map[int]bool),
		frameFailAt: make(map[float64]bool),
	}
}

func (f *fakeSampler) Duration(ctx context.Context, path string) (float64, error) {
	if f.durationErr != nil {
		return 0, f.durationErr
	}
	return f.duration, nil
}

func (f *fakeSampler) ClipAudio(ctx context.Context, src string, start, end float64, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clipFailFor[int(start)] {
		return fmt.Errorf("模拟音频截取失败")
	}
	f.clipCalls = append(f.clipCalls, dst)
	return nil
}

func (f *fakeSampler) ExtractFrame(ctx context.Context, src string, timestamp float64, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalled++
	if f.frameFailAt[timestamp] {
		return fmt.Errorf("模拟关键帧采样失败")
	}
	f.frameCalls = append(f.frameCalls, timestamp)
	return nil
}

// fakeDetector 返回预设场景列表的边界检测器
type fakeDetector struct {
	scenes []models.Scene
	err    error
}

func (f *fakeDetector) DetectScenes(ctx context.Context, videoPath string, threshold float64) ([]models.Scene, error) {
	return f.scenes, f.err
}

// fakeInterpreter 记录提示词并按场景序号注入失败
type fakeInterpreter struct {
	mu         sync.Mutex
	prompts    []string
	failCalls  map[int]bool // 按调用序号（从1开始）注入失败
	composeErr error
	composed   string
	calls      int
}

func newFakeInterpreter() *fakeInterpreter {
	return &fakeInterpreter{failCalls: make(map[int]bool)}
}

func (f *fakeInterpreter) InterpretScene(ctx context.Context, req ai.InterpretRequest) (*ai.SceneInterpretation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.failCalls[f.calls] {
		return nil, fmt.Errorf("模拟解读失败")
	}
	return &ai.SceneInterpretation{
		Description: fmt.Sprintf("场景描述%d", f.calls),
		StoryPart:   fmt.Sprintf("故事片段%d", f.calls),
	}, nil
}

func (f *fakeInterpreter) ComposeStory(ctx context.Context, fragments []string, persona string) (string, error) {
	if f.composeErr != nil {
		return "", f.composeErr
	}
	if f.composed != "" {
		return f.composed, nil
	}
	return "合成后的完整故事", nil
}

// fakeTranscriber 返回固定转写文本
type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return f.text, f.err
}

// fakeSynthesizer 统计调用次数的语音合成器
type fakeSynthesizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSynthesizer) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return []byte(fmt.Sprintf("AUDIO[%d]", f.calls)), nil
}

func (f *fakeSynthesizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSink 记录发布任务的队列目标
type fakeSink struct {
	mu        sync.Mutex
	name      string
	err       error
	published []models.SceneJob
}

func (f *fakeSink) Publish(ctx context.Context, job models.SceneJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, job)
	return nil
}

func (f *fakeSink) Name() string {
	return f.name
}

// fakeFetcher 返回固定本地路径的远程视频获取器
type fakeFetcher struct {
	localPath string
	err       error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, destDir string) (string, error) {
	return f.localPath, f.err
}
