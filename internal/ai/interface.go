// internal/ai/interface.go
package ai

import (
	"context"
	"errors"
)

// 错误定义
var ErrNotConfigured = errors.New("AI能力未配置API密钥")

// InterpretRequest 单场景解读请求
type InterpretRequest struct {
	ImagePaths []string // 场景关键帧，按时间顺序
	Transcript string   // 可选的语音转写
	Prompt     string   // 由调用方组装的完整提示词
}

// SceneInterpretation 场景解读的结构化结果
// 模型输出无法解析为结构化数据时，原始文本会落入StoryPart
type SceneInterpretation struct {
	Description    string   `json:"description"`
	VisualElements []string `json:"visual_elements,omitempty"`
	Mood           string   `json:"mood,omitempty"`
	Dialogue       string   `json:"dialogue,omitempty"`
	StoryPart      string   `json:"story_part"`
}

// Interpreter 内容理解能力：图像集+提示词 -> 结构化场景描述
type Interpreter interface {
	InterpretScene(ctx context.Context, req InterpretRequest) (*SceneInterpretation, error)

	// ComposeStory 将全部场景片段合成为一个连贯的故事
	ComposeStory(ctx context.Context, fragments []string, persona string) (string, error)
}

// Transcriber 语音转写能力
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// SpeechSynthesizer 语音合成能力：文本 -> 音频字节
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}
