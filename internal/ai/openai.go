// internal/ai/openai.go
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient 基于OpenAI兼容API的AI能力实现
// 同时提供场景解读、语音转写与语音合成三种能力
type OpenAIClient struct {
	client      *openai.Client
	visionModel string
	asrModel    string
	ttsModel    string
	ttsVoice    string
	mu          sync.RWMutex
}

// NewOpenAIClient 从配置映射创建客户端
// config键：api_key, base_url(可选), vision_model, asr_model, tts_model, tts_voice
func NewOpenAIClient(config map[string]string) *OpenAIClient {
	c := &OpenAIClient{}
	c.UpdateConfig(config)
	return c
}

// UpdateConfig 热更新客户端配置
func (c *OpenAIClient) UpdateConfig(config map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	apiKey := config["api_key"]
	if apiKey == "" {
		c.client = nil
		return
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := config["base_url"]; baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	c.client = openai.NewClientWithConfig(clientConfig)

	c.visionModel = config["vision_model"]
	if c.visionModel == "" {
		c.visionModel = openai.GPT4o
	}
	c.asrModel = config["asr_model"]
	if c.asrModel == "" {
		c.asrModel = openai.Whisper1
	}
	c.ttsModel = config["tts_model"]
	if c.ttsModel == "" {
		c.ttsModel = string(openai.TTSModel1)
	}
	c.ttsVoice = config["tts_voice"]
	if c.ttsVoice == "" {
		c.ttsVoice = string(openai.VoiceAlloy)
	}
}

// IsConfigured 客户端是否已配置密钥
func (c *OpenAIClient) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

func (c *OpenAIClient) snapshot() (*openai.Client, string, string, string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client, c.visionModel, c.asrModel, c.ttsModel, c.ttsVoice
}

// InterpretScene 将场景关键帧与上下文提示词发给视觉模型，解析结构化结果
func (c *OpenAIClient) InterpretScene(ctx context.Context, req InterpretRequest) (*SceneInterpretation, error) {
	client, visionModel, _, _, _ := c.snapshot()
	if client == nil {
		return nil, ErrNotConfigured
	}

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: req.Prompt,
		},
	}

	for _, imagePath := range req.ImagePaths {
		dataURL, err := encodeImageDataURL(imagePath)
		if err != nil {
			return nil, fmt.Errorf("读取关键帧失败: %w", err)
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "你是一个视频叙事助手。请只返回JSON对象，包含字段：" +
					`description(场景描述), visual_elements(视觉元素数组), mood(氛围), ` +
					`dialogue(对白概括，可为空), story_part(以第一人称叙事风格写的故事片段)。`,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("场景解读请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("场景解读返回了空结果")
	}

	content := resp.Choices[0].Message.Content
	cleaned := CleanJSONResponse(content)

	var interpretation SceneInterpretation
	if err := json.Unmarshal([]byte(cleaned), &interpretation); err != nil || interpretation.StoryPart == "" {
		// 解析失败时退化为纯文本叙事，不让整个场景失败
		return &SceneInterpretation{
			StoryPart: strings.TrimSpace(content),
		}, nil
	}

	return &interpretation, nil
}

// ComposeStory 将全部场景片段合成为一个连贯的完整故事
func (c *OpenAIClient) ComposeStory(ctx context.Context, fragments []string, persona string) (string, error) {
	client, visionModel, _, _, _ := c.snapshot()
	if client == nil {
		return "", ErrNotConfigured
	}
	if len(fragments) == 0 {
		return "", fmt.Errorf("没有可合成的故事片段")
	}

	var sb strings.Builder
	sb.WriteString("以下是按时间顺序排列的视频场景叙事片段，请将它们整合成一个连贯流畅的完整故事。")
	sb.WriteString("保留每个片段的关键情节，平滑场景之间的过渡，不要添加编号或小标题。\n\n")
	if persona != "" {
		sb.WriteString("叙事视角与风格要求: ")
		sb.WriteString(persona)
		sb.WriteString("\n\n")
	}
	for i, fragment := range fragments {
		sb.WriteString(fmt.Sprintf("[片段 %d]\n%s\n\n", i+1, fragment))
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "你是一个故事创作者，擅长将零散的叙事片段整合为引人入胜的完整故事。只返回故事正文。",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: sb.String(),
			},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("故事合成请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("故事合成返回了空结果")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcribe 转写单个音频文件
func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	client, _, asrModel, _, _ := c.snapshot()
	if client == nil {
		return "", ErrNotConfigured
	}

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    asrModel,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("语音转写请求失败: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// SynthesizeSpeech 将文本合成为mp3音频字节
func (c *OpenAIClient) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	client, _, _, ttsModel, ttsVoice := c.snapshot()
	if client == nil {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("合成文本为空")
	}

	resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(ttsModel),
		Input: text,
		Voice: openai.SpeechVoice(ttsVoice),
	})
	if err != nil {
		return nil, fmt.Errorf("语音合成请求失败: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("读取合成音频失败: %w", err)
	}
	return audio, nil
}

// encodeImageDataURL 将本地图片编码为base64数据URL
func encodeImageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	mimeType := "image/jpeg"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		mimeType = "image/png"
	case ".webp":
		mimeType = "image/webp"
	case ".gif":
		mimeType = "image/gif"
	}

	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}
