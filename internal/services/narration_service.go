// internal/services/narration_service.go
package services

import (
	"context"
	"strings"

	"github.com/Corphon/VideoNarratorMCP/internal/ai"
	apperrors "github.com/Corphon/VideoNarratorMCP/internal/errors"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// NarrationService 负责把故事文本合成为旁白音频
// 同一作业的同名旁白文件只合成一次，重复请求直接命中磁盘缓存
type NarrationService struct {
	Synthesizer ai.SpeechSynthesizer
	Storage     *storage.FileStorage
	ChunkMax    int // 单次合成请求的最大字符数
	logger      *utils.Logger
}

// NewNarrationService 创建旁白合成服务
func NewNarrationService(synthesizer ai.SpeechSynthesizer, fileStorage *storage.FileStorage, chunkMax int) *NarrationService {
	if chunkMax <= 0 {
		chunkMax = 4096
	}
	return &NarrationService{
		Synthesizer: synthesizer,
		Storage:     fileStorage,
		ChunkMax:    chunkMax,
		logger:      utils.GetLogger(),
	}
}

// sentenceEnders 句子边界字符，优先在这些位置切分文本
var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true,
	'.': true, '!': true, '?': true, ';': true,
	'\n': true,
}

// SplitTextForSpeech 将长文本切分为不超过max字符的片段
// 优先在句子边界切分，单句超长时按字符硬切
func SplitTextForSpeech(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + max
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// 在窗口内从后往前找最近的句子边界
		cut := -1
		for i := end - 1; i > start; i-- {
			if sentenceEnders[runes[i]] {
				cut = i + 1
				break
			}
		}
		if cut == -1 {
			// 整个窗口没有句子边界，硬切
			cut = end
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = cut
	}

	return chunks
}

// GenerateNarration 合成旁白音频并写入作业目录，返回文件路径
// 文件已存在时直接返回，不重复调用合成接口
func (s *NarrationService) GenerateNarration(ctx context.Context, text, jobDir, filename string) (string, error) {
	return s.generate(ctx, text, jobDir, filename, false)
}

// GenerateWholeNarration 将整段文本一次性合成，不做切分
// 用于整体合成版故事的旁白
func (s *NarrationService) GenerateWholeNarration(ctx context.Context, text, jobDir, filename string) (string, error) {
	return s.generate(ctx, text, jobDir, filename, true)
}

func (s *NarrationService) generate(ctx context.Context, text, jobDir, filename string, whole bool) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewValidationError("旁白文本为空", nil)
	}

	if s.Storage.FileExists(jobDir, filename) {
		s.logger.Debug("旁白音频已存在，命中缓存", map[string]interface{}{
			"file": filename,
		})
		return s.Storage.FullPath(jobDir, filename), nil
	}

	chunks := []string{strings.TrimSpace(text)}
	if !whole {
		chunks = SplitTextForSpeech(text, s.ChunkMax)
	}

	var audio []byte
	for i, chunk := range chunks {
		data, err := s.Synthesizer.SynthesizeSpeech(ctx, chunk)
		if err != nil {
			return "", apperrors.NewCompositionError("旁白合成失败", err)
		}
		audio = append(audio, data...)

		s.logger.Debug("旁白片段合成完成", map[string]interface{}{
			"chunk": i + 1,
			"total": len(chunks),
		})
	}

	if err := s.Storage.SaveFile(jobDir, filename, audio); err != nil {
		return "", apperrors.NewCompositionError("保存旁白音频失败", err)
	}

	s.logger.Info("旁白音频生成完成", map[string]interface{}{
		"file":   filename,
		"chunks": len(chunks),
		"bytes":  len(audio),
	})

	return s.Storage.FullPath(jobDir, filename), nil
}
