// internal/services/narrative_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Corphon/VideoNarratorMCP/internal/ai"
	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// transcriptDenylist 语音转写中常见的幻觉文本
// 命中任意一条时整段转写作废
var transcriptDenylist = []string{
	"请不吝点赞",
	"订阅我的频道",
	"字幕由",
	"字幕志愿者",
	"Thank you for watching",
	"Thanks for watching",
	"Subtitles by",
	"Amara.org",
}

// NarrativeService 负责逐场景叙事合成与整体故事合成
// 场景按时间顺序严格串行处理，后一场景的提示词携带紧邻前一场景的故事片段
// 前一场景失败时不携带任何上文，上下文不跨越失败场景
type NarrativeService struct {
	Interpreter ai.Interpreter
	Transcriber ai.Transcriber
	logger      *utils.Logger
}

// NewNarrativeService 创建叙事合成服务
func NewNarrativeService(interpreter ai.Interpreter, transcriber ai.Transcriber) *NarrativeService {
	return &NarrativeService{
		Interpreter: interpreter,
		Transcriber: transcriber,
		logger:      utils.GetLogger(),
	}
}

// AnalyzeOptions 叙事合成的选项
type AnalyzeOptions struct {
	Persona         string                   // 人设/角色提示，作用于全部场景
	TranscribeAudio bool                     // 是否对场景音频做转写
	OnScene         func(current, total int) // 每个场景开始解读时回调，用于进度上报
}

// AnalyzeScenes 按顺序解读全部场景
// 单场景失败只在结果中携带Error标记，不中断后续场景
// 紧随失败场景之后的场景不携带任何上文片段
func (s *NarrativeService) AnalyzeScenes(ctx context.Context, scenes []models.Scene,
	segments []models.AudioSegment, keyframes []models.SceneKeyframes,
	opts AnalyzeOptions) []models.SceneAnalysis {

	audioBySceneNum := make(map[int]models.AudioSegment, len(segments))
	for _, seg := range segments {
		audioBySceneNum[seg.SceneNumber] = seg
	}
	framesBySceneNum := make(map[int][]models.Keyframe, len(keyframes))
	for _, sk := range keyframes {
		framesBySceneNum[sk.SceneNumber] = sk.Keyframes
	}

	analyses := make([]models.SceneAnalysis, 0, len(scenes))
	previousFragment := ""

	for i, scene := range scenes {
		if opts.OnScene != nil {
			opts.OnScene(i+1, len(scenes))
		}

		analysis := models.SceneAnalysis{
			SceneNumber: scene.Number,
			StartTime:   scene.StartTime,
			EndTime:     scene.EndTime,
		}

		frames := framesBySceneNum[scene.Number]
		if len(frames) == 0 {
			// 没有任何可用关键帧的场景无法解读
			analysis.Error = "场景没有可用的关键帧"
			analyses = append(analyses, analysis)
			previousFragment = ""
			s.logger.Warn("跳过场景解读", map[string]interface{}{
				"scene":  scene.Number,
				"reason": analysis.Error,
			})
			continue
		}

		// 可选的语音转写，失败不阻塞解读
		if opts.TranscribeAudio && s.Transcriber != nil {
			if seg, ok := audioBySceneNum[scene.Number]; ok {
				transcript, err := s.Transcriber.Transcribe(ctx, seg.Path)
				if err != nil {
					s.logger.Warn("场景转写失败", map[string]interface{}{
						"scene": scene.Number,
						"error": err.Error(),
					})
				} else {
					analysis.Transcript = FilterTranscript(transcript)
				}
			}
		}

		framePaths := make([]string, 0, len(frames))
		for _, frame := range frames {
			framePaths = append(framePaths, frame.Path)
		}

		prompt := buildScenePrompt(scene, i, len(scenes), opts.Persona, analysis.Transcript, previousFragment)

		interpretation, err := s.Interpreter.InterpretScene(ctx, ai.InterpretRequest{
			ImagePaths: framePaths,
			Transcript: analysis.Transcript,
			Prompt:     prompt,
		})
		if err != nil {
			analysis.Error = fmt.Sprintf("场景解读失败: %v", err)
			analyses = append(analyses, analysis)
			previousFragment = ""
			s.logger.Warn("场景解读失败", map[string]interface{}{
				"scene": scene.Number,
				"error": err.Error(),
			})
			continue
		}

		analysis.Description = interpretation.Description
		analysis.VisualElements = interpretation.VisualElements
		analysis.Mood = interpretation.Mood
		analysis.Dialogue = interpretation.Dialogue
		analysis.StoryPart = interpretation.StoryPart
		analyses = append(analyses, analysis)

		// 上下文只来自紧邻的前一场景，不跨越失败场景
		if analysis.HasStoryPart() {
			previousFragment = analysis.StoryPart
		} else {
			previousFragment = ""
		}
	}

	return analyses
}

// buildScenePrompt 组装单个场景的解读提示词
// 首尾场景分别带开篇与收束的叙事要求
func buildScenePrompt(scene models.Scene, index, total int, persona, transcript, previousFragment string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("这是一段视频的第%d个场景（共%d个），时间区间 %.3f 秒到 %.3f 秒。",
		scene.Number, total, scene.StartTime, scene.EndTime))
	sb.WriteString("请基于给出的关键帧描述画面内容，并续写故事片段。\n")

	switch {
	case index == 0:
		sb.WriteString("这是开篇场景，故事片段需要自然地引入情境。\n")
	case index == total-1:
		sb.WriteString("这是最后一个场景，故事片段需要对整个故事做出收束。\n")
	default:
		sb.WriteString("这是中间场景，故事片段需要承接上文并推进情节。\n")
	}

	if persona != "" {
		sb.WriteString("叙事视角与风格要求: ")
		sb.WriteString(persona)
		sb.WriteString("\n")
	}

	if previousFragment != "" {
		sb.WriteString("\n上一个场景的故事片段:\n")
		sb.WriteString(previousFragment)
		sb.WriteString("\n")
	}

	if transcript != "" {
		sb.WriteString("\n该场景的语音转写内容:\n")
		sb.WriteString(transcript)
		sb.WriteString("\n")
	}

	return sb.String()
}

// FilterTranscript 过滤转写文本中的幻觉内容
// 命中黑名单的整段转写视为不可信，返回空字符串
func FilterTranscript(transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return ""
	}

	lower := strings.ToLower(transcript)
	for _, phrase := range transcriptDenylist {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return ""
		}
	}
	return transcript
}

// ComposeStory 将全部成功场景的片段合成为完整故事
// AI合成失败时退化为按顺序拼接片段，合成失败不算致命
func (s *NarrativeService) ComposeStory(ctx context.Context, analyses []models.SceneAnalysis, persona string) string {
	var fragments []string
	for i := range analyses {
		if analyses[i].HasStoryPart() {
			fragments = append(fragments, analyses[i].StoryPart)
		}
	}
	if len(fragments) == 0 {
		return ""
	}

	story, err := s.Interpreter.ComposeStory(ctx, fragments, persona)
	if err != nil {
		s.logger.Warn("故事合成失败，使用片段拼接回退", map[string]interface{}{
			"fragments": len(fragments),
			"error":     err.Error(),
		})
		return strings.Join(fragments, "\n\n")
	}

	return story
}
