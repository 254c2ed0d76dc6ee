// internal/services/narration_service_test.go
package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestSplitTextForSpeechShortText(t *testing.T) {
	chunks := SplitTextForSpeech("一句很短的话。", 100)
	if len(chunks) != 1 || chunks[0] != "一句很短的话。" {
		t.Errorf("短文本应该原样返回: %v", chunks)
	}
}

func TestSplitTextForSpeechRespectsLimit(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString(fmt.Sprintf("这是第%d句话。", i))
	}
	text := sb.String()

	max := 40
	chunks := SplitTextForSpeech(text, max)
	if len(chunks) < 2 {
		t.Fatalf("长文本应该被切分为多个片段，实际: %d", len(chunks))
	}

	for i, chunk := range chunks {
		if len([]rune(chunk)) > max {
			t.Errorf("片段%d超出字符上限: %d", i, len([]rune(chunk)))
		}
	}

	// 拼接后应该保留全部内容
	if strings.Join(chunks, "") != text {
		t.Error("切分不应该丢失或改变内容")
	}
}

func TestSplitTextForSpeechPrefersSentenceBoundary(t *testing.T) {
	text := "第一句话。第二句话。第三句话。"
	chunks := SplitTextForSpeech(text, 7)

	for i, chunk := range chunks {
		if !strings.HasSuffix(chunk, "。") {
			t.Errorf("片段%d应该在句子边界结束: %q", i, chunk)
		}
	}
}

func TestSplitTextForSpeechHardSplit(t *testing.T) {
	// 完全没有句子边界的超长文本
	text := strings.Repeat("字", 25)
	chunks := SplitTextForSpeech(text, 10)

	if len(chunks) != 3 {
		t.Fatalf("25个字符按10切分应该产出3个片段，实际: %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len([]rune(chunk)) > 10 {
			t.Errorf("硬切片段%d超出上限: %d", i, len([]rune(chunk)))
		}
	}
}

func TestSplitTextForSpeechEmpty(t *testing.T) {
	if chunks := SplitTextForSpeech("   ", 10); chunks != nil {
		t.Errorf("空白文本不应该产出片段: %v", chunks)
	}
}

func TestGenerateNarrationSynthesizesAllChunks(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	service := NewNarrationService(synthesizer, newTestStorage(t), 10)

	text := "第一句话。第二句话。第三句话。"
	path, err := service.GenerateNarration(context.Background(), text, "job-1", "narration.mp3")
	if err != nil {
		t.Fatalf("旁白生成失败: %v", err)
	}
	if path == "" {
		t.Fatal("应该返回音频文件路径")
	}

	expectedChunks := len(SplitTextForSpeech(text, 10))
	if synthesizer.callCount() != expectedChunks {
		t.Errorf("应该合成全部%d个片段，实际调用: %d", expectedChunks, synthesizer.callCount())
	}
}

func TestGenerateWholeNarrationSingleCall(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	service := NewNarrationService(synthesizer, newTestStorage(t), 10)

	// 远超切分上限的文本也必须一次合成
	text := "第一句话。第二句话。第三句话。第四句话。"
	if _, err := service.GenerateWholeNarration(context.Background(), text, "job-1", "story_narration.mp3"); err != nil {
		t.Fatalf("整体旁白生成失败: %v", err)
	}

	if synthesizer.callCount() != 1 {
		t.Errorf("整体旁白应该只调用一次合成接口，实际: %d", synthesizer.callCount())
	}
}

func TestGenerateNarrationIdempotent(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	fs := newTestStorage(t)
	service := NewNarrationService(synthesizer, fs, 100)

	text := "完整的故事文本。"
	path1, err := service.GenerateNarration(context.Background(), text, "job-1", "narration.mp3")
	if err != nil {
		t.Fatalf("第一次生成失败: %v", err)
	}
	callsAfterFirst := synthesizer.callCount()

	path2, err := service.GenerateNarration(context.Background(), text, "job-1", "narration.mp3")
	if err != nil {
		t.Fatalf("第二次生成失败: %v", err)
	}

	if path1 != path2 {
		t.Errorf("重复请求应该返回相同路径: %q vs %q", path1, path2)
	}
	if synthesizer.callCount() != callsAfterFirst {
		t.Error("命中缓存时不应该再调用合成接口")
	}
}

func TestGenerateNarrationEmptyText(t *testing.T) {
	service := NewNarrationService(&fakeSynthesizer{}, newTestStorage(t), 100)

	if _, err := service.GenerateNarration(context.Background(), "  ", "job-1", "narration.mp3"); err == nil {
		t.Fatal("空文本应该返回错误")
	}
}

func TestGenerateNarrationSynthesizerFailure(t *testing.T) {
	synthesizer := &fakeSynthesizer{err: fmt.Errorf("模拟合成故障")}
	fs := newTestStorage(t)
	service := NewNarrationService(synthesizer, fs, 100)

	if _, err := service.GenerateNarration(context.Background(), "文本。", "job-1", "narration.mp3"); err == nil {
		t.Fatal("合成失败应该返回错误")
	}

	// 失败时不应该留下半成品文件
	if fs.FileExists("job-1", "narration.mp3") {
		t.Error("合成失败不应该写入音频文件")
	}
}
