// internal/ai/jsonclean_test.go
package ai

import (
	"encoding/json"
	"testing"
)

func TestCleanJSONResponseMarkdownFence(t *testing.T) {
	raw := "```json\n{\"story_part\": \"他走进了森林\"}\n```"

	cleaned := CleanJSONResponse(raw)

	var result map[string]string
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		t.Fatalf("清理后的内容应该是合法JSON: %v", err)
	}
	if result["story_part"] != "他走进了森林" {
		t.Errorf("内容不正确: %v", result)
	}
}

func TestCleanJSONResponseLeadingText(t *testing.T) {
	raw := "好的，这是场景解读结果：\n{\"description\": \"夜晚的街道\"}"

	cleaned := CleanJSONResponse(raw)
	if cleaned != `{"description": "夜晚的街道"}` {
		t.Errorf("JSON之前的文本应该被丢弃: %q", cleaned)
	}
}

func TestCleanJSONResponseTrailingText(t *testing.T) {
	raw := `{"mood": "紧张"} 希望这个结果对你有帮助！`

	cleaned := CleanJSONResponse(raw)
	if cleaned != `{"mood": "紧张"}` {
		t.Errorf("JSON之后的文本应该被截断: %q", cleaned)
	}
}

func TestCleanJSONResponseNestedBraces(t *testing.T) {
	raw := `{"outer": {"inner": "值"}, "list": [1, 2]} trailing`

	cleaned := CleanJSONResponse(raw)

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		t.Fatalf("嵌套结构应该完整保留: %v", err)
	}
}

func TestCleanJSONResponseBracesInString(t *testing.T) {
	raw := `{"text": "包含}括号{的字符串"} extra`

	cleaned := CleanJSONResponse(raw)

	var result map[string]string
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		t.Fatalf("字符串内的括号不应该影响匹配: %v", err)
	}
	if result["text"] != "包含}括号{的字符串" {
		t.Errorf("字符串内容被破坏: %v", result)
	}
}

func TestCleanJSONResponseArray(t *testing.T) {
	raw := "```json\n[{\"a\": 1}, {\"b\": 2}]\n```"

	cleaned := CleanJSONResponse(raw)

	var result []map[string]int
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		t.Fatalf("数组应该被正确清理: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("数组元素数量不正确: %d", len(result))
	}
}

func TestCleanJSONResponseInvisibleChars(t *testing.T) {
	raw := "\ufeff{\"key\": \"val\u200bue\"}"

	cleaned := CleanJSONResponse(raw)

	var result map[string]string
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		t.Fatalf("不可见字符应该被移除: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("零宽字符应该被剥离: %q", result["key"])
	}
}

func TestCleanJSONResponseNoJSON(t *testing.T) {
	raw := "这只是一段普通的叙述文本，没有任何结构化内容。"

	cleaned := CleanJSONResponse(raw)
	if cleaned != raw {
		t.Errorf("没有JSON标记的文本应该原样返回: %q", cleaned)
	}
}

func TestCleanJSONResponseEmpty(t *testing.T) {
	if got := CleanJSONResponse(""); got != "" {
		t.Errorf("空输入应该返回空: %q", got)
	}
}

func TestCleanJSONResponseUnbalanced(t *testing.T) {
	raw := `{"incomplete": "缺少结束括号"`

	cleaned := CleanJSONResponse(raw)
	// 无法匹配时回退为原内容，调用方自行兜底
	if cleaned == "" {
		t.Error("不完整的JSON不应该被清空")
	}
}
