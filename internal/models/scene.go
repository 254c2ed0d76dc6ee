// internal/models/scene.go
package models

// Scene 表示视频中的一个连续时间段，作为一个叙事单元
type Scene struct {
	Number    int     `json:"scene_number"` // 从1开始的场景编号
	StartTime float64 `json:"start_time"`   // 起始时间（秒）
	EndTime   float64 `json:"end_time"`     // 结束时间（秒）
	Duration  float64 `json:"duration"`     // 时长（秒），毫秒精度
}

// Keyframe 场景内某个时间点采样的静态图像
type Keyframe struct {
	Index     int     `json:"index"` // 场景内从1开始的连续编号
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"path"`
}

// AudioSegment 按场景切分的音频片段
type AudioSegment struct {
	SceneNumber int     `json:"scene_number"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Duration    float64 `json:"duration"`
	Path        string  `json:"path"`
}

// SceneKeyframes 一个场景的全部关键帧
type SceneKeyframes struct {
	SceneNumber int        `json:"scene_number"`
	Keyframes   []Keyframe `json:"keyframes"`
}

// SceneAnalysis 单个场景的叙事解读结果
// 解读失败的场景只携带Error标记，不产生故事片段
type SceneAnalysis struct {
	SceneNumber    int      `json:"scene_number"`
	StartTime      float64  `json:"start_time"`
	EndTime        float64  `json:"end_time"`
	Description    string   `json:"description,omitempty"`
	VisualElements []string `json:"visual_elements,omitempty"`
	Mood           string   `json:"mood,omitempty"`
	Transcript     string   `json:"transcript,omitempty"`
	Dialogue       string   `json:"dialogue,omitempty"`
	StoryPart      string   `json:"story_part,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// HasStoryPart 场景是否产出了可用的故事片段
func (a *SceneAnalysis) HasStoryPart() bool {
	return a.Error == "" && a.StoryPart != ""
}

// SceneRecord 场景及其媒体与叙事数据的聚合记录，写入结果清单
type SceneRecord struct {
	Scene     Scene          `json:"scene"`
	AudioPath string         `json:"audio_path,omitempty"`
	Keyframes []Keyframe     `json:"keyframes,omitempty"`
	Analysis  *SceneAnalysis `json:"analysis,omitempty"`
}
