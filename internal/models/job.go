// internal/models/job.go
package models

import (
	"time"
)

// Job 表示对一个源视频的一次完整流水线运行
type Job struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`     // 上传的本地路径或远程URL
	VideoPath string    `json:"video_path"` // 解析后的本地视频文件
	OutputDir string    `json:"output_dir"` // 作业独占的输出目录
	CreatedAt time.Time `json:"created_at"`
}

// JobOptions 创建作业时调用方提供的可选项
type JobOptions struct {
	Persona         string  `json:"persona,omitempty"`          // 人设/角色提示，作用于整个作业
	Threshold       float64 `json:"threshold,omitempty"`        // 场景检测灵敏度，越低边界越多
	KeyframeCount   int     `json:"keyframe_count,omitempty"`   // 每个场景采样的关键帧数量
	WithNarration   bool    `json:"with_narration,omitempty"`   // 流水线内直接生成旁白音频
	TranscribeAudio bool    `json:"transcribe_audio,omitempty"` // 对每个场景的音频做转写
}

// JobResult 作业的持久化结果清单，写入后只读
type JobResult struct {
	JobID              string        `json:"job_id"`
	Source             string        `json:"source"`
	CreatedAt          time.Time     `json:"created_at"`
	CompletedAt        time.Time     `json:"completed_at"`
	ScenesDetected     int           `json:"scenes_detected"`
	AudioSegments      int           `json:"audio_segments"`
	KeyframesExtracted int           `json:"keyframes_extracted"`
	ScenesAnalyzed     int           `json:"scenes_analyzed"`
	Persona            string        `json:"persona,omitempty"`
	Scenes             []SceneRecord `json:"scenes"`
}

// SceneJob 发布到外部队列的单场景任务描述
type SceneJob struct {
	JobID       string    `json:"job_id"`
	SceneNumber int       `json:"scene_number"`
	Source      string    `json:"source"`
	AudioPath   string    `json:"audio_path,omitempty"`
	FramePaths  []string  `json:"frame_paths,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
