// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"
)

// 流水线阶段常量，进度事件按这些阶段发布
const (
	StageAcquisition        = "acquisition"         // 远程视频下载
	StageValidation         = "validation"          // 输入校验
	StageInit               = "init"                // 作业目录与清单初始化
	StageSceneSegmentation  = "scene-segmentation"  // 场景边界检测
	StageAudioExtraction    = "audio-extraction"    // 场景音频截取
	StageKeyframeExtraction = "keyframe-extraction" // 关键帧采样
	StagePersonaSave        = "persona-save"        // 人设持久化
	StageNarrativeSynthesis = "narrative-synthesis" // 逐场景叙事合成
	StageComplete           = "complete"            // 终态：成功
	StageError              = "error"               // 终态：失败
)

// 事件状态常量
const (
	StatusStarted    = "started"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// ProgressEvent 表示流水线的一次进度事件
type ProgressEvent struct {
	Stage   string            `json:"stage"`             // 阶段标识
	Status  string            `json:"status"`            // started, processing, completed
	Message string            `json:"message"`           // 描述性消息
	Details map[string]string `json:"details,omitempty"` // 可选的阶段附加数据
}

// ProgressTracker 跟踪一个作业的流水线进度
// 新订阅者会先收到历史事件的回放，再接收后续事件
type ProgressTracker struct {
	JobID       string
	StartTime   time.Time
	UpdateTime  time.Time
	Events      []ProgressEvent             // 已发布事件的历史
	Subscribers map[chan ProgressEvent]bool // 订阅进度事件的通道
	Done        chan struct{}               // 终态信号
	terminal    bool                        // 是否已发布终态事件
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker 创建新的进度跟踪器
func (s *ProgressService) CreateTracker(jobID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// 如果已存在，返回现有追踪器
	if tracker, exists := s.trackers[jobID]; exists {
		return tracker
	}

	tracker := &ProgressTracker{
		JobID:       jobID,
		StartTime:   time.Now(),
		UpdateTime:  time.Now(),
		Subscribers: make(map[chan ProgressEvent]bool),
		Done:        make(chan struct{}),
	}

	s.trackers[jobID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(jobID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[jobID]
	return tracker, exists
}

// Publish 发布一个进度事件
// 终态事件之后的发布会被静默忽略
func (t *ProgressTracker) Publish(stage, status, message string, details map[string]string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.terminal {
		return
	}

	event := ProgressEvent{
		Stage:   stage,
		Status:  status,
		Message: message,
		Details: details,
	}
	t.Events = append(t.Events, event)
	t.UpdateTime = time.Now()

	t.broadcastLocked(event)
}

// Complete 发布终态成功事件并关闭Done通道
func (t *ProgressTracker) Complete(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.terminal {
		return
	}
	t.terminal = true

	if message == "" {
		message = "流水线已完成"
	}
	event := ProgressEvent{
		Stage:   StageComplete,
		Status:  StatusCompleted,
		Message: message,
	}
	t.Events = append(t.Events, event)
	t.UpdateTime = time.Now()

	t.broadcastLocked(event)
	close(t.Done)
}

// Fail 发布终态失败事件并关闭Done通道
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.terminal {
		return
	}
	t.terminal = true

	event := ProgressEvent{
		Stage:   StageError,
		Status:  StatusCompleted,
		Message: fmt.Sprintf("流水线失败: %s", errorMsg),
	}
	t.Events = append(t.Events, event)
	t.UpdateTime = time.Now()

	t.broadcastLocked(event)
	close(t.Done)
}

// broadcastLocked 向所有订阅者非阻塞发送事件，调用方需持锁
func (t *ProgressTracker) broadcastLocked(event ProgressEvent) {
	for subscriber := range t.Subscribers {
		// 非阻塞发送，如果通道已满则跳过
		select {
		case subscriber <- event:
		default:
		}
	}
}

// IsTerminal 是否已发布终态事件
func (t *ProgressTracker) IsTerminal() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.terminal
}

// Subscribe 订阅进度事件
// 返回的通道会先收到历史事件回放
func (t *ProgressTracker) Subscribe() chan ProgressEvent {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	// 缓冲区需要容纳历史回放加上后续事件
	subscriber := make(chan ProgressEvent, len(t.Events)+32)
	t.Subscribers[subscriber] = true

	for _, event := range t.Events {
		subscriber <- event
	}

	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressEvent) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.Subscribers[subscriber]; exists {
		delete(t.Subscribers, subscriber)
		close(subscriber)
	}
}

// CleanupCompletedTrackers 清理已到终态且长时间未更新的跟踪器
func (s *ProgressService) CleanupCompletedTrackers(maxAge time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		isTerminal := tracker.terminal
		isOld := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if isTerminal && isOld {
			delete(s.trackers, id)
		}
	}
}
