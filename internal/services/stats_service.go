// internal/services/stats_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// Stats 流水线的累计运行统计
type Stats struct {
	JobsStarted        int       `json:"jobs_started"`
	JobsCompleted      int       `json:"jobs_completed"`
	JobsFailed         int       `json:"jobs_failed"`
	ScenesDetected     int       `json:"scenes_detected"`
	ScenesAnalyzed     int       `json:"scenes_analyzed"`
	KeyframesExtracted int       `json:"keyframes_extracted"`
	NarrationsCreated  int       `json:"narrations_created"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StatsService 维护并持久化运行统计
type StatsService struct {
	Storage *storage.FileStorage
	stats   Stats
	mutex   sync.Mutex
	logger  *utils.Logger
}

// NewStatsService 创建统计服务，启动时尝试加载历史统计
func NewStatsService(fileStorage *storage.FileStorage) *StatsService {
	s := &StatsService{
		Storage: fileStorage,
		logger:  utils.GetLogger(),
	}

	var saved Stats
	if err := fileStorage.LoadJSONFile("", "stats.json", &saved); err == nil {
		s.stats = saved
	}

	return s
}

// GetStats 返回当前统计的副本
func (s *StatsService) GetStats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stats
}

// RecordJobStarted 记录一次作业启动
func (s *StatsService) RecordJobStarted() {
	s.update(func(st *Stats) { st.JobsStarted++ })
}

// RecordJobCompleted 记录一次作业完成及其产出
func (s *StatsService) RecordJobCompleted(scenesDetected, scenesAnalyzed, keyframes int) {
	s.update(func(st *Stats) {
		st.JobsCompleted++
		st.ScenesDetected += scenesDetected
		st.ScenesAnalyzed += scenesAnalyzed
		st.KeyframesExtracted += keyframes
	})
}

// RecordJobFailed 记录一次作业失败
func (s *StatsService) RecordJobFailed() {
	s.update(func(st *Stats) { st.JobsFailed++ })
}

// RecordNarrationCreated 记录一次旁白生成
func (s *StatsService) RecordNarrationCreated() {
	s.update(func(st *Stats) { st.NarrationsCreated++ })
}

// update 应用变更并持久化，持久化失败只记录日志
func (s *StatsService) update(apply func(*Stats)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	apply(&s.stats)
	s.stats.UpdatedAt = time.Now()

	if err := s.Storage.SaveJSONFile("", "stats.json", s.stats); err != nil {
		s.logger.Warn("保存统计数据失败", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
