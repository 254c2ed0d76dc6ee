// internal/services/queue_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v7"

	"github.com/Corphon/VideoNarratorMCP/internal/models"
	"github.com/Corphon/VideoNarratorMCP/internal/storage"
	"github.com/Corphon/VideoNarratorMCP/internal/utils"
)

// QueueSink 单场景任务的发布目标
type QueueSink interface {
	// Publish 发布一条场景任务
	Publish(ctx context.Context, job models.SceneJob) error

	// Name 发布目标的标识，用于发布记录
	Name() string
}

// RedisQueueSink 把场景任务推入Redis列表
type RedisQueueSink struct {
	client *redis.Client
	queue  string
}

// NewRedisQueueSink 连接Redis并创建发布目标
// 连接不可用时返回错误，调用方应回退到本地日志
func NewRedisQueueSink(addr, queue string) (*RedisQueueSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败 %s: %w", addr, err)
	}

	return &RedisQueueSink{
		client: client,
		queue:  queue,
	}, nil
}

// Publish 序列化任务并RPUSH到队列
func (s *RedisQueueSink) Publish(ctx context.Context, job models.SceneJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化场景任务失败: %w", err)
	}
	return s.client.RPush(s.queue, data).Err()
}

// Name 返回发布目标标识
func (s *RedisQueueSink) Name() string {
	return "redis:" + s.queue
}

// Close 关闭Redis连接
func (s *RedisQueueSink) Close() error {
	return s.client.Close()
}

// LocalLogSink 本地日志回退：把场景任务按行追加到文件
type LocalLogSink struct {
	storage  *storage.FileStorage
	dirPath  string
	filename string
}

// NewLocalLogSink 创建本地日志发布目标
func NewLocalLogSink(fileStorage *storage.FileStorage, dirPath string) *LocalLogSink {
	return &LocalLogSink{
		storage:  fileStorage,
		dirPath:  dirPath,
		filename: "scene_queue.log",
	}
}

// Publish 把任务以JSON行的形式追加到本地文件
func (s *LocalLogSink) Publish(ctx context.Context, job models.SceneJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化场景任务失败: %w", err)
	}
	return s.storage.AppendFile(s.dirPath, s.filename, append(data, '\n'))
}

// Name 返回发布目标标识
func (s *LocalLogSink) Name() string {
	return "local:" + s.filename
}

// PublishRecord 单条场景任务的发布结果
type PublishRecord struct {
	SceneNumber int    `json:"scene_number"`
	Sink        string `json:"sink"`
	Error       string `json:"error,omitempty"`
}

// QueueService 负责把场景任务发布到下游队列
// 发布失败从不中断流水线，失败原因记录在发布结果中
type QueueService struct {
	Primary  QueueSink // 可为nil，表示未配置外部队列
	Fallback QueueSink
	logger   *utils.Logger
}

// NewQueueService 创建队列发布服务
func NewQueueService(primary, fallback QueueSink) *QueueService {
	return &QueueService{
		Primary:  primary,
		Fallback: fallback,
		logger:   utils.GetLogger(),
	}
}

// PublishSceneJobs 逐条发布场景任务
// 主发布目标失败时尝试回退目标，两者都失败只记录错误
func (s *QueueService) PublishSceneJobs(ctx context.Context, jobs []models.SceneJob) []PublishRecord {
	records := make([]PublishRecord, 0, len(jobs))

	for _, job := range jobs {
		record := PublishRecord{SceneNumber: job.SceneNumber}

		if s.Primary != nil {
			if err := s.Primary.Publish(ctx, job); err == nil {
				record.Sink = s.Primary.Name()
				records = append(records, record)
				continue
			} else {
				s.logger.Warn("主队列发布失败，回退到本地日志", map[string]interface{}{
					"scene": job.SceneNumber,
					"error": err.Error(),
				})
			}
		}

		if s.Fallback != nil {
			if err := s.Fallback.Publish(ctx, job); err == nil {
				record.Sink = s.Fallback.Name()
				records = append(records, record)
				continue
			} else {
				record.Error = err.Error()
				s.logger.Error("场景任务发布失败", map[string]interface{}{
					"scene": job.SceneNumber,
					"error": err.Error(),
				})
			}
		} else if record.Error == "" {
			record.Error = "没有可用的发布目标"
		}

		records = append(records, record)
	}

	return records
}
