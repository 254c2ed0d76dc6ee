// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	JobsDir   string `json:"jobs_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 外部工具
	FFmpegPath      string `json:"ffmpeg_path"`
	FFprobePath     string `json:"ffprobe_path"`
	SceneDetectPath string `json:"scenedetect_path"`
	YtdlpPath       string `json:"ytdlp_path"`

	// 流水线参数
	SceneThreshold    float64 `json:"scene_threshold"`     // 越低检出的场景边界越多
	KeyframesPerScene int     `json:"keyframes_per_scene"`
	NarrationChunkMax int     `json:"narration_chunk_max"` // 单次语音合成的最大字符数

	// AI相关配置
	AIConfig map[string]string `json:"ai_config"`

	// 队列配置（可选，为空则使用本地日志回退）
	RedisAddr  string `json:"redis_addr"`
	SceneQueue string `json:"scene_queue"`
}

// Config 存储从环境变量加载的基础配置
type Config struct {
	Port            string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DataDir         string
	LogDir          string
	DebugMode       bool
	FFmpegPath      string
	FFprobePath     string
	SceneDetectPath string
	YtdlpPath       string
	RedisAddr       string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:            getEnv("PORT", "8080"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DataDir:         getEnvPath("DATA_DIR", "data"),
		LogDir:          getEnvPath("LOG_DIR", "logs"),
		DebugMode:       getEnvBool("DEBUG_MODE", true),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),
		SceneDetectPath: getEnv("SCENEDETECT_PATH", "scenedetect"),
		YtdlpPath:       getEnv("YTDLP_PATH", "yt-dlp"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
	}

	if config.OpenAIAPIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置OpenAI API密钥，场景解读与语音合成功能将不可用")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvFloat 获取浮点类型环境变量
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getEnvInt 获取整型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:              baseConfig.Port,
		DataDir:           baseConfig.DataDir,
		JobsDir:           filepath.Join(baseConfig.DataDir, "jobs"),
		LogDir:            baseConfig.LogDir,
		DebugMode:         baseConfig.DebugMode,
		FFmpegPath:        baseConfig.FFmpegPath,
		FFprobePath:       baseConfig.FFprobePath,
		SceneDetectPath:   baseConfig.SceneDetectPath,
		YtdlpPath:         baseConfig.YtdlpPath,
		SceneThreshold:    getEnvFloat("SCENE_THRESHOLD", 27.0),
		KeyframesPerScene: getEnvInt("KEYFRAMES_PER_SCENE", 3),
		NarrationChunkMax: getEnvInt("NARRATION_CHUNK_MAX", 4096),
		RedisAddr:         baseConfig.RedisAddr,
		SceneQueue:        getEnv("SCENE_QUEUE", "scene_jobs"),
		AIConfig: map[string]string{
			"api_key":      baseConfig.OpenAIAPIKey,
			"base_url":     baseConfig.OpenAIBaseURL,
			"vision_model": "gpt-4o",
			"asr_model":    "whisper-1",
			"tts_model":    "tts-1",
			"tts_voice":    "alloy",
		},
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的流水线和AI设置，基础配置以环境变量为准
				savedConfig.Port = currentConfig.Port
				savedConfig.DataDir = currentConfig.DataDir
				savedConfig.JobsDir = currentConfig.JobsDir
				savedConfig.LogDir = currentConfig.LogDir
				savedConfig.DebugMode = currentConfig.DebugMode

				// 如果文件中没有API密钥，使用环境变量的密钥
				if savedConfig.AIConfig != nil && savedConfig.AIConfig["api_key"] == "" {
					savedConfig.AIConfig["api_key"] = baseConfig.OpenAIAPIKey
				}
				if savedConfig.SceneThreshold <= 0 {
					savedConfig.SceneThreshold = currentConfig.SceneThreshold
				}
				if savedConfig.KeyframesPerScene <= 0 {
					savedConfig.KeyframesPerScene = currentConfig.KeyframesPerScene
				}
				if savedConfig.NarrationChunkMax <= 0 {
					savedConfig.NarrationChunkMax = currentConfig.NarrationChunkMax
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return SaveConfig()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:              baseConfig.Port,
			DataDir:           baseConfig.DataDir,
			JobsDir:           filepath.Join(baseConfig.DataDir, "jobs"),
			LogDir:            baseConfig.LogDir,
			DebugMode:         baseConfig.DebugMode,
			FFmpegPath:        baseConfig.FFmpegPath,
			FFprobePath:       baseConfig.FFprobePath,
			SceneDetectPath:   baseConfig.SceneDetectPath,
			YtdlpPath:         baseConfig.YtdlpPath,
			SceneThreshold:    27.0,
			KeyframesPerScene: 3,
			NarrationChunkMax: 4096,
			AIConfig: map[string]string{
				"api_key": baseConfig.OpenAIAPIKey,
			},
		}
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateAIConfig 更新AI配置
func UpdateAIConfig(aiConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.AIConfig = aiConfig

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
