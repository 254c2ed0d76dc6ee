// internal/media/scenedetect.go
package media

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Corphon/VideoNarratorMCP/internal/models"
)

// BoundaryDetector 场景边界检测器
// 返回按时间排序的场景列表；检测不到任何边界时返回空列表而不是错误
type BoundaryDetector interface {
	DetectScenes(ctx context.Context, videoPath string, threshold float64) ([]models.Scene, error)
}

// SceneDetectCLI 基于PySceneDetect命令行工具的边界检测实现
type SceneDetectCLI struct {
	BinPath string
}

// NewSceneDetectCLI 创建检测器
func NewSceneDetectCLI(binPath string) *SceneDetectCLI {
	if binPath == "" {
		binPath = "scenedetect"
	}
	return &SceneDetectCLI{BinPath: binPath}
}

// DetectScenes 调用scenedetect生成场景CSV并解析
// threshold越低，内容变化判定越敏感，检出的边界越多
func (d *SceneDetectCLI) DetectScenes(ctx context.Context, videoPath string, threshold float64) ([]models.Scene, error) {
	outDir, err := os.MkdirTemp("", "scenedetect_*")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, d.BinPath,
		"--quiet",
		"-i", videoPath,
		"-o", outDir,
		"detect-content",
		"-t", strconv.FormatFloat(threshold, 'f', 1, 64),
		"list-scenes",
		"-f", "scenes.csv",
		"-s", // 跳过CSV头部的切点时间码行
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("scenedetect执行失败: %w: %s", err, tailLines(stderr.String(), 3))
	}

	data, err := os.ReadFile(filepath.Join(outDir, "scenes.csv"))
	if err != nil {
		// 工具正常退出但没有产出CSV，视为未检出任何边界
		return nil, nil
	}

	return ParseSceneCSV(data)
}

// ParseSceneCSV 解析PySceneDetect的场景列表CSV
// 期望的列：Scene Number, ..., Start Time (seconds), ..., End Time (seconds)
func ParseSceneCSV(data []byte) ([]models.Scene, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析场景CSV失败: %w", err)
	}

	// 定位表头行
	headerIdx := -1
	numberCol, startCol, endCol := -1, -1, -1
	for i, row := range records {
		for j, col := range row {
			switch strings.TrimSpace(col) {
			case "Scene Number":
				headerIdx = i
				numberCol = j
			case "Start Time (seconds)":
				startCol = j
			case "End Time (seconds)":
				endCol = j
			}
		}
		if headerIdx >= 0 {
			break
		}
	}
	if headerIdx < 0 || numberCol < 0 || startCol < 0 || endCol < 0 {
		return nil, fmt.Errorf("场景CSV缺少预期的表头列")
	}

	var scenes []models.Scene
	for _, row := range records[headerIdx+1:] {
		if len(row) <= endCol {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSpace(row[numberCol]))
		if err != nil {
			continue
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(row[startCol]), 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(row[endCol]), 64)
		if err != nil {
			continue
		}

		scenes = append(scenes, models.Scene{
			Number:    number,
			StartTime: start,
			EndTime:   end,
			Duration:  end - start,
		})
	}

	return scenes, nil
}
