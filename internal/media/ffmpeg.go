// internal/media/ffmpeg.go
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// MediaSampler 定义流水线消费的媒体采样能力
type MediaSampler interface {
	// Duration 探测媒体时长（秒）
	Duration(ctx context.Context, path string) (float64, error)

	// ClipAudio 截取 [start, end) 区间的音频，输出16kHz单声道wav
	ClipAudio(ctx context.Context, src string, start, end float64, dst string) error

	// ExtractFrame 在指定时间点采样一帧图像
	ExtractFrame(ctx context.Context, src string, timestamp float64, dst string) error
}

// FFmpeg 基于ffmpeg/ffprobe命令行的媒体采样实现
type FFmpeg struct {
	BinPath   string
	ProbePath string
}

// NewFFmpeg 创建ffmpeg采样器
func NewFFmpeg(binPath, probePath string) *FFmpeg {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if probePath == "" {
		probePath = "ffprobe"
	}
	return &FFmpeg{BinPath: binPath, ProbePath: probePath}
}

// run 执行ffmpeg命令，失败时在错误中带上stderr尾部
func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.BinPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", args[len(args)-1], err, tailLines(stderr.String(), 3))
	}
	return nil
}

// Duration 使用ffprobe探测媒体时长
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ProbePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("解析时长输出失败: %w", err)
	}
	return dur, nil
}

// ClipAudio 截取音频片段，降采样为适合语音转写的格式
func (f *FFmpeg) ClipAudio(ctx context.Context, src string, start, end float64, dst string) error {
	return f.run(ctx, "-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", src,
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "wav",
		dst,
	)
}

// ExtractFrame 在指定时间点采样单帧
func (f *FFmpeg) ExtractFrame(ctx context.Context, src string, timestamp float64, dst string) error {
	return f.run(ctx, "-y",
		"-ss", formatSeconds(timestamp),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		dst,
	)
}

// formatSeconds 毫秒精度的秒数表示
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " / ")
}
