// internal/media/ytdlp.go
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// VideoFetcher 远程视频获取能力
type VideoFetcher interface {
	// Fetch 将远程视频下载到destDir，返回本地文件路径
	Fetch(ctx context.Context, url, destDir string) (string, error)
}

// YtdlpClient 基于yt-dlp命令行的远程视频获取实现
type YtdlpClient struct {
	BinPath string
}

// NewYtdlpClient 创建yt-dlp客户端
func NewYtdlpClient(binPath string) *YtdlpClient {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YtdlpClient{BinPath: binPath}
}

// CheckDependency 检查yt-dlp是否可用
func (c *YtdlpClient) CheckDependency() error {
	if _, err := exec.LookPath(c.BinPath); err != nil {
		return fmt.Errorf("未找到yt-dlp，远程视频获取不可用: %w", err)
	}
	return nil
}

// Fetch 下载远程视频，偏好单文件mp4以避免合流依赖
func (c *YtdlpClient) Fetch(ctx context.Context, url, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("创建下载目录失败: %w", err)
	}

	outTemplate := filepath.Join(destDir, "source.%(ext)s")
	cmd := exec.CommandContext(ctx, c.BinPath,
		"--no-playlist",
		"-f", "best[ext=mp4]/best",
		"-o", outTemplate,
		"--no-progress",
		url,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp下载失败: %w: %s", err, tailLines(stderr.String(), 3))
	}

	// 按输出模板查找实际落盘的文件
	matches, err := filepath.Glob(filepath.Join(destDir, "source.*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("下载完成但未找到输出文件")
	}

	// 排除yt-dlp的中间文件
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") && !strings.HasSuffix(m, ".ytdl") {
			return m, nil
		}
	}

	return "", fmt.Errorf("下载完成但只找到中间文件")
}
