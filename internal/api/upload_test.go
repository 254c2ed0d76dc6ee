// internal/api/upload_test.go
package api

import (
	"strings"
	"testing"

	"github.com/Corphon/VideoNarratorMCP/internal/storage"
)

func TestUploadDestinationUnderDataDir(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	path, err := uploadDestination(fs, ".mp4")
	if err != nil {
		t.Fatalf("解析上传路径失败: %v", err)
	}

	if !strings.HasPrefix(path, fs.BaseDir) {
		t.Errorf("上传文件应该落在数据目录内: %q", path)
	}
	if !strings.HasSuffix(path, ".mp4") {
		t.Errorf("上传路径应该保留扩展名: %q", path)
	}
	if !fs.DirExists("temp") {
		t.Error("上传临时目录应该已创建")
	}
}
