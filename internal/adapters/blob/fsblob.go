package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sink 是报告/导出产物的文件系统落盘器。
//
// 产物是一次写入、永不覆盖的：key 已存在时 Put 直接报错，
// 调用方必须换 key 重新生成，保证已签发报告的字节不可变。
type Sink struct {
	root string
}

// NewSink 创建落盘器并确保根目录存在。
func NewSink(root string) (*Sink, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("blob root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Sink{root: root}, nil
}

// resolve 将 key 映射到根目录下的路径，拒绝逃逸根目录的 key。
func (s *Sink) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is empty")
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blob key escapes root: %s", key)
	}
	return path, nil
}

// Put 写入产物。先写临时文件再原子改名，避免半成品被读到。
func (s *Sink) Put(key string, r io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close blob %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize blob %s: %w", key, err)
	}
	return nil
}

// Open 以只读流打开产物。
func (s *Sink) Open(key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return f, nil
}

// Path 返回产物的绝对路径（CLI 输出提示用）。
func (s *Sink) Path(key string) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	return filepath.Abs(path)
}
