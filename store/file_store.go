package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore 把整个存储保存为磁盘上的单个 JSON 文档。
// 写入走 加锁 -> 读全文 -> 修改 -> 写临时文件 -> 原子改名 的流程，
// 读取不加锁：改名对并发读者是原子的，读者看到的要么是旧文档要么是新文档。
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore 创建以 path 为底的文件存储，文件不存在时写入空文档。
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	s := &FileStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(map[string]json.RawMessage{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load 读取整个文档。文件缺失或内容损坏时返回空文档，与初始状态等价。
func (s *FileStore) load() map[string]json.RawMessage {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]json.RawMessage{}
	}
	return doc
}

// write 将文档写入临时文件后改名替换，保证读者不会看到半成品。
func (s *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化存储文档失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换存储文件失败: %w", err)
	}
	return nil
}

// Get 读取并解码一个键，不加锁。
func (s *FileStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := s.load()[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("解码存储值失败 (key: %s): %w", key, err)
	}
	return true, nil
}

// Put 写入一个键，整个读改写周期持有存储锁。
func (s *FileStore) Put(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("编码存储值失败 (key: %s): %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc[key] = raw
	return s.write(doc)
}

// Delete 删除一个键，整个读改写周期持有存储锁。
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.write(doc)
}

// All 返回整个文档的副本，不加锁。
func (s *FileStore) All(ctx context.Context) (map[string]json.RawMessage, error) {
	return s.load(), nil
}
