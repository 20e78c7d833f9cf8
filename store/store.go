package store

import (
	"context"
	"encoding/json"
)

// Store 是一个小型文档存储：一组 JSON 值按键存取。
// 搜索缓存、元数据缓存、收藏夹和歌单各自持有一个实例，
// 写锁按实例隔离，不会形成跨存储的全局瓶颈。
type Store interface {
	// Get 读取 key 对应的值并解码到 dest。键不存在时返回 (false, nil)。
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Put 写入或覆盖 key 对应的值。
	Put(ctx context.Context, key string, value interface{}) error
	// Delete 删除 key。键不存在时不视为错误。
	Delete(ctx context.Context, key string) error
	// All 返回存储中的全部键值。
	All(ctx context.Context) (map[string]json.RawMessage, error)
}
