// Package store 提供持仓状态的整文档持久化契约。
// 核心算法不关心持久化介质：启动时 Load 一次，每轮结束 Save 一次。
package store

import "encoding/json"

// Store persists the full position-state document keyed by symbol.
// Both operations are whole-document: no partial updates.
type Store interface {
	Load() (map[string]json.RawMessage, error)
	Save(states map[string]json.RawMessage) error
}
