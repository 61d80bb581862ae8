package store

import "encoding/json"

// MemoryStore 内存实现，测试与 dry-run 用
type MemoryStore struct {
	states map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Load() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(s.states))
	for k, v := range s.states {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

func (s *MemoryStore) Save(states map[string]json.RawMessage) error {
	next := make(map[string]json.RawMessage, len(states))
	for k, v := range states {
		next[k] = append(json.RawMessage(nil), v...)
	}
	s.states = next
	return nil
}
