package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemoryStore()

	in := map[string]json.RawMessage{
		"BTCUSDT": json.RawMessage(`{"entry_price":100}`),
		"ETHUSDT": json.RawMessage(`{"entry_price":2000}`),
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 states, got %d", len(out))
	}
	if string(out["BTCUSDT"]) != `{"entry_price":100}` {
		t.Errorf("unexpected payload: %s", out["BTCUSDT"])
	}

	// 返回值应是副本：改写它不能污染库里的数据
	out["BTCUSDT"][0] = 'X'
	again, _ := s.Load()
	if string(again["BTCUSDT"]) != `{"entry_price":100}` {
		t.Error("Load must return an independent copy")
	}
}

func TestMemoryStoreSaveReplaces(t *testing.T) {
	s := NewMemoryStore()

	_ = s.Save(map[string]json.RawMessage{"BTCUSDT": json.RawMessage(`{}`)})
	_ = s.Save(map[string]json.RawMessage{"ETHUSDT": json.RawMessage(`{}`)})

	out, _ := s.Load()
	if _, ok := out["BTCUSDT"]; ok {
		t.Error("Save must replace the whole document, stale keys should vanish")
	}
	if _, ok := out["ETHUSDT"]; !ok {
		t.Error("new key missing after Save")
	}
}

func TestSQLiteStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	in := map[string]json.RawMessage{
		"BTCUSDT": json.RawMessage(`{"direction":"short","trail_active":true}`),
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(out["BTCUSDT"]) != string(in["BTCUSDT"]) {
		t.Errorf("payload mismatch: %s", out["BTCUSDT"])
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.Save(map[string]json.RawMessage{"SOLUSDT": json.RawMessage(`{"entry_price":150}`)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	out, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if string(out["SOLUSDT"]) != `{"entry_price":150}` {
		t.Errorf("state lost across reopen: %v", out)
	}
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	_ = s.Save(map[string]json.RawMessage{"BTCUSDT": json.RawMessage(`{}`)})
	_ = s.Save(map[string]json.RawMessage{"ETHUSDT": json.RawMessage(`{}`)})

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 state after replace, got %d", len(out))
	}
	if _, ok := out["ETHUSDT"]; !ok {
		t.Error("expected ETHUSDT to be the surviving state")
	}
}
