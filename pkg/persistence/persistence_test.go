package persistence

import (
	"errors"
	"testing"
)

type sessionStats struct {
	Symbol      string  `json:"symbol"`
	TotalCycles int     `json:"totalCycles"`
	Profit      float64 `json:"profit"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("stats", "SHIBUSDT", "20260102-120000")

	in := sessionStats{Symbol: "SHIBUSDT", TotalCycles: 3, Profit: 1.375}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out sessionStats
	if err := store.Load(&out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip got=%+v want=%+v", out, in)
	}
}

func TestLoadNotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("stats", "SHIBUSDT", "missing")

	var out sessionStats
	if err := store.Load(&out); !errors.Is(err, ErrNotExists) {
		t.Fatalf("err got=%v want=ErrNotExists", err)
	}
}

// key 中的非法字符不应逃出存储目录
func TestKeySanitized(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("stats", "../../etc", "x/y")

	if err := store.Save(sessionStats{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out sessionStats
	if err := store.Load(&out); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
