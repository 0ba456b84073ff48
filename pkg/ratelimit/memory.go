package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内メモリをバックエンドとするカウンタストア。
// Redisが構成されていない開発環境およびテストで使用する。
// 複数プロセス間でカウンタは共有されない。
type MemoryStore struct {
	// mu はcountersを保護するミューテックス。
	mu sync.Mutex
	// counters はキーごとのカウンタエントリ。
	counters map[string]*memoryEntry
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// memoryEntry は1キー分のカウンタとウィンドウ期限を保持する。
type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore はインメモリカウンタストアを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

// Increment はカウンタをインクリメントし、インクリメント後の値を返す。
// ウィンドウ期限が過ぎたエントリは新しいウィンドウとして初期化される。
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.counters[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: now.Add(window)}
		s.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}
