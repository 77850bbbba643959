// Package chat はアパート単位のリアルタイムメッセージ配信基盤を提供する。
// グループレジストリ・WebSocketセッション・接続ゲートウェイで構成される。
package chat

import (
	"sync"

	"github.com/hitoshi/roomsync/internal/metrics"
)

// Registry はアパートIDごとの参加セッション集合を管理する。
// すべての操作は並行呼び出しに対して安全。
type Registry struct {
	mu         sync.RWMutex
	apartments map[string]map[*Session]struct{}
	collector  metrics.MetricsCollector
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry(collector metrics.MetricsCollector) *Registry {
	return &Registry{
		apartments: make(map[string]map[*Session]struct{}),
		collector:  collector,
	}
}

// Join はセッションを指定アパートのグループに参加させる。
// 参加済みセッションの再参加は何も変更しない（冪等）。
func (r *Registry) Join(apartmentID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.apartments[apartmentID]
	if !ok {
		members = make(map[*Session]struct{})
		r.apartments[apartmentID] = members
	}
	if _, exists := members[s]; exists {
		return
	}
	members[s] = struct{}{}
	r.collector.RecordSessionJoined()
}

// Leave はセッションを指定アパートのグループから離脱させる。
// 未参加のセッションに対しては何もしない。
func (r *Registry) Leave(apartmentID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.apartments[apartmentID]
	if !ok {
		return
	}
	if _, exists := members[s]; !exists {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.apartments, apartmentID)
	}
	r.collector.RecordSessionLeft()
}

// MemberCount は指定アパートの現在の参加セッション数を返す。
func (r *Registry) MemberCount(apartmentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.apartments[apartmentID])
}

// Broadcast はペイロードを指定アパートの全参加セッション（送信者含む）に配送し、
// 配送に成功した件数を返す。存在しない・空のアパートへの配送は何もしない。
// 送信バッファが満杯のセッションは切断対象として除外し、他のセッションの
// 配送をブロックしない。
func (r *Registry) Broadcast(apartmentID string, payload []byte) int {
	snapshot := r.memberSnapshot(apartmentID)
	if len(snapshot) == 0 {
		return 0
	}

	var failed []*Session
	delivered := 0
	for _, member := range snapshot {
		if member.enqueue(payload) {
			delivered++
		} else {
			failed = append(failed, member)
		}
	}

	// 配送できなかったセッションは追いつく見込みがないため切断する。
	for _, member := range failed {
		go member.Close()
	}

	if delivered > 0 {
		r.collector.RecordBroadcastDeliveries(delivered)
	}
	return delivered
}

// memberSnapshot はロック保持時間を最小化するため、配送前に参加者の
// スナップショットを取得する。
func (r *Registry) memberSnapshot(apartmentID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.apartments[apartmentID]
	if !ok {
		return nil
	}
	snapshot := make([]*Session, 0, len(members))
	for member := range members {
		snapshot = append(snapshot, member)
	}
	return snapshot
}
