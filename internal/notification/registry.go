package notification

import (
	"context"
	"sync"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Channel はユーザーへのイベント送信路。
type Channel interface {
	// Send はフレームを送信キューに積む。送信できなかった場合はエラーを返す。
	Send(ctx context.Context, f event.Frame) error
	// Close は送信路を閉じる。複数回呼んでもよい。
	Close()
	// Done は送信路が閉じられたときにクローズされるチャネルを返す。
	Done() <-chan struct{}
}

// Registry はユーザーIDごとに1本の送信路を保持する。
// 登録は後勝ちで、解除は送信路の同一性を確認してから行う。
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Channel
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Channel)}
}

// Register は送信路を登録する。既存の送信路があれば置き換えて閉じ、それを返す。
func (r *Registry) Register(recipientID string, ch Channel) Channel {
	r.mu.Lock()
	old := r.conns[recipientID]
	r.conns[recipientID] = ch
	r.mu.Unlock()

	if old != nil && old != ch {
		old.Close()
		return old
	}
	return nil
}

// Unregister は登録中の送信路がchと同一の場合のみ登録を解除する。
// 解除した場合はtrueを返す。
func (r *Registry) Unregister(recipientID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.conns[recipientID]
	if !ok || cur != ch {
		return false
	}
	delete(r.conns, recipientID)
	return true
}

// Lookup は登録中の送信路を返す。
func (r *Registry) Lookup(recipientID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.conns[recipientID]
	return ch, ok
}

// Len は登録中の送信路の数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll はすべての送信路を閉じて登録を空にする。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Channel)
	r.mu.Unlock()

	for _, ch := range conns {
		ch.Close()
	}
}
