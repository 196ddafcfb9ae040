package server

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnStatus は接続の処理状態を表す
type ConnStatus string

const (
	StatusReading ConnStatus = "reading" // リクエストヘッドを読み込み中
	StatusWriting ConnStatus = "writing" // レスポンスを書き込み中
)

// ConnInfo は処理中の接続の情報
type ConnInfo struct {
	ID         string     `json:"id"`          // 接続の一意識別子
	RemoteAddr string     `json:"remote_addr"` // クライアントのアドレス
	Method     string     `json:"method,omitempty"`
	Path       string     `json:"path,omitempty"`
	Status     ConnStatus `json:"status"`      // 現在の状態
	AcceptedAt time.Time  `json:"accepted_at"` // 接続を受け付けた時刻
}

// Tracker は処理中の接続を管理する
type Tracker struct {
	conns map[string]*ConnInfo
	mu    sync.RWMutex
}

// NewTracker は新しいTrackerを作成する
func NewTracker() *Tracker {
	return &Tracker{
		conns: make(map[string]*ConnInfo),
	}
}

// Add は接続を管理対象に追加し、割り当てたIDを返す
func (t *Tracker) Add(remote net.Addr) string {
	info := &ConnInfo{
		ID:         uuid.New().String(),
		Status:     StatusReading,
		AcceptedAt: time.Now(),
	}
	if remote != nil {
		info.RemoteAddr = remote.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[info.ID] = info

	return info.ID
}

// SetRequest は解析済みのリクエストを記録し、書き込み中の状態にする
func (t *Tracker) SetRequest(id, method, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.conns[id]
	if !exists {
		return
	}
	info.Method = method
	info.Path = path
	info.Status = StatusWriting
}

// Remove は接続を管理対象から削除する
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// Get は指定されたIDの接続情報を取得する
func (t *Tracker) Get(id string) (*ConnInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.conns[id]
	if !exists {
		return nil, false
	}

	// コピーを返す
	result := *info
	return &result, true
}

// List は処理中の接続一覧を受け付け順に返す
func (t *Tracker) List() []ConnInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]ConnInfo, 0, len(t.conns))
	for _, info := range t.conns {
		conns = append(conns, *info)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].AcceptedAt.Before(conns[j].AcceptedAt)
	})

	return conns
}

// Count は処理中の接続数を返す
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
