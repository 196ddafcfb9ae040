package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"minihttpd/internal/config"
	"minihttpd/internal/router"
)

// acceptRetryDelay は一時的な受け付けエラーの後に待つ時間
const acceptRetryDelay = 50 * time.Millisecond

// Server はTCP接続を受け付け、接続ごとにゴルーチンを起動する
type Server struct {
	config  *config.Config
	router  *router.Router
	tracker *Tracker

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	wg       sync.WaitGroup
}

// ErrAlreadyStarted は同じServerで Start が2回呼ばれたことを示す
var ErrAlreadyStarted = errors.New("サーバーは既に起動されています")

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, r *router.Router) *Server {
	return &Server{
		config:  cfg,
		router:  r,
		tracker: NewTracker(),
		ready:   make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start はリスナーを開いて受け付けループを実行する。
// Stop が呼ばれるか ctx がキャンセルされると nil を返す。
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// 以降ルートテーブルは読み取り専用
	s.router.Freeze()

	ln, err := net.Listen("tcp", s.config.ServerAddress())
	if err != nil {
		return fmt.Errorf("リッスンに失敗: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	select {
	case <-s.stopCh:
		// 起動前に停止済み
		s.mu.Unlock()
		ln.Close()
		return nil
	default:
	}
	s.mu.Unlock()
	close(s.ready)

	log.Printf("HTTPサーバーを起動しました: http://%s", ln.Addr())

	go func() {
		select {
		case <-ctx.Done():
			log.Println("コンテキストがキャンセルされました")
			s.Stop()
		case <-s.stopCh:
		}
	}()

	return s.serve(ln)
}

// serve は接続を受け付け、処理をゴルーチンに渡してすぐに次の受け付けに戻る
func (s *Server) serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// リスナーのクローズは正常な停止
			if errors.Is(err, net.ErrClosed) {
				log.Println("受け付けループを終了しました")
				return nil
			}

			log.Printf("接続の受け付けに失敗: %v", err)
			select {
			case <-s.stopCh:
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Stop は受け付けループを停止する。複数回呼んでも安全。
// 処理中の接続は中断せず、最後まで処理させる。
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Println("サーバーを停止しています...")

		s.mu.Lock()
		defer s.mu.Unlock()

		close(s.stopCh)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				log.Printf("リスナーのクローズに失敗: %v", err)
			}
		}
	})
}

// Wait は処理中の接続がすべて終わるまで待つ
func (s *Server) Wait() {
	s.wg.Wait()
}

// Ready はリスナーが開かれると閉じられるチャンネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr はリッスンしているアドレスを返す。起動前は nil。
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections は処理中の接続一覧を返す
func (s *Server) Connections() []ConnInfo {
	return s.tracker.List()
}

// Routes は登録済みのルート一覧を返す
func (s *Server) Routes() []string {
	return s.router.Routes()
}
