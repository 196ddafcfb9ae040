// Package admin は、ヘルスチェック・稼働状況・メトリクスを公開する管理用HTTPサーバーです。
//
// 本体のHTTPサーバーとは別のアドレスで待ち受けます。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"minihttpd/internal/config"
	"minihttpd/internal/metrics"
	"minihttpd/internal/server"
)

// shutdownTimeout はシャットダウンを待つ最大時間
const shutdownTimeout = 5 * time.Second

// Source は管理サーバーが参照する本体サーバーの状態
type Source interface {
	Addr() net.Addr
	Connections() []server.ConnInfo
	Routes() []string
}

// Server は管理用HTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	source     Source
	engine     *gin.Engine
	httpServer *http.Server
	startedAt  time.Time
}

// New は新しい管理サーバーを作成する
func New(cfg *config.Config, source Source) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:    cfg,
		source:    source,
		engine:    engine,
		startedAt: time.Now(),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    cfg.AdminAddress(),
		Handler: engine,
	}
	return s
}

// setupRoutes は管理用のルートを設定する
func (s *Server) setupRoutes() {
	h := &handler{config: s.config, source: s.source, startedAt: s.startedAt}

	s.engine.GET("/health", h.HealthCheck)
	s.engine.GET("/api/status", h.GetStatus)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start は管理サーバーを起動し、ctx がキャンセルされるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("管理サーバーを起動しています: %s", s.config.AdminAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("管理サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown は管理サーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("管理サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("管理サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("管理サーバーが正常にシャットダウンされました")
	return nil
}
