package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"minihttpd/internal/config"
	"minihttpd/internal/controllers"
	"minihttpd/internal/router"
	"minihttpd/internal/server"
	"minihttpd/internal/static"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// ルーティングを構築
	r := router.New(static.New(cfg.Static.Root, cfg.Static.Index))
	controllers.Register(r, nil)

	// サーバーを作成
	srv := server.New(cfg, r)

	// Ctrl+C で停止するコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
	srv.Wait()
}
