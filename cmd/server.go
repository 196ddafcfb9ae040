// Package main はminihttpdサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"minihttpd/internal/admin"
	"minihttpd/internal/config"
	"minihttpd/internal/controllers"
	"minihttpd/internal/router"
	"minihttpd/internal/server"
	"minihttpd/internal/static"
)

func main() {
	// コマンドラインオプション
	var (
		configFile = flag.String("config", "", "設定ファイル (YAML)")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		root       = flag.String("root", "", "静的ファイルのルート (デフォルト: wwwroot)")
		index      = flag.String("index", "", "デフォルトドキュメント (デフォルト: index.html)")
		adminPort  = flag.Int("admin-port", 0, "管理サーバーのポート (デフォルト: 9090)")
		noAdmin    = flag.Bool("no-admin", false, "管理サーバーを起動しない")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("minihttpd")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	path := *configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *root != "" {
		cfg.Static.Root = *root
	}
	if *index != "" {
		cfg.Static.Index = *index
	}
	if *adminPort != 0 {
		cfg.Admin.Port = *adminPort
	}
	if *noAdmin {
		cfg.Admin.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	// Ctrl+C / SIGTERM で停止する
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("サーバーの実行に失敗しました: %v", err)
	}
}

// run はHTTPサーバーと管理サーバーを起動し、どちらかが終了するまで待つ
func run(ctx context.Context, cfg *config.Config) error {
	r := router.New(static.New(cfg.Static.Root, cfg.Static.Index))
	controllers.Register(r, nil)

	srv := server.New(cfg, r)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("minihttpd サーバーを起動します: %s (root=%s)", cfg.ServerAddress(), cfg.Static.Root)
		log.Println("Ctrl+C で停止します")
		err := srv.Start(ctx)

		// 処理中の接続が終わるまで待つ
		srv.Wait()
		log.Println("サーバーが正常に停止しました")
		return err
	})

	if cfg.Admin.Enabled {
		adm := admin.New(cfg, srv)
		g.Go(func() error {
			return adm.Start(ctx)
		})
	}

	return g.Wait()
}
