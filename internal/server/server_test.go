package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minihttpd/internal/config"
	"minihttpd/internal/controllers"
	"minihttpd/internal/request"
	"minihttpd/internal/response"
	"minihttpd/internal/router"
	"minihttpd/internal/static"
)

// newTestConfig はランダムポートを使うテスト用の設定を作成する
func newTestConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0, // ランダムポートを使用
		},
		Static: config.StaticConfig{
			Root:  root,
			Index: "index.html",
		},
	}
}

// startTestServer はサーバーを起動し、リッスンアドレスを返す
func startTestServer(t *testing.T, srv *Server) string {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("サーバーの起動に失敗しました: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの起動がタイムアウトしました")
	}

	t.Cleanup(func() {
		srv.Stop()
		if err := <-errCh; err != nil {
			t.Errorf("受け付けループがエラーで終了しました: %v", err)
		}
		srv.Wait()
	})

	return srv.Addr().String()
}

// newDefaultServer は組み込みルートを登録したサーバーを起動する
func newDefaultServer(t *testing.T, root string) string {
	t.Helper()

	r := router.New(static.New(root, "index.html"))
	controllers.Register(r, nil)
	return startTestServer(t, New(newTestConfig(root), r))
}

// rawRequest は生のリクエストを送り、接続が閉じられるまでの応答をすべて返す
func rawRequest(t *testing.T, addr, req string) []byte {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, req); err != nil {
		t.Fatalf("リクエストの送信に失敗しました: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("レスポンスの受信に失敗しました: %v", err)
	}
	return data
}

// parseResponse は応答を解析してステータス、ヘッダー、本文を返す
func parseResponse(t *testing.T, data []byte) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(string(data))), nil)
	if err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v\n%s", err, data)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("本文の読み込みに失敗しました: %v", err)
	}
	return resp, body
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv := New(newTestConfig(t.TempDir()), router.New(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	<-srv.Ready()
	addr := srv.Addr().String()

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}

	// 停止後は新しい接続を受け付けない
	if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		conn.Close()
		t.Error("停止後に接続が受け付けられました")
	}

	// 2回目の Stop は何もしない
	srv.Stop()
}

// TestStopBeforeStart は起動前の停止をテストする
func TestStopBeforeStart(t *testing.T) {
	srv := New(newTestConfig(t.TempDir()), router.New(nil))
	srv.Stop()

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("停止済みサーバーの起動でエラーが発生しました: %v", err)
	}
}

// TestStartListenError はリッスン失敗をテストする
func TestStartListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("リッスンに失敗しました: %v", err)
	}
	defer ln.Close()

	cfg := newTestConfig(t.TempDir())
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	if err := New(cfg, router.New(nil)).Start(context.Background()); err == nil {
		t.Fatal("使用中のポートでエラーが期待されました")
	}
}

// TestStartTwice は2回目の Start がパニックせずエラーを返すことをテストする
func TestStartTwice(t *testing.T) {
	srv := New(newTestConfig(t.TempDir()), router.New(nil))
	startTestServer(t, srv)

	if err := srv.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("ErrAlreadyStartedが期待されました: got %v", err)
	}

	// 1回目の受け付けループは動き続けている
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	conn.Close()
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	addr := newDefaultServer(t, t.TempDir())

	testCases := []struct {
		name        string
		request     string
		contentType string
		body        string
	}{
		{
			name:        "挨拶ページ",
			request:     "GET /hello HTTP/1.1\r\nHost: localhost\r\n\r\n",
			contentType: "text/html; charset=utf-8",
			body:        "<h1>Hello from the router!</h1>",
		},
		{
			name:        "存在しないパス",
			request:     "GET /nonexistent HTTP/1.1\r\n\r\n",
			contentType: "text/html; charset=utf-8",
			body:        router.NotFoundBody,
		},
		{
			name:        "ルートパス（静的ファイルなし）",
			request:     "GET / HTTP/1.1\r\n\r\n",
			contentType: "text/html; charset=utf-8",
			body:        "<h1>Welcome!</h1>",
		},
		{
			name:        "LFのみの改行",
			request:     "GET /hello HTTP/1.1\nHost: localhost\n\n",
			contentType: "text/html; charset=utf-8",
			body:        "<h1>Hello from the router!</h1>",
		},
		{
			name:        "不正なリクエストライン",
			request:     "BREW\r\n\r\n",
			contentType: "text/html; charset=utf-8",
			body:        "<h1>Welcome!</h1>",
		},
		{
			name:        "時刻API",
			request:     "GET /api/time HTTP/1.1\r\n\r\n",
			contentType: "application/json; charset=utf-8",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := rawRequest(t, addr, tc.request)
			resp, body := parseResponse(t, data)

			if resp.StatusCode != http.StatusOK {
				t.Errorf("予期しないステータスコード: got %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if got := resp.Header.Get("Content-Type"); got != tc.contentType {
				t.Errorf("Content-Typeが一致しません: got %s, want %s", got, tc.contentType)
			}
			// ReadResponse は Connection: close ヘッダーを取り除き Close に反映する
			if !resp.Close {
				t.Error("応答がConnection: closeとして解釈されませんでした")
			}
			if !strings.Contains(string(data), "\r\nConnection: close\r\n") {
				t.Errorf("Connection: closeヘッダーがありません:\n%s", data)
			}
			if resp.ContentLength != int64(len(body)) {
				t.Errorf("Content-Lengthが本文の長さと一致しません: %d != %d", resp.ContentLength, len(body))
			}
			if tc.body != "" && string(body) != tc.body {
				t.Errorf("本文が一致しません: got %q, want %q", body, tc.body)
			}
		})
	}
}

// TestServerStaticFiles は静的ファイルの配信をテストする
func TestServerStaticFiles(t *testing.T) {
	root := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff, 0xfe}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>index</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "img"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "img", "logo.PNG"), png, 0o644); err != nil {
		t.Fatal(err)
	}

	addr := newDefaultServer(t, root)

	resp, body := parseResponse(t, rawRequest(t, addr, "GET / HTTP/1.1\r\n\r\n"))
	if string(body) != "<h1>index</h1>" {
		t.Errorf("デフォルトドキュメントが返されません: got %q", body)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Typeが一致しません: got %s", got)
	}

	resp, body = parseResponse(t, rawRequest(t, addr, "GET /img/logo.PNG HTTP/1.1\r\n\r\n"))
	if string(body) != string(png) {
		t.Errorf("バイナリが一致しません: got %v, want %v", body, png)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png; charset=utf-8" {
		t.Errorf("Content-Typeが一致しません: got %s", got)
	}
}

// TestServerEmptyConnection は何も送らずに閉じた接続をテストする
func TestServerEmptyConnection(t *testing.T) {
	addr := newDefaultServer(t, t.TempDir())

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer conn.Close()

	// 書き込み側だけを閉じて EOF を送る
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatalf("CloseWriteに失敗しました: %v", err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("読み込みに失敗しました: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("空の接続に応答が返されました: %q", data)
	}
}

// TestServerOversizedHead は上限を超えるリクエストヘッドにも応答が返ることをテストする
func TestServerOversizedHead(t *testing.T) {
	addr := newDefaultServer(t, t.TempDir())

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer conn.Close()

	var sb strings.Builder
	sb.WriteString("GET /hello HTTP/1.1\r\n")
	for i := 0; sb.Len() <= request.MaxHeadBytes+4096; i++ {
		fmt.Fprintf(&sb, "X-Filler-%d: %s\r\n", i, strings.Repeat("a", 1000))
	}
	sb.WriteString("\r\n")

	// サーバーは途中で読み取りをやめるので送信は別ゴルーチンで行う
	go func() {
		_, _ = io.WriteString(conn, sb.String())
	}()

	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("レスポンスの受信に失敗しました: %v", err)
	}
	resp, body := parseResponse(t, data)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("予期しないステータスコード: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !resp.Close {
		t.Error("応答がConnection: closeとして解釈されませんでした")
	}
	if string(body) != router.NotFoundBody {
		t.Errorf("本文が一致しません: got %q, want %q", body, router.NotFoundBody)
	}
}

// TestServerConcurrentConnections は同時接続をテストする
func TestServerConcurrentConnections(t *testing.T) {
	const n = 32

	r := router.New(nil)
	for i := 0; i < n; i++ {
		body := fmt.Sprintf("<p>route %d</p>", i)
		r.AddRoute(fmt.Sprintf("/r/%d", i), func() response.Response { return response.HTML(body) })
	}
	addr := startTestServer(t, New(newTestConfig(t.TempDir()), r))

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			fmt.Fprintf(conn, "GET /r/%d HTTP/1.1\r\n\r\n", i)
			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("<p>route %d</p>", i); string(body) != want {
				errs <- fmt.Errorf("本文が一致しません: got %q, want %q", body, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

// TestSlowClientDoesNotBlockOthers は遅いクライアントが他の接続を妨げないことをテストする
func TestSlowClientDoesNotBlockOthers(t *testing.T) {
	srv := New(newTestConfig(t.TempDir()), func() *router.Router {
		r := router.New(nil)
		controllers.Register(r, nil)
		return r
	}())
	addr := startTestServer(t, srv)

	// ヘッダーの途中で止まるクライアント
	slow, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer slow.Close()
	if _, err := io.WriteString(slow, "GET /hello HTTP/1.1\r\nHost: slow\r\n"); err != nil {
		t.Fatal(err)
	}

	_, body := parseResponse(t, rawRequest(t, addr, "GET /hello HTTP/1.1\r\n\r\n"))
	if string(body) != "<h1>Hello from the router!</h1>" {
		t.Errorf("本文が一致しません: got %q", body)
	}

	// 遅いクライアントは処理中として追跡されている
	slowAddr := slow.LocalAddr().String()
	tracked := func() bool {
		conns := srv.Connections()
		return len(conns) == 1 && conns[0].RemoteAddr == slowAddr && conns[0].Status == StatusReading
	}
	deadline := time.Now().Add(2 * time.Second)
	for !tracked() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !tracked() {
		t.Fatalf("処理中の接続が一致しません: %+v", srv.Connections())
	}

	// 停止後も処理中の接続は最後まで処理される
	srv.Stop()
	if _, err := io.WriteString(slow, "\r\n"); err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(slow)
	if err != nil {
		t.Fatal(err)
	}
	_, body = parseResponse(t, data)
	if string(body) != "<h1>Hello from the router!</h1>" {
		t.Errorf("停止後の本文が一致しません: got %q", body)
	}

	srv.Wait()
	if c := srv.tracker.Count(); c != 0 {
		t.Errorf("処理中の接続が残っています: %d", c)
	}
}
