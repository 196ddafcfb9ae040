package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"minihttpd/internal/metrics"
	"minihttpd/internal/request"
	"minihttpd/internal/response"
	"minihttpd/internal/router"
)

// handleConn は1つの接続を最初から最後まで処理する。
// どの経路で終了しても接続は必ずクローズされ、エラーは呼び出し元に伝播しない。
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	start := time.Now()
	id := s.tracker.Add(conn.RemoteAddr())
	metrics.ConnectionAccepted()
	defer func() {
		s.tracker.Remove(id)
		metrics.ConnectionClosed(time.Since(start).Seconds())
	}()

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("[conn %s] 接続のクローズに失敗: %v", id, err)
		}
	}()

	defer func() {
		if rec := recover(); rec != nil {
			metrics.ConnectionError(metrics.StagePanic)
			log.Printf("[conn %s] クライアント処理中にパニックが発生しました: %v", id, rec)
		}
	}()

	if err := s.serveConn(id, conn); err != nil {
		log.Printf("[conn %s] クライアント処理中にエラー: %v", id, err)
	}
}

// serveConn はリクエストヘッドを読み取り、1つのレスポンスを書き込む
func (s *Server) serveConn(id string, conn net.Conn) error {
	br := bufio.NewReader(conn)
	head, err := request.ReadHead(br)
	if errors.Is(err, request.ErrHeadTooLarge) {
		metrics.ConnectionError(metrics.StageRead)
		s.rejectOversized(id, conn, br)
		return fmt.Errorf("リクエストの読み込みに失敗: %w", err)
	}
	if err != nil {
		metrics.ConnectionError(metrics.StageRead)
		return fmt.Errorf("リクエストの読み込みに失敗: %w", err)
	}
	if head == "" {
		// 何も送られずに閉じられた
		return nil
	}

	req := request.Parse(head)
	s.tracker.SetRequest(id, req.Line.Method, req.Line.Path)

	res := s.router.Lookup(req.Line.Path)
	n, err := response.Write(conn, res.Response)
	if err != nil {
		metrics.ConnectionError(metrics.StageWrite)
		return fmt.Errorf("レスポンスの書き込みに失敗: %w", err)
	}
	metrics.RequestHandled(string(res.Kind), n)

	log.Printf("[conn %s] %s %s %s -> %s (%d bytes, host=%q)",
		id, conn.RemoteAddr(), req.Line.Method, req.Line.Path, res.Kind, n, req.Headers.Get("Host"))
	return nil
}

// rejectOversized は大きすぎるリクエストヘッドに404本文を返す。
// 未読のデータが残ったままクローズするとRSTで応答が失われるため、
// 書き込み側を閉じてから MaxHeadBytes まで読み捨てる。
func (s *Server) rejectOversized(id string, conn net.Conn, br *bufio.Reader) {
	n, err := response.Write(conn, router.NotFound())
	if err != nil {
		metrics.ConnectionError(metrics.StageWrite)
		log.Printf("[conn %s] レスポンスの書き込みに失敗: %v", id, err)
		return
	}
	metrics.RequestHandled(string(router.KindNotFound), n)

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			log.Printf("[conn %s] 書き込み側のクローズに失敗: %v", id, err)
			return
		}
	}
	_, _ = io.CopyN(io.Discard, br, request.MaxHeadBytes)
}
