// Package response はHTTPレスポンスのモデルと、その書き出しを提供します。
package response

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
)

const (
	// DefaultContentType はテキストレスポンスのデフォルトのContent-Type
	DefaultContentType = "text/html"
	// OctetStream は種類の分からないバイナリのContent-Type
	OctetStream = "application/octet-stream"
	// JSONContentType はJSONレスポンスのContent-Type
	JSONContentType = "application/json"
)

// statusLine は常に 200 OK。未検出のパスも 404 本文を 200 で返す。
const statusLine = "HTTP/1.1 200 OK\r\n"

// Response はクライアントに返す本文とContent-Type
type Response struct {
	Body        []byte
	ContentType string
}

// HTML は text/html のレスポンスを作成する
func HTML(body string) Response {
	return Response{Body: []byte(body), ContentType: DefaultContentType}
}

// Text は任意のContent-Typeを持つテキストレスポンスを作成する
func Text(body, contentType string) Response {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return Response{Body: []byte(body), ContentType: contentType}
}

// Binary はバイト列をそのまま本文とするレスポンスを作成する
func Binary(body []byte, contentType string) Response {
	if contentType == "" {
		contentType = OctetStream
	}
	return Response{Body: body, ContentType: contentType}
}

// JSON は v をJSONにエンコードしたレスポンスを作成する
func JSON(v any) (Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("JSONのエンコードに失敗: %w", err)
	}
	return Response{Body: body, ContentType: JSONContentType}, nil
}

// contentType は空の場合にデフォルトを補ったContent-Typeを返す
func (r Response) contentType() string {
	if r.ContentType == "" {
		return DefaultContentType
	}
	return r.ContentType
}

// countingWriter は下位のライターに実際に渡ったバイト数を数える
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write はステータスライン、ヘッダー、本文を w に書き出してフラッシュする。
// w に実際に書き込まれたバイト数を返す（バッファに残った分は含まない）。
func Write(w io.Writer, resp Response) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	header := statusLine +
		"Content-Type: " + resp.contentType() + "; charset=utf-8\r\n" +
		"Content-Length: " + strconv.Itoa(len(resp.Body)) + "\r\n" +
		"Connection: close\r\n" +
		"\r\n"

	if _, err := bw.WriteString(header); err != nil {
		return cw.n, fmt.Errorf("ヘッダーの書き込みに失敗: %w", err)
	}
	if _, err := bw.Write(resp.Body); err != nil {
		return cw.n, fmt.Errorf("本文の書き込みに失敗: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("フラッシュに失敗: %w", err)
	}
	return cw.n, nil
}
