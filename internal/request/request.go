// Package request は接続のバイトストリームからリクエストヘッドを読み取り、
// リクエストラインを解析します。
//
// 解析は常に成功します。不正なリクエストラインはエラーにせず、
// メソッドは "UNKNOWN"、パスは "/" で補完されます。
package request

import (
	"bufio"
	"errors"
	"io"
	"log"
	"strings"
)

// MaxHeadBytes はリクエストヘッドとして受け付ける最大バイト数
const MaxHeadBytes = 64 << 10

const (
	// UnknownMethod はメソッドが存在しない場合のメソッド名
	UnknownMethod = "UNKNOWN"
	// DefaultPath はパスが存在しない場合のパス
	DefaultPath = "/"
)

// ErrHeadTooLarge はリクエストヘッドが MaxHeadBytes を超えた場合のエラー
var ErrHeadTooLarge = errors.New("request head too large")

// RequestLine はリクエストの1行目を表す
type RequestLine struct {
	Method  string
	Path    string
	Version string // 参考情報。検証はしない
}

// Request は解析済みのリクエストヘッド
type Request struct {
	Line    RequestLine
	Headers Headers
	Raw     string
}

// Parse は生のリクエストヘッドを解析する
func Parse(head string) Request {
	return Request{
		Line:    ParseRequestLine(head),
		Headers: ParseHeaders(head),
		Raw:     head,
	}
}

// ReadHead は空行（ヘッダーの終端）またはEOFまで行単位で読み取り、
// 読み取った行を改行区切りで連結して返す。
// 1行も読めずに接続が閉じられた場合は空文字列を返す。
func ReadHead(r *bufio.Reader) (string, error) {
	var sb strings.Builder

	log.Println("---- RAW REQUEST BEGIN ----")
	defer log.Println("---- RAW REQUEST END ----")

	for {
		line, err := readLine(r)
		if line != "" {
			log.Printf("[RAW] %s", EscapeSpecialChars(line))
			if sb.Len()+len(line)+1 > MaxHeadBytes {
				return sb.String(), ErrHeadTooLarge
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		if line == "" {
			return sb.String(), nil
		}
	}
}

// readLine は改行までを1行として読み取り、末尾の CRLF / LF を取り除く。
// EOF の場合は読み取れた途中までの行と io.EOF を返す。
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		l, more, err := r.ReadLine()
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				return string(line), io.EOF
			}
			return string(line), err
		}
		line = append(line, l...)
		if len(line) > MaxHeadBytes {
			return "", ErrHeadTooLarge
		}
		if !more {
			return string(line), nil
		}
	}
}

// ParseRequestLine はリクエストヘッドの1行目からメソッドとパスを取り出す
func ParseRequestLine(head string) RequestLine {
	first, _, _ := strings.Cut(head, "\n")
	parts := strings.Split(strings.TrimSpace(first), " ")

	rl := RequestLine{Method: UnknownMethod, Path: DefaultPath}
	if len(parts) > 0 && parts[0] != "" {
		rl.Method = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		rl.Path = parts[1]
	}
	if len(parts) > 2 {
		rl.Version = parts[2]
	}
	return rl
}

// EscapeSpecialChars は制御文字をログ表示用にエスケープする
func EscapeSpecialChars(s string) string {
	return strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`).Replace(s)
}
