package request

import "strings"

// Headers はヘッダー名（小文字）から値への対応
// ルーティングには使わず、アクセスログなどの参考情報として保持する
type Headers map[string]string

// Get は大文字小文字を区別せずにヘッダー値を取得する
func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

// ParseHeaders はリクエストヘッドの2行目以降からヘッダーを寛容に取り出す。
// ":" を含まない行は無視し、同名のヘッダーは ", " で連結する。
func ParseHeaders(head string) Headers {
	h := make(Headers)
	lines := strings.Split(head, "\n")
	if len(lines) < 2 {
		return h
	}
	for _, line := range lines[1:] {
		sep := strings.Index(line, ":")
		if sep <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:sep]))
		value := strings.TrimSpace(line[sep+1:])
		if prev, ok := h[name]; ok {
			h[name] = prev + ", " + value
			continue
		}
		h[name] = value
	}
	return h
}
