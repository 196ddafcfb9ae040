// Package static はURLパスをルートディレクトリ配下のファイルに対応付け、
// その内容をレスポンスとして返します。
package static

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"minihttpd/internal/response"
)

// mimeTypes は拡張子（小文字、ドット付き）からMIMEタイプへの対応。
// 起動後は参照のみ。
var mimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".txt":  "text/plain",
}

// ContentTypeFor は拡張子に対応するMIMEタイプを返す。大文字小文字は区別しない。
func ContentTypeFor(ext string) string {
	if ct, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return response.OctetStream
}

// Resolver は静的ファイルのルートディレクトリとデフォルトドキュメントを保持する
type Resolver struct {
	root  string
	index string
}

// New は新しいResolverを作成する
func New(root, index string) *Resolver {
	return &Resolver{root: root, index: index}
}

// Root はルートディレクトリを返す
func (r *Resolver) Root() string {
	return r.root
}

// TryResolve はパスに対応する通常ファイルが存在すればその内容を返す
func (r *Resolver) TryResolve(path string) (response.Response, bool) {
	if path == "/" {
		path = "/" + r.index
	}

	filePath, ok := r.filePath(path)
	if !ok {
		log.Printf("ルート外へのアクセスを拒否しました: %s", path)
		return response.Response{}, false
	}

	info, err := os.Stat(filePath)
	if err != nil || !info.Mode().IsRegular() {
		return response.Response{}, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Printf("静的ファイルの読み込みに失敗: %s: %v", filePath, err)
		return response.Response{}, false
	}

	return response.Binary(data, ContentTypeFor(filepath.Ext(filePath))), true
}

// filePath はURLパスをルート配下のファイルシステムパスに変換する。
// 変換結果がルートの外を指す場合は false を返す。
func (r *Resolver) filePath(urlPath string) (string, bool) {
	root := filepath.Clean(r.root)
	p := filepath.Join(root, filepath.FromSlash(urlPath))

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}
