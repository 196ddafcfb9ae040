// Package router はパスからレスポンスを決定します。
//
// 解決順序:
//   - 静的ファイル
//   - 登録済みルート（完全一致）
//   - 404 本文
package router

import (
	"log"
	"sort"
	"sync/atomic"

	"minihttpd/internal/response"
)

// NotFoundBody は未検出時に返す本文
const NotFoundBody = "<h1>404 - Not Found</h1>"

// HandlerFunc はルートに対応するレスポンスを生成する
type HandlerFunc func() response.Response

// FileResolver はパスに対応する静的ファイルを解決する
type FileResolver interface {
	TryResolve(path string) (response.Response, bool)
}

// Kind はレスポンスの解決元
type Kind string

const (
	KindStatic   Kind = "static"
	KindRoute    Kind = "route"
	KindNotFound Kind = "not_found"
)

// Resolution は解決結果とその解決元
type Resolution struct {
	Response response.Response
	Kind     Kind
}

// Router はルートテーブルと静的ファイルの解決を担う。
// ルートの登録はサーバー起動前に限る。起動後は読み取り専用。
type Router struct {
	files  FileResolver
	routes map[string]HandlerFunc
	frozen atomic.Bool
}

// New は新しいRouterを作成する。files が nil の場合は静的ファイルを解決しない。
func New(files FileResolver) *Router {
	return &Router{
		files:  files,
		routes: make(map[string]HandlerFunc),
	}
}

// AddRoute はパスにハンドラを登録する。同じパスは後から登録したものが優先される。
func (r *Router) AddRoute(path string, h HandlerFunc) {
	if r.frozen.Load() {
		panic("router: AddRoute called after the server started")
	}
	r.routes[path] = h
}

// Freeze はルートテーブルを読み取り専用にする
func (r *Router) Freeze() {
	r.frozen.Store(true)
}

// Routes は登録済みのパスをソートして返す
func (r *Router) Routes() []string {
	paths := make([]string, 0, len(r.routes))
	for p := range r.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Handle はパスに対応するレスポンスを返す。常に何らかのレスポンスを返す。
func (r *Router) Handle(path string) response.Response {
	return r.Lookup(path).Response
}

// Lookup はパスを解決し、レスポンスと解決元を返す
func (r *Router) Lookup(path string) Resolution {
	if r.files != nil {
		if resp, ok := r.files.TryResolve(path); ok {
			return Resolution{Response: resp, Kind: KindStatic}
		}
	}

	if h, ok := r.routes[path]; ok {
		if resp, ok := r.invoke(path, h); ok {
			return Resolution{Response: resp, Kind: KindRoute}
		}
	}

	return Resolution{Response: NotFound(), Kind: KindNotFound}
}

// invoke はハンドラを呼び出す。ハンドラがパニックした場合は false を返す。
func (r *Router) invoke(path string, h HandlerFunc) (resp response.Response, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ハンドラでパニックが発生しました: %s: %v", path, rec)
			ok = false
		}
	}()
	return h(), true
}

// NotFound は固定の404レスポンスを返す
func NotFound() response.Response {
	return response.HTML(NotFoundBody)
}
