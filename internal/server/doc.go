// Package server は、TCP接続の受け付けと接続ごとのリクエスト処理を管理します。
//
// 責務:
//   - リスニングソケットの管理と受け付けループ
//   - 接続ごとのゴルーチン起動
//   - リクエストヘッドの読み取り、ルーティング、レスポンスの書き込み
//   - 処理中の接続の追跡
//
// 仕様:
//   - 1接続につき1リクエスト・1レスポンス（Connection: close）
//   - Stop はリスナーを閉じ、受け付けループを正常終了させる
//   - 処理中の接続は Stop 後も最後まで処理される
//   - 接続数の上限やタイムアウトは設けない
package server
