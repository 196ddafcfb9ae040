// Package controllers は組み込みルートのハンドラを提供します。
package controllers

import (
	"fmt"
	"log"
	"time"

	"minihttpd/internal/response"
	"minihttpd/internal/router"
)

// ticksPerSecond は1秒あたりのティック数（1ティック = 100ナノ秒）
const ticksPerSecond = int64(time.Second / 100)

// tickEpoch はティックの起点（0001-01-01 00:00:00）
var tickEpoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// Clock は現在時刻を返す
type Clock func() time.Time

// Home はトップページと挨拶ページ
type Home struct{}

// Index は "/" のハンドラ
func (Home) Index() response.Response {
	return response.HTML("<h1>Welcome!</h1>")
}

// Hello は "/hello" のハンドラ
func (Home) Hello() response.Response {
	return response.HTML("<h1>Hello from the router!</h1>")
}

// Time は現在時刻ページ
type Time struct {
	Now Clock
}

// Page は "/time" のハンドラ
func (c Time) Page() response.Response {
	return response.HTML(fmt.Sprintf("<p>The time is: %s</p>", c.Now().Format("2006-01-02 15:04:05")))
}

// TimePayload は時刻APIの応答
type TimePayload struct {
	Now   time.Time `json:"now"`
	Ticks int64     `json:"ticks"`
}

// API はJSONを返すエンドポイント
type API struct {
	Now Clock
}

// Time は "/api/time" のハンドラ
func (c API) Time() response.Response {
	now := c.Now()
	resp, err := response.JSON(TimePayload{Now: now, Ticks: Ticks(now)})
	if err != nil {
		log.Printf("時刻APIの応答作成に失敗: %v", err)
		return router.NotFound()
	}
	return resp
}

// Ticks は t のタイムゾーンでの壁時計時刻について、
// 0001-01-01 00:00:00 からの経過時間を100ナノ秒単位で返す
func Ticks(t time.Time) int64 {
	_, offset := t.Zone()
	secs := t.Unix() + int64(offset) - tickEpoch.Unix()
	return secs*ticksPerSecond + int64(t.Nanosecond())/100
}

// Register は組み込みルートをすべて登録する
func Register(r *router.Router, now Clock) {
	if now == nil {
		now = time.Now
	}
	home := Home{}
	r.AddRoute("/", home.Index)
	r.AddRoute("/hello", home.Hello)
	r.AddRoute("/time", Time{Now: now}.Page)
	r.AddRoute("/api/time", API{Now: now}.Time)
}
