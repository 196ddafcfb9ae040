package admin

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"minihttpd/internal/config"
	"minihttpd/internal/server"
)

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo は本体サーバーの情報
type ServerInfo struct {
	Address    string   `json:"address"`
	StaticRoot string   `json:"static_root"`
	Index      string   `json:"index"`
	Routes     []string `json:"routes"`
}

// StatusResponse は稼働状況の応答
type StatusResponse struct {
	Status      string            `json:"status"`
	Server      ServerInfo        `json:"server"`
	Active      int               `json:"active_connections"`
	Connections []server.ConnInfo `json:"connections"`
	Uptime      string            `json:"uptime"`
	Timestamp   time.Time         `json:"timestamp"`
}

// handler は管理用エンドポイントの実装
type handler struct {
	config    *config.Config
	source    Source
	startedAt time.Time
}

// jsonContentType は管理APIの応答のContent-Type
const jsonContentType = "application/json; charset=utf-8"

// writeJSON は v をgo-jsonでエンコードして返す
func writeJSON(c *gin.Context, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("管理APIの応答のエンコードに失敗: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
		return
	}
	c.Data(code, jsonContentType, body)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *handler) HealthCheck(c *gin.Context) {
	writeJSON(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *handler) GetStatus(c *gin.Context) {
	// 起動前はアドレスが未確定なので設定値を返す
	address := h.config.ServerAddress()
	if addr := h.source.Addr(); addr != nil {
		address = addr.String()
	}

	conns := h.source.Connections()

	writeJSON(c, http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Address:    address,
			StaticRoot: h.config.Static.Root,
			Index:      h.config.Static.Index,
			Routes:     h.source.Routes(),
		},
		Active:      len(conns),
		Connections: conns,
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp:   time.Now(),
	})
}
