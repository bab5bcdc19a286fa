package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何承載每個客戶端一條的長連接，並把驗證、心跳、斷線清理
//   與核心註冊表解耦？
//
// 核心挑戰：
//   1. 驗證前置：憑證無效必須在註冊任何狀態之前終止連接
//   2. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   3. 重連競態：舊連接的關閉事件不得清掉新會話
//   4. 慢消費者：單個慢連接不得拖累整個房間
//
// 設計方案：
//   ✅ 升級前驗證 - 401 拒絕，連接不進入註冊表
//   ✅ Ping/Pong 心跳 - 54s/60s（避開常見的 60 秒代理超時）
//   ✅ 連接 UUID - 斷線清理按連接識別守衛，冪等
//   ✅ 緩衝 channel - 異步發送，緩衝滿時丟棄該連接的訊息

// Gateway WebSocket 接入層
//
// 持有升級器與驗證器；連接通過驗證後以 Connection（實現 Sink）
// 的形式註冊進 Manager，此後核心只透過 Sink 介面與連接交互。
type Gateway struct {
	manager  *Manager
	router   *Router
	verifier Verifier
	logger   *slog.Logger
	cfg      *Config
	upgrader websocket.Upgrader
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGateway 創建接入層
func NewGateway(manager *Manager, router *Router, verifier Verifier, cfg *Config, logger *slog.Logger) *Gateway {
	g := &Gateway{
		manager:  manager,
		router:   router,
		verifier: verifier,
		logger:   logger,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		stopCh: make(chan struct{}),
	}

	// 啟動診斷日誌
	g.wg.Add(1)
	go g.diagnosticsLoop()

	return g
}

// ServeWS 處理 WebSocket 連接
//
// 憑證取自 Authorization: Bearer 標頭，瀏覽器客戶端無法設置
// 標頭時退回 token 查詢參數。驗證失敗回 401，連接不升級。
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := g.verifier.Verify(bearerToken(r))
	if err != nil {
		g.logger.Warn("拒絕未授權的連接", "remote", r.RemoteAddr)
		http.Error(w, "invalid or missing credential", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("升級 WebSocket 失敗", "error", err, "identity", identity)
		return
	}

	connection := &Connection{
		ID:       uuid.NewString(),
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, g.cfg.WebSocket.SendBuffer),
		gateway:  g,
	}

	// 同一身份的舊連接被取代時在鎖外關閉
	if replaced := g.manager.Connect(identity, connection.ID, connection); replaced != nil {
		_ = replaced.Close()
	}

	go connection.writePump()
	go connection.readPump()

	g.logger.Info("WebSocket 連接建立",
		"identity", identity,
		"conn_id", connection.ID)
}

// bearerToken 從請求中提取憑證
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, found := strings.CutPrefix(auth, "Bearer "); found {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// diagnosticsLoop 定期輸出活躍連接統計
//
// 原始實現每 30 秒打印一次客戶端與房間清單，保留同樣的節奏。
func (g *Gateway) diagnosticsLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := g.manager.Stats()
			g.logger.Info("活躍連接統計",
				"clients", stats["total_clients"],
				"rooms", stats["rooms"],
				"machines", stats["total_machines"])
		case <-g.stopCh:
			return
		}
	}
}

// Stop 停止接入層
//
// 清空註冊表並關閉所有連接。
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	g.wg.Wait()

	for _, sink := range g.manager.DrainSessions() {
		_ = sink.Close()
	}

	g.logger.Info("WebSocket 接入層已停止")
}

// Connection 一條已驗證的客戶端連接
//
// 實現 Sink：Send 把負載序列化後推入緩衝 channel，由 writePump
// 單一 goroutine 寫出（gorilla 的連接不允許併發寫）。
type Connection struct {
	ID       string
	Identity string
	conn     *websocket.Conn
	send     chan []byte
	gateway  *Gateway

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// Send 入隊一個出站負載
//
// 緩衝滿時丟棄（無背壓，慢連接不拖累房間廣播）；
// 連接已關閉時回傳錯誤，調用方靜默跳過。
func (c *Connection) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化出站訊息失敗: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("連接已關閉")
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.gateway.logger.Warn("連接緩衝區滿，丟棄訊息",
			"identity", c.Identity,
			"conn_id", c.ID)
		return fmt.Errorf("連接緩衝區滿")
	}
}

// Close 關閉連接
//
// Send 與 Close 以 mu 互斥，channel 不會在發送中途被關閉。
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		_ = c.conn.Close()
	})
	return nil
}

// readPump 讀取客戶端訊息
//
// 心跳（讀取端）：60 秒內沒有任何訊息（包括 Pong）就關閉連接，
// 配合 writePump 的 54 秒 Ping 留 6 秒餘量。
//
// 退出時執行斷線清理：Disconnect 按連接 ID 守衛，若身份已被
// 新連接取代則為空操作。
func (c *Connection) readPump() {
	defer func() {
		c.gateway.manager.Disconnect(c.Identity, c.ID)
		_ = c.Close()
	}()

	cfg := c.gateway.cfg.WebSocket
	c.conn.SetReadLimit(cfg.MaxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait.Std())); err != nil {
		c.gateway.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait.Std()))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"identity", c.Identity)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.gateway.router.Dispatch(c.Identity, message)
		}
	}
}

// writePump 寫出訊息與心跳
//
// 心跳（發送端）：每 54 秒發送一次 Ping，避開常見的 60 秒
// 代理超時。批量寫出隊列中積壓的訊息。
func (c *Connection) writePump() {
	cfg := c.gateway.cfg.WebSocket

	ticker := time.NewTicker(cfg.PingInterval.Std())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait.Std())); err != nil {
				c.gateway.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Close 關閉了通道，嘗試優雅關閉
				deadline := time.Now().Add(time.Second)
				if err := c.conn.SetWriteDeadline(deadline); err == nil {
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait.Std())); err != nil {
				c.gateway.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
