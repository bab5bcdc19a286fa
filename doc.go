// Package signalhub 提供了一個即時協作信令中心。
//
// 實現了一個讓已驗證的參與者組建臨時協作房間、交換帶標籤控制訊息的
// 信令服務器，包含以下核心功能：
//
// 會話與房間管理
//
// 以三個相互一致的註冊表追蹤在線狀態：
//   - 會話註冊表：身份 → 連接、當前房間、當前機器
//   - 房間目錄：房間碼 → 成員集合（空房間立即刪除）
//   - 機器註冊表：機器 ID → 擁有者與能力描述
//
// # 動作分發
//
// 每條入站訊息帶有 action 標籤，路由器按封閉的動作集合分發：
//   - 房間操作：join_room / leave_room
//   - 機器操作：register_machine / list_machines
//   - 房間範圍廣播：broadcast / show_notification / save_notebook
//   - 執行中繼：python_execute / python_output、notebook_execute / notebook_result
//   - 點對點：direct_message
//
// 未知動作回覆錯誤並回顯原始負載，單條訊息的失敗不會中斷連接。
//
// 執行中繼模式
//
// 代碼執行請求按「發後即忘的請求 / 顯式定址的回應」模式轉發：
//   - 請求帶上發送者身份，投遞到目標機器或整個房間
//   - 執行方在結果訊息中回填 original_sender
//   - 中心只負責查找該身份並直接投遞結果，不保存任何待決請求
//
// 併發安全設計
//
// 原始實現依賴單線程事件循環保證共享映射的隱式安全；本實現改為
// 顯式序列化：
//   - 三個註冊表由同一把讀寫鎖守護（單一序列化域）
//   - 投遞用的只讀解析走讀鎖，發送在鎖外對快照進行
//   - 斷線清理與訊息處理共用同一鎖域，可安全併發觸發
//
// 使用範例
//
// 啟動服務器：
//
//	manager := internal.NewManager(logger)
//	router := internal.NewRouter(manager, logger)
//	verifier := internal.NewHMACVerifier([]byte("secret"))
//	gateway := internal.NewGateway(manager, router, verifier, cfg, logger)
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /ws", gateway.ServeWS)
//	log.Fatal(http.ListenAndServe(":8080", mux))
//
// 客戶端連接：
//
//	header := http.Header{"Authorization": {"Bearer " + token}}
//	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:8080/ws", header)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ws.Close()
//	ws.WriteJSON(map[string]any{"action": "join_room", "room_code": "R1"})
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Gateway 層：WebSocket 升級、憑證驗證、讀寫泵與心跳
//   - Router 層：動作分發與錯誤回覆
//   - Manager 層：會話 / 房間 / 機器註冊表與廣播引擎
//   - Handler 層：/health 與 /stats 運維端點
//
// 每層都有明確的職責邊界，連接以 Sink 介面抽象，便於離線測試。
//
// 錯誤處理
//
// 除憑證驗證失敗（拒絕連接）外，所有錯誤都在本地恢復：
//   - not_in_room：房間範圍操作在房間外發起
//   - target_unavailable：目標用戶離線或不存在
//   - unknown_action：未識別的動作，回顯負載
//   - malformed_message：負載解碼失敗
//
// 配置選項
//
// 支援 YAML 配置檔與命令行參數：
//   - -config：配置檔路徑
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// 監控與除錯
//
// 內建基本的監控機制：
//   - 結構化日誌記錄（log/slog）
//   - 每 30 秒輸出活躍連接統計
//   - /health 與 /stats 端點
package signalhub
