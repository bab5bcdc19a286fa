package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// 系統設計問題：
//   如何把帶標籤的入站訊息安全地分發到對應的處理器？
//
// 核心挑戰：
//   1. 故障隔離：一條畸形訊息不得中斷連接或污染共享狀態
//   2. 封閉分發：動作集合是封閉的，未知動作回覆錯誤並回顯負載
//   3. 離線可測：處理器透過 Sink 介面回覆，不依賴真實連接
//
// 設計方案：
//   ✅ 每個動作一個處理器，統一回傳 error
//   ✅ HubError 帶類別，錯誤回覆附機器可讀的 kind
//   ✅ defer recover - 處理器 panic 轉為錯誤回覆

// Router 訊息路由器
//
// 給定已驗證的身份與一條解碼後的訊息，嚴格按動作類別分發。
// 所有狀態變更都委託給 Manager（同一序列化域），
// 路由器本身無狀態。
type Router struct {
	manager *Manager
	logger  *slog.Logger
}

// NewRouter 創建路由器
func NewRouter(manager *Manager, logger *slog.Logger) *Router {
	return &Router{
		manager: manager,
		logger:  logger,
	}
}

// Dispatch 處理一條入站訊息
//
// 解碼失敗、處理器錯誤、處理器 panic 都轉為對發送者的錯誤回覆，
// 連接保持打開。
func (r *Router) Dispatch(identity string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("處理訊息時發生 panic",
				"identity", identity,
				"panic", rec)
			r.replyError(identity, errMalformed("internal error"), nil)
		}
	}()

	msg, err := DecodeMessage(raw)
	if err != nil {
		r.logger.Warn("解碼入站訊息失敗", "identity", identity, "error", err)
		r.replyError(identity, err, nil)
		return
	}

	var echo json.RawMessage

	switch msg.Action {
	case ActionRegisterMachine:
		err = r.handleRegisterMachine(identity, msg)
	case ActionJoinRoom:
		err = r.handleJoinRoom(identity, msg)
	case ActionLeaveRoom:
		err = r.handleLeaveRoom(identity)
	case ActionBroadcast:
		err = r.handleBroadcast(identity, msg)
	case ActionShowNotification:
		err = r.handleNotification(identity, msg)
	case ActionPythonExecute:
		err = r.handlePythonExecute(identity, msg)
	case ActionPythonOutput:
		err = r.handlePythonOutput(identity, msg)
	case ActionNotebookExecute:
		err = r.handleNotebookExecute(identity, msg)
	case ActionNotebookResult:
		err = r.handleNotebookResult(identity, msg)
	case ActionDirectMessage:
		err = r.handleDirectMessage(identity, msg)
	case ActionSaveNotebook:
		err = r.handleSaveNotebook(identity)
	case ActionListMachines:
		err = r.handleListMachines(identity)
	default:
		r.logger.Warn("收到未知動作", "identity", identity, "action", msg.Action)
		err = errUnknownAction()
		echo = msg.Raw
	}

	if err != nil {
		r.replyError(identity, err, echo)
	}
}

// handleRegisterMachine 註冊機器
//
// 回覆註冊確認；若身份在房間內，向房間其他成員廣播
// machine_joined 通知（帶完整機器資料）。
func (r *Router) handleRegisterMachine(identity string, msg *Message) error {
	if msg.MachineID == "" {
		return &HubError{Kind: KindMalformedMessage, Message: "machine_id is required"}
	}

	record, err := r.manager.RegisterMachine(identity, msg.MachineID, msg.MachineData)
	if err != nil {
		return errMalformed(err.Error())
	}

	r.reply(identity, replyMachineRegistered(record.MachineID))

	if roomCode, ok := r.manager.RoomOf(identity); ok {
		r.manager.BroadcastToRoom(roomCode, identity, noticeMachineJoined(record))
	}
	return nil
}

// handleJoinRoom 加入房間
//
// 先向房間其他成員廣播 user_joined，再回覆加入確認
// （沿用原始協議的順序）。
func (r *Router) handleJoinRoom(identity string, msg *Message) error {
	if msg.RoomCode == "" {
		return &HubError{Kind: KindMalformedMessage, Message: "room_code is required"}
	}

	if err := r.manager.JoinRoom(identity, msg.RoomCode); err != nil {
		return errMalformed(err.Error())
	}

	r.manager.BroadcastToRoom(msg.RoomCode, identity, noticeUserJoined(identity))
	r.reply(identity, replyRoomJoined(msg.RoomCode))
	return nil
}

// handleLeaveRoom 離開房間
//
// 不在房間時同樣回覆成功（空操作不報錯）。
func (r *Router) handleLeaveRoom(identity string) error {
	r.manager.LeaveRoom(identity)
	r.reply(identity, replyRoomLeft())
	return nil
}

// handleBroadcast 房間範圍的命令廣播
//
// 指定了 target_machines 時只投遞給這些機器的擁有者，
// 否則投遞給房間內除發送者外的所有成員。
func (r *Router) handleBroadcast(identity string, msg *Message) error {
	roomCode, ok := r.manager.RoomOf(identity)
	if !ok {
		return errNotInRoom("broadcast messages")
	}

	if len(msg.TargetMachines) > 0 {
		r.manager.DeliverToMachines(msg.TargetMachines, func(machineID string) any {
			return payloadBroadcast(msg.Command, identity, machineID)
		})
		return nil
	}

	r.manager.BroadcastToRoom(roomCode, identity, payloadBroadcast(msg.Command, identity, ""))
	return nil
}

// handleNotification 房間範圍的通知
func (r *Router) handleNotification(identity string, msg *Message) error {
	roomCode, ok := r.manager.RoomOf(identity)
	if !ok {
		return errNotInRoom("send notifications")
	}

	typ := msg.Type
	if typ == "" {
		typ = "info"
	}

	r.manager.BroadcastToRoom(roomCode, identity, payloadNotification(msg.Text, typ, identity))
	return nil
}

// handlePythonExecute 轉發代碼執行請求
//
// 請求帶上發送者身份；執行方會在結果訊息中回填 original_sender，
// 結果路徑見 handlePythonOutput。中心不保存待決請求。
func (r *Router) handlePythonExecute(identity string, msg *Message) error {
	roomCode, ok := r.manager.RoomOf(identity)
	if !ok {
		return errNotInRoom("execute Python code")
	}

	if len(msg.TargetMachines) > 0 {
		r.manager.DeliverToMachines(msg.TargetMachines, func(machineID string) any {
			return payloadPythonExecute(msg.Code, identity, machineID)
		})
		return nil
	}

	r.manager.BroadcastToRoom(roomCode, identity, payloadPythonExecute(msg.Code, identity, ""))
	return nil
}

// handlePythonOutput 把執行結果投遞回原始請求者
//
// 結果的定址完全由執行方回填的 original_sender 決定；
// 請求者已離線時靜默丟棄（發後即忘的折衷，無超時、無重試）。
func (r *Router) handlePythonOutput(identity string, msg *Message) error {
	if msg.OriginalSender == "" {
		return nil
	}

	delivered := r.manager.DeliverDirect(msg.OriginalSender,
		payloadPythonResult(msg.Result, msg.Code, identity))
	if !delivered {
		r.logger.Info("執行結果無法投遞，原始請求者已離線",
			"original_sender", msg.OriginalSender,
			"executor", identity)
	}
	return nil
}

// handleNotebookExecute 轉發筆記本單元格執行請求
func (r *Router) handleNotebookExecute(identity string, msg *Message) error {
	roomCode, ok := r.manager.RoomOf(identity)
	if !ok {
		return errNotInRoom("execute notebook cells")
	}

	payload := payloadNotebookExecute(msg.Code, msg.CellID, identity)

	if len(msg.TargetMachines) > 0 {
		r.manager.DeliverToMachines(msg.TargetMachines, func(string) any {
			return payload
		})
		return nil
	}

	r.manager.BroadcastToRoom(roomCode, identity, payload)
	return nil
}

// handleNotebookResult 把單元格執行結果投遞回原始請求者
func (r *Router) handleNotebookResult(identity string, msg *Message) error {
	if msg.OriginalSender == "" {
		return nil
	}

	delivered := r.manager.DeliverDirect(msg.OriginalSender,
		payloadNotebookResult(msg.Result, msg.CellID, msg.Code, identity))
	if !delivered {
		r.logger.Info("筆記本結果無法投遞，原始請求者已離線",
			"original_sender", msg.OriginalSender,
			"executor", identity)
	}
	return nil
}

// handleDirectMessage 點對點訊息
func (r *Router) handleDirectMessage(identity string, msg *Message) error {
	if !r.manager.DeliverDirect(msg.Target, payloadDirectMessage(msg.Text, identity)) {
		return errTargetUnavailable()
	}
	return nil
}

// handleSaveNotebook 把保存請求轉發給房間其他成員
func (r *Router) handleSaveNotebook(identity string) error {
	roomCode, ok := r.manager.RoomOf(identity)
	if !ok {
		return errNotInRoom("save notebooks")
	}

	r.manager.BroadcastToRoom(roomCode, identity, payloadSaveNotebook(identity))
	return nil
}

// handleListMachines 列出房間內的機器
func (r *Router) handleListMachines(identity string) error {
	roomCode, ok := r.manager.RoomOf(identity)
	if !ok {
		return errNotInRoom("list machines")
	}

	r.reply(identity, replyMachinesList(roomCode, r.manager.MachinesInRoom(roomCode)))
	return nil
}

// reply 向發送者回覆（發後即忘）
func (r *Router) reply(identity string, payload any) {
	if !r.manager.DeliverDirect(identity, payload) {
		r.logger.Debug("回覆無法投遞", "identity", identity)
	}
}

// replyError 向發送者回覆錯誤
//
// received 僅在回顯未知動作的負載時非空。
func (r *Router) replyError(identity string, err error, received json.RawMessage) {
	var hubErr *HubError
	if !errors.As(err, &hubErr) {
		hubErr = errMalformed(err.Error())
	}
	r.reply(identity, payloadError(hubErr, received))
}
