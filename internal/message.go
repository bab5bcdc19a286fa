package internal

import (
	"encoding/json"
	"fmt"
)

// 入站動作類別（封閉集合）
const (
	ActionRegisterMachine  = "register_machine"
	ActionJoinRoom         = "join_room"
	ActionLeaveRoom        = "leave_room"
	ActionBroadcast        = "broadcast"
	ActionShowNotification = "show_notification"
	ActionPythonExecute    = "python_execute"
	ActionPythonOutput     = "python_output"
	ActionNotebookExecute  = "notebook_execute"
	ActionNotebookResult   = "notebook_result"
	ActionDirectMessage    = "direct_message"
	ActionSaveNotebook     = "save_notebook"
	ActionListMachines     = "list_machines"
)

// 出站動作類別
const (
	ActionMachineRegistered = "machine_registered"
	ActionRoomJoined        = "room_joined"
	ActionRoomLeft          = "room_left"
	ActionUserJoined        = "user_joined"
	ActionMachineJoined     = "machine_joined"
	ActionMachinesList      = "machines_list"
	ActionPythonResult      = "python_result"
)

// Message 入站訊息信封
//
// 一條訊息是一個 JSON 物件，以 action 標籤區分類別，其餘欄位
// 依動作而定。這裡把所有動作的欄位攤平在同一結構上解碼，
// 各處理器只讀取自己需要的欄位；Raw 保留原始位元組，
// 未知動作的錯誤回覆需要回顯完整負載。
type Message struct {
	Action string `json:"action"`

	// register_machine
	MachineID   string       `json:"machine_id,omitempty"`
	MachineData *MachineData `json:"machine_data,omitempty"`

	// join_room
	RoomCode string `json:"room_code,omitempty"`

	// broadcast
	Command        string   `json:"command,omitempty"`
	TargetMachines []string `json:"target_machines,omitempty"`

	// show_notification / direct_message
	Text string `json:"message,omitempty"`
	Type string `json:"type,omitempty"`

	// python_execute / notebook_execute
	Code   string `json:"code,omitempty"`
	CellID string `json:"cell_id,omitempty"`

	// python_output / notebook_result
	Result         any    `json:"result,omitempty"`
	OriginalSender string `json:"original_sender,omitempty"`

	// direct_message
	Target string `json:"target,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// DecodeMessage 解碼入站訊息
//
// 解碼失敗回傳 malformed_message；動作是否可識別由路由器判斷。
func DecodeMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errMalformed(err.Error())
	}
	msg.Raw = append(json.RawMessage(nil), raw...)
	return &msg, nil
}

// 出站負載構造
//
// 欄位名與形狀沿用原始協議，客戶端按 action 欄位識別回覆類別。

func replyRoomJoined(roomCode string) map[string]any {
	return map[string]any{
		"action":    ActionRoomJoined,
		"message":   fmt.Sprintf("Joined room %s", roomCode),
		"room_code": roomCode,
	}
}

func replyRoomLeft() map[string]any {
	return map[string]any{
		"action":  ActionRoomLeft,
		"message": "Successfully left the room",
	}
}

func noticeUserJoined(identity string) map[string]any {
	return map[string]any{
		"action":  ActionUserJoined,
		"message": fmt.Sprintf("%s has joined the room", identity),
		"user":    identity,
	}
}

func replyMachineRegistered(machineID string) map[string]any {
	return map[string]any{
		"action":     ActionMachineRegistered,
		"machine_id": machineID,
		"message":    "Machine successfully registered",
	}
}

func noticeMachineJoined(record *MachineRecord) map[string]any {
	return map[string]any{
		"action":       ActionMachineJoined,
		"machine_id":   record.MachineID,
		"machine_data": record,
		"user":         record.Owner,
	}
}

func replyMachinesList(roomCode string, machines []*MachineRecord) map[string]any {
	return map[string]any{
		"action":    ActionMachinesList,
		"room_code": roomCode,
		"machines":  machines,
	}
}

func payloadBroadcast(command, sender, machineID string) map[string]any {
	payload := map[string]any{
		"action":  ActionBroadcast,
		"message": command,
		"sender":  sender,
	}
	if machineID != "" {
		payload["machine_id"] = machineID
	}
	return payload
}

func payloadNotification(text, typ, sender string) map[string]any {
	return map[string]any{
		"action":  ActionShowNotification,
		"message": text,
		"type":    typ,
		"sender":  sender,
	}
}

func payloadPythonExecute(code, sender, machineID string) map[string]any {
	payload := map[string]any{
		"action": ActionPythonExecute,
		"code":   code,
		"sender": sender,
	}
	if machineID != "" {
		payload["machine_id"] = machineID
	}
	return payload
}

func payloadPythonResult(result any, code, executor string) map[string]any {
	return map[string]any{
		"action":   ActionPythonResult,
		"result":   result,
		"code":     code,
		"executor": executor,
	}
}

func payloadNotebookExecute(code, cellID, sender string) map[string]any {
	return map[string]any{
		"action":  ActionNotebookExecute,
		"code":    code,
		"cell_id": cellID,
		"sender":  sender,
	}
}

func payloadNotebookResult(result any, cellID, code, executor string) map[string]any {
	return map[string]any{
		"action":   ActionNotebookResult,
		"result":   result,
		"cell_id":  cellID,
		"code":     code,
		"executor": executor,
	}
}

func payloadDirectMessage(text, sender string) map[string]any {
	return map[string]any{
		"action":  ActionDirectMessage,
		"message": text,
		"sender":  sender,
	}
}

func payloadSaveNotebook(sender string) map[string]any {
	return map[string]any{
		"action": ActionSaveNotebook,
		"sender": sender,
	}
}

// payloadError 錯誤回覆
//
// received 僅在回顯未知動作時帶上。
func payloadError(hubErr *HubError, received json.RawMessage) map[string]any {
	payload := map[string]any{
		"error": hubErr.Message,
		"kind":  string(hubErr.Kind),
	}
	if received != nil {
		payload["received"] = received
	}
	return payload
}
