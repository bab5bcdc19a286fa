package internal

import "fmt"

// ErrorKind 錯誤類別
//
// 除 KindUnauthorized（連接在升級前被拒絕，無法回覆）外，
// 所有錯誤都以錯誤回覆的形式就地恢復，不關閉連接、不改動註冊表。
type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"
	KindNotInRoom         ErrorKind = "not_in_room"
	KindTargetUnavailable ErrorKind = "target_unavailable"
	KindUnknownAction     ErrorKind = "unknown_action"
	KindMalformedMessage  ErrorKind = "malformed_message"
)

// HubError 帶類別的錯誤
//
// Message 保留原始協議的英文措辭（客戶端據此顯示），
// Kind 提供機器可讀的類別，客戶端不必匹配文案。
type HubError struct {
	Kind    ErrorKind
	Message string
}

func (e *HubError) Error() string {
	return e.Message
}

// errNotInRoom 房間範圍操作在房間外發起
//
// 原始協議對每種操作有不同的措辭（"You must be in a room to ..."），
// 保留逐操作的提示語。
func errNotInRoom(verb string) *HubError {
	return &HubError{
		Kind:    KindNotInRoom,
		Message: fmt.Sprintf("You must be in a room to %s", verb),
	}
}

func errTargetUnavailable() *HubError {
	return &HubError{
		Kind:    KindTargetUnavailable,
		Message: "Target user not found or offline",
	}
}

func errUnknownAction() *HubError {
	return &HubError{
		Kind:    KindUnknownAction,
		Message: "Unknown action type",
	}
}

func errMalformed(detail string) *HubError {
	return &HubError{
		Kind:    KindMalformedMessage,
		Message: fmt.Sprintf("Failed to process message: %s", detail),
	}
}
