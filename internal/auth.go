package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Verifier 身份驗證器
//
// 把連接時出示的不透明憑證換成穩定的身份字串（email 形式的句柄），
// 或者拒絕。驗證失敗是唯一致命於連接的錯誤：連接在註冊任何狀態
// 之前被終止，無法回覆。
type Verifier interface {
	Verify(token string) (string, error)
}

// HMACVerifier 基於 HMAC-SHA256 的參考驗證器
//
// 憑證格式：base64url(identity) + "." + base64url(HMAC-SHA256(secret, base64url(identity)))
//
// 簽名比較使用 hmac.Equal（常數時間），空身份視為無效。
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier 創建驗證器
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

// Verify 驗證憑證並回傳身份
func (v *HMACVerifier) Verify(token string) (string, error) {
	unauthorized := &HubError{Kind: KindUnauthorized, Message: "invalid or missing credential"}

	payload, signature, found := strings.Cut(token, ".")
	if !found || payload == "" {
		return "", unauthorized
	}

	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return "", unauthorized
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", unauthorized
	}

	identity, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(identity) == 0 {
		return "", unauthorized
	}

	return string(identity), nil
}

// Sign 為身份簽發憑證（供測試與工具使用）
func (v *HMACVerifier) Sign(identity string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(identity))
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
