package internal

import "time"

// MachineData 機器描述資料
//
// 欄位全部可選，註冊時由客戶端自行上報（作業系統、平台、主機名、
// CPU 數量、記憶體總量與可用量、能力列表）。缺省值在註冊時補齊。
type MachineData struct {
	OS              string   `json:"os"`
	Platform        string   `json:"platform"`
	Hostname        string   `json:"hostname"`
	CPUCount        int      `json:"cpu_count"`
	MemoryTotal     int64    `json:"memory_total"`
	MemoryAvailable int64    `json:"memory_available"`
	Capabilities    []string `json:"capabilities"`
}

// withDefaults 補齊缺省欄位
func (d MachineData) withDefaults() MachineData {
	if d.OS == "" {
		d.OS = "unknown"
	}
	if d.Platform == "" {
		d.Platform = "unknown"
	}
	if d.Hostname == "" {
		d.Hostname = "unknown"
	}
	if d.Capabilities == nil {
		d.Capabilities = []string{}
	}
	return d
}

// MachineRecord 已註冊的機器
//
// 機器 ID 由註冊方提供，同一 ID 的後續註冊會靜默覆蓋先前的擁有者
// （跨身份的 ID 碰撞是允許的，維持原始協議的寬鬆行為）。
// 擁有者斷線時記錄被清除，不允許懸空。
type MachineRecord struct {
	Owner     string `json:"email"`
	MachineID string `json:"machine_id"`
	MachineData
	RegisteredAt time.Time `json:"registered_at"`
}
