package internal

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在多線程環境下維護會話 / 房間 / 機器三個註冊表的相互一致？
//
// 核心挑戰：
//   1. 一致性：三個映射是同一批在線身份的三個視圖，分開更新
//      時的部分失敗是正確性缺陷，不是允許的狀態
//   2. 原始實現依賴單線程事件循環，共享映射的併發變更隱式安全；
//      多線程目標必須顯式重建這個序列化
//   3. 斷線清理可能與同一身份的在途訊息併發觸發，必須冪等
//   4. 投遞解析（身份 → 連接）讀多寫少，不應被變更阻塞
//
// 設計方案：
//   ✅ 單一 RWMutex - 三個註冊表共用一個序列化域
//   ✅ 複合操作原子化 - 換房、斷線清理在一次加鎖內完成
//   ✅ 連接 ID 守衛 - 重連與斷線競態下清理不會誤傷新會話
//   ✅ 讀鎖快照 - 投遞解析走讀鎖，發送在鎖外進行

// Sink 出站訊息接收端
//
// 對註冊表而言連接是不透明的：只需要「發送一個負載」與「關閉」。
// 發送是發後即忘，失敗由調用方靜默跳過。
// 以介面抽象後，路由器與註冊表可以完全離線測試。
type Sink interface {
	Send(payload any) error
	Close() error
}

// Session 已連接且已驗證的身份
//
// 不變式：
//   - 會話存在 ⇔ 該身份有一條打開且通過驗證的連接
//   - Room 非空 ⇔ 該身份是房間目錄中該房間的成員
//     （只由 JoinRoom / leaveRoomLocked 維護，別處不得直接改寫）
type Session struct {
	Identity  string
	ConnID    string // 連接識別，用於守衛重連競態
	Room      string
	MachineID string
	sink      Sink
}

// Manager 會話 / 房間 / 機器註冊表
//
// 三個映射由同一把鎖守護（單一序列化域）：
//   - sessions：身份 → 會話
//   - rooms：房間碼 → 成員身份集合（空集合即刪，房間碼可重用）
//   - machines：機器 ID → 機器記錄
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]struct{}
	machines map[string]*MachineRecord
	logger   *slog.Logger
}

// NewManager 創建註冊表管理器
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]struct{}),
		machines: make(map[string]*MachineRecord),
		logger:   logger,
	}
}

// Connect 註冊一個已驗證身份的會話
//
// 同一身份的第二條連接會取代第一條：舊會話先完整離場
// （退房、清除機器記錄），再安裝新會話。回傳被取代的舊連接
// （若有），由調用方在鎖外關閉。
func (m *Manager) Connect(identity, connID string, sink Sink) Sink {
	m.mu.Lock()
	defer m.mu.Unlock()

	var replaced Sink
	if old, exists := m.sessions[identity]; exists {
		m.leaveRoomLocked(old)
		m.purgeMachinesLocked(identity)
		replaced = old.sink
	}

	m.sessions[identity] = &Session{
		Identity: identity,
		ConnID:   connID,
		sink:     sink,
	}

	m.logger.Info("用戶已連接",
		"identity", identity,
		"conn_id", connID,
		"replaced", replaced != nil)

	return replaced
}

// Disconnect 斷線清理
//
// 一次加鎖內完成三件事：退房（空房即刪）、清除該身份擁有的
// 全部機器記錄、移除會話。三者必須全部完成，不允許部分清理。
//
// connID 不匹配時為空操作：舊連接的延遲關閉事件不會清掉
// 重連後的新會話。重複調用同樣是空操作（冪等）。
func (m *Manager) Disconnect(identity, connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[identity]
	if !exists || sess.ConnID != connID {
		return false
	}

	m.leaveRoomLocked(sess)
	m.purgeMachinesLocked(identity)
	delete(m.sessions, identity)

	m.logger.Info("用戶已斷線",
		"identity", identity,
		"clients", len(m.sessions),
		"rooms", len(m.rooms))

	return true
}

// JoinRoom 加入房間
//
// 一個身份同時至多在一個房間：已在其他房間時先退出舊房間，
// 再加入新房間（首次加入時隱式創建）。整個換房在一次加鎖內
// 完成，外部觀察不到「同時在兩個房間」或「不在任何房間卻
// 記錄著房間碼」的中間態。重複加入同一房間是冪等的。
func (m *Manager) JoinRoom(identity, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[identity]
	if !exists {
		return fmt.Errorf("身份 %s 沒有活躍會話", identity)
	}

	m.leaveRoomLocked(sess)

	members, exists := m.rooms[roomCode]
	if !exists {
		members = make(map[string]struct{})
		m.rooms[roomCode] = members
	}
	members[identity] = struct{}{}
	sess.Room = roomCode

	m.logger.Info("用戶加入房間",
		"identity", identity,
		"room_code", roomCode,
		"members", len(members))

	return nil
}

// LeaveRoom 離開當前房間
//
// 不在任何房間時為空操作（不報錯）。回傳離開的房間碼。
func (m *Manager) LeaveRoom(identity string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[identity]
	if !exists || sess.Room == "" {
		return "", false
	}

	roomCode := sess.Room
	m.leaveRoomLocked(sess)
	return roomCode, true
}

// leaveRoomLocked 退房（需要持有寫鎖）
//
// 成員集合清空的瞬間刪除房間本身：房間除當前成員外沒有
// 任何持久身份，空房間不存在。
func (m *Manager) leaveRoomLocked(sess *Session) {
	if sess.Room == "" {
		return
	}

	if members, exists := m.rooms[sess.Room]; exists {
		delete(members, sess.Identity)
		if len(members) == 0 {
			delete(m.rooms, sess.Room)
			m.logger.Info("房間已刪除", "room_code", sess.Room)
		}
	}
	sess.Room = ""
}

// purgeMachinesLocked 清除身份擁有的全部機器記錄（需要持有寫鎖）
//
// 按擁有者掃描而非只刪會話上記錄的最後一個 ID：同一身份先後
// 註冊多台機器時，先前的記錄同樣不得懸空。被其他身份覆蓋走
// 的記錄擁有者已不是自己，不會誤刪。
func (m *Manager) purgeMachinesLocked(identity string) {
	for id, record := range m.machines {
		if record.Owner == identity {
			delete(m.machines, id)
			m.logger.Info("機器記錄已清除", "machine_id", id, "owner", identity)
		}
	}
}

// RegisterMachine 註冊或覆蓋機器記錄
//
// 同一機器 ID 的後續註冊靜默覆蓋先前的擁有者（維持原始協議的
// 寬鬆行為，跨身份碰撞不視為錯誤）。
func (m *Manager) RegisterMachine(identity, machineID string, data *MachineData) (*MachineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[identity]
	if !exists {
		return nil, fmt.Errorf("身份 %s 沒有活躍會話", identity)
	}

	var payload MachineData
	if data != nil {
		payload = *data
	}

	record := &MachineRecord{
		Owner:        identity,
		MachineID:    machineID,
		MachineData:  payload.withDefaults(),
		RegisteredAt: time.Now(),
	}

	m.machines[machineID] = record
	sess.MachineID = machineID

	m.logger.Info("機器已註冊",
		"machine_id", machineID,
		"owner", identity,
		"os", record.OS)

	return record, nil
}

// MachinesInRoom 列出房間內成員擁有的機器記錄
//
// 成員資格在調用時重新檢查而非緩存：離線擁有者的記錄已在斷線
// 時清除，別的房間的記錄不在成員集合內，結果天然排除兩者。
// 結果按機器 ID 排序，保證列表穩定。
func (m *Manager) MachinesInRoom(roomCode string) []*MachineRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, exists := m.rooms[roomCode]
	if !exists {
		return []*MachineRecord{}
	}

	records := make([]*MachineRecord, 0, len(members))
	for _, record := range m.machines {
		if _, ok := members[record.Owner]; ok {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].MachineID < records[j].MachineID
	})

	return records
}

// RoomOf 查詢身份當前所在的房間
func (m *Manager) RoomOf(identity string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, exists := m.sessions[identity]
	if !exists || sess.Room == "" {
		return "", false
	}
	return sess.Room, true
}

// RoomMembers 房間成員快照
func (m *Manager) RoomMembers(roomCode string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, exists := m.rooms[roomCode]
	if !exists {
		return nil
	}

	result := make([]string, 0, len(members))
	for identity := range members {
		result = append(result, identity)
	}
	sort.Strings(result)
	return result
}

// HasSession 查詢身份是否在線
func (m *Manager) HasSession(identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.sessions[identity]
	return exists
}

// Stats 統計快照
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomSizes := make(map[string]int, len(m.rooms))
	for code, members := range m.rooms {
		roomSizes[code] = len(members)
	}

	return map[string]any{
		"total_clients":  len(m.sessions),
		"total_rooms":    len(m.rooms),
		"total_machines": len(m.machines),
		"rooms":          roomSizes,
	}
}

// DrainSessions 清空全部註冊表並回傳所有連接（用於關閉流程）
func (m *Manager) DrainSessions() []Sink {
	m.mu.Lock()
	defer m.mu.Unlock()

	sinks := make([]Sink, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.sink != nil {
			sinks = append(sinks, sess.sink)
		}
	}

	m.sessions = make(map[string]*Session)
	m.rooms = make(map[string]map[string]struct{})
	m.machines = make(map[string]*MachineRecord)

	return sinks
}
