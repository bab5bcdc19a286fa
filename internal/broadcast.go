package internal

// 廣播引擎：房間廣播、機器定向投遞、單點投遞。
//
// 三者遵循同一模式：持讀鎖解析出接收端快照，釋放鎖後逐一發送。
// 發送不持鎖，慢連接不會阻塞註冊表變更；快照之後的成員變動
// 不影響本次投遞（廣播對當前成員的快照執行到底，無取消概念）。
// 連接已關閉或缺失的接收者靜默跳過，成員資格的清理只經由
// 顯式斷線，投遞失敗不觸發。

// BroadcastToRoom 向房間內除 exclude 外的所有成員投遞負載
//
// 回傳實際送達的數量。房間不存在時投遞零條，不視為錯誤。
func (m *Manager) BroadcastToRoom(roomCode, exclude string, payload any) int {
	m.mu.RLock()
	sinks := make([]Sink, 0)
	if members, exists := m.rooms[roomCode]; exists {
		for identity := range members {
			if identity == exclude {
				continue
			}
			if sess, ok := m.sessions[identity]; ok && sess.sink != nil {
				sinks = append(sinks, sess.sink)
			}
		}
	}
	m.mu.RUnlock()

	sent := 0
	for _, sink := range sinks {
		if err := sink.Send(payload); err == nil {
			sent++
		}
	}

	if sent > 0 {
		m.logger.Debug("房間廣播完成",
			"room_code", roomCode,
			"exclude", exclude,
			"sent", sent)
	}
	return sent
}

// DeliverToMachines 向指定機器的擁有者投遞負載
//
// 每個機器 ID 解析為其擁有者的連接；build 以機器 ID 構造逐台的
// 負載（定向投遞的負載帶 machine_id 欄位）。未註冊的 ID 或
// 擁有者離線時靜默跳過。
func (m *Manager) DeliverToMachines(machineIDs []string, build func(machineID string) any) int {
	type target struct {
		machineID string
		sink      Sink
	}

	m.mu.RLock()
	targets := make([]target, 0, len(machineIDs))
	for _, id := range machineIDs {
		record, exists := m.machines[id]
		if !exists {
			continue
		}
		if sess, ok := m.sessions[record.Owner]; ok && sess.sink != nil {
			targets = append(targets, target{machineID: id, sink: sess.sink})
		}
	}
	m.mu.RUnlock()

	sent := 0
	for _, t := range targets {
		if err := t.sink.Send(build(t.machineID)); err == nil {
			sent++
		}
	}
	return sent
}

// DeliverDirect 向單一身份投遞負載
//
// 目標不在線或發送失敗時回傳 false，由調用方決定是否回覆
// target_unavailable。
func (m *Manager) DeliverDirect(identity string, payload any) bool {
	m.mu.RLock()
	sess, exists := m.sessions[identity]
	var sink Sink
	if exists {
		sink = sess.sink
	}
	m.mu.RUnlock()

	if sink == nil {
		return false
	}
	return sink.Send(payload) == nil
}
