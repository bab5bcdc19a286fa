package internal_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/koopa0/system-design/14-signaling-hub/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStress_ConcurrentJoinLeave 併發加入與離開
//
// 大量身份在少量房間之間反覆移動，驗證最終一致：
// 每個身份最多在一個房間，沒有空房間殘留。
func TestStress_ConcurrentJoinLeave(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	manager := internal.NewManager(testLogger())

	const clients = 100
	const rounds = 50

	for i := 0; i < clients; i++ {
		identity := fmt.Sprintf("user%d@x", i)
		manager.Connect(identity, identity+"-conn", newFakeSink())
	}

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			identity := fmt.Sprintf("user%d@x", id)
			for r := 0; r < rounds; r++ {
				room := fmt.Sprintf("room-%d", (id+r)%5)
				assert.NoError(t, manager.JoinRoom(identity, room))
				if r%3 == 0 {
					manager.LeaveRoom(identity)
				}
			}
		}(i)
	}
	wg.Wait()

	// 每個身份最多在一個房間，成員數總和與會話一致
	stats := manager.Stats()
	assert.Equal(t, clients, stats["total_clients"])

	total := 0
	rooms := stats["rooms"].(map[string]int)
	for room, members := range rooms {
		assert.Greater(t, members, 0, "空房間 %s 應已刪除", room)
		total += members
	}
	assert.LessOrEqual(t, total, clients)

	// 全部斷線後註冊表歸零
	for i := 0; i < clients; i++ {
		identity := fmt.Sprintf("user%d@x", i)
		manager.Disconnect(identity, identity+"-conn")
	}
	stats = manager.Stats()
	assert.Equal(t, 0, stats["total_clients"])
	assert.Equal(t, 0, stats["total_rooms"])
}

// TestStress_ConcurrentDispatch 併發訊息分發
//
// 成員在廣播的同時加入離開與註冊機器，驗證無 panic、
// 無死鎖，且最終的廣播仍到達所有留在房間的成員。
func TestStress_ConcurrentDispatch(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	logger := testLogger()
	manager := internal.NewManager(logger)
	router := internal.NewRouter(manager, logger)

	const members = 20
	const rounds = 30

	sinks := make([]*fakeSink, members)
	for i := 0; i < members; i++ {
		identity := fmt.Sprintf("user%d@x", i)
		sinks[i] = newFakeSink()
		manager.Connect(identity, identity+"-conn", sinks[i])
		require.NoError(t, manager.JoinRoom(identity, "arena"))
	}

	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			identity := fmt.Sprintf("user%d@x", id)
			for r := 0; r < rounds; r++ {
				switch r % 4 {
				case 0:
					router.Dispatch(identity, []byte(`{"action":"broadcast","command":"ping"}`))
				case 1:
					machineID := fmt.Sprintf("dev-%d", id)
					router.Dispatch(identity, []byte(
						`{"action":"register_machine","machine_id":"`+machineID+`"}`))
				case 2:
					router.Dispatch(identity, []byte(`{"action":"list_machines"}`))
				case 3:
					router.Dispatch(identity, []byte(`{"action":"join_room","room_code":"arena"}`))
				}
			}
		}(i)
	}
	wg.Wait()

	// 風暴過後房間完好，新的廣播到達除發送者外的所有成員
	require.Len(t, manager.RoomMembers("arena"), members)

	before := make([]int, members)
	for i := range sinks {
		before[i] = len(sinks[i].sent())
	}

	router.Dispatch("user0@x", []byte(`{"action":"broadcast","command":"final"}`))

	assert.Len(t, sinks[0].sent(), before[0], "發送者不收自己的廣播")
	for i := 1; i < members; i++ {
		got := sinks[i].last()
		require.NotNil(t, got)
		assert.Equal(t, "broadcast", got["action"])
		assert.Equal(t, "final", got["message"])
	}
}

// TestStress_DisconnectDuringDispatch 分發過程中的斷線
//
// 廣播與斷線交錯，驗證已斷線成員被安全跳過，註冊表最終乾淨。
func TestStress_DisconnectDuringDispatch(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	logger := testLogger()
	manager := internal.NewManager(logger)
	router := internal.NewRouter(manager, logger)

	const members = 30

	connect(manager, "sender@x")
	require.NoError(t, manager.JoinRoom("sender@x", "arena"))

	for i := 0; i < members; i++ {
		identity := fmt.Sprintf("user%d@x", i)
		manager.Connect(identity, identity+"-conn", newFakeSink())
		require.NoError(t, manager.JoinRoom(identity, "arena"))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := 0; r < 100; r++ {
			router.Dispatch("sender@x", []byte(`{"action":"broadcast","command":"ping"}`))
		}
	}()

	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			identity := fmt.Sprintf("user%d@x", id)
			manager.Disconnect(identity, identity+"-conn")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"sender@x"}, manager.RoomMembers("arena"))
	assert.Equal(t, 1, manager.Stats()["total_clients"])
}
