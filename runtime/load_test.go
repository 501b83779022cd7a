package runtime

import (
	"context"
	"fmt"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/infrastructure/storage"
	"nexchat/mocks"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOrchestrator_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	req := require.New(t)

	// The repository is mocked so that throughput is not bound by the disk
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	var seqMu sync.Mutex
	sequences := make(map[chat.RoomID]uint64)
	repository.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(
		func(m storage.DiskMessage) (storage.DiskMessage, error) {
			time.Sleep(200 * time.Microsecond)
			seqMu.Lock()
			defer seqMu.Unlock()
			sequences[m.Room]++
			m.Seq = sequences[m.Room]
			return m, nil
		},
	).AnyTimes()

	h := newHarness(t, testConfig(), repository)
	h.start(t)

	numRooms := 8
	clientsPerRoom := 10
	messagesPerClient := 50

	listeners := make(map[chat.RoomID]*fakeConn, numRooms)
	for r := 0; r < numRooms; r++ {
		room := chat.RoomID(fmt.Sprintf("load-%d", r))
		listeners[room] = newFakeConn()
		req.NoError(h.orchestrator.JoinRoom(room, listeners[room]))
	}

	var successCount atomic.Uint64
	var failureCount atomic.Uint64
	start := time.Now()
	var wg sync.WaitGroup

	for room := range listeners {
		for c := 0; c < clientsPerRoom; c++ {
			wg.Add(1)
			go func(room chat.RoomID, clientID int) {
				defer wg.Done()
				sender := fmt.Sprintf("user-%d", clientID)
				for j := 0; j < messagesPerClient; j++ {
					if _, err := h.orchestrator.PostMessage(context.Background(), post(room, sender, "load test message")); err != nil {
						failureCount.Add(1)
					} else {
						successCount.Add(1)
					}
				}
			}(room, c)
		}
	}
	wg.Wait()
	duration := time.Since(start)
	t.Logf("%d messages in %v (%.0f msg/s), %d rejected",
		successCount.Load(), duration, float64(successCount.Load())/duration.Seconds(), failureCount.Load())

	// Every sender waits for its reply, so no room queue can overflow
	req.Zero(failureCount.Load())
	req.Equal(uint64(numRooms*clientsPerRoom*messagesPerClient), successCount.Load())

	// Each listener saw its room in persisted order
	for room, listener := range listeners {
		var seqs []uint64
		for _, e := range listener.received() {
			if m, ok := e.(event.MessagePersisted); ok {
				seqs = append(seqs, m.Message.Seq)
			}
		}
		req.Len(seqs, clientsPerRoom*messagesPerClient, "room %s", room)
		req.IsIncreasing(seqs, "room %s", room)
	}
}
