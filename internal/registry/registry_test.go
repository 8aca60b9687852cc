package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
)

type MockChannel struct {
	Written [][]byte
	Closed  bool
	MockErr error
}

func (c *MockChannel) Write(msg []byte) error {
	if c.MockErr != nil {
		return c.MockErr
	}
	c.Written = append(c.Written, msg)
	return nil
}

func (c *MockChannel) Close() error {
	c.Closed = true
	return nil
}

type MockPeersStorage struct {
	core.PeersDBStorer
	TouchedIDs []core.PeerID
	SlotByID   map[core.PeerID]*string
}

func NewMockPeersStorage() *MockPeersStorage {
	return &MockPeersStorage{SlotByID: make(map[core.PeerID]*string)}
}

func (s *MockPeersStorage) Touch(id core.PeerID, seenAt time.Time) error {
	s.TouchedIDs = append(s.TouchedIDs, id)
	return nil
}

func (s *MockPeersStorage) SetSlot(id core.PeerID, slot *string) error {
	s.SlotByID[id] = slot
	return nil
}

func testPeer(id string) *core.Peer {
	return &core.Peer{
		ID:        core.PeerID(id),
		DeviceKey: "key-" + id,
		Name:      "Camera 1",
		Active:    true,
	}
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestRegisterAndRemove(t *testing.T) {
	r := NewRegistry(NewMockPeersStorage())

	ch := &MockChannel{}
	state := r.Register(testPeer("p1"), ch)
	assert.Equal(t, Paired, state.State)
	assert.Equal(t, 1, r.Count())

	r.Remove(core.PeerID("p1"))
	assert.Equal(t, 0, r.Count())

	_, ok := r.Get(core.PeerID("p1"))
	assert.False(t, ok)
}

func TestRegisterReplacesStaleConnection(t *testing.T) {
	r := NewRegistry(NewMockPeersStorage())

	stale := &MockChannel{}
	r.Register(testPeer("p1"), stale)

	fresh := &MockChannel{}
	r.Register(testPeer("p1"), fresh)

	assert.Equal(t, 1, r.Count())
	assert.True(t, stale.Closed)
}

func TestTelemetryDrivesRecordingTag(t *testing.T) {
	peers := NewMockPeersStorage()
	r := NewRegistry(peers)
	r.Register(testPeer("p1"), &MockChannel{})

	r.UpdateTelemetry(core.PeerID("p1"), TelemetryUpdate{
		Battery:   floatPtr(0.7),
		Recording: boolPtr(true),
	})

	state, ok := r.Get(core.PeerID("p1"))
	assert.True(t, ok)
	assert.Equal(t, Recording, state.State)
	assert.Equal(t, 0.7, state.Battery)
	assert.Equal(t, []core.PeerID{core.PeerID("p1")}, peers.TouchedIDs)

	// partial update leaves battery untouched
	r.UpdateTelemetry(core.PeerID("p1"), TelemetryUpdate{Recording: boolPtr(false)})

	state, _ = r.Get(core.PeerID("p1"))
	assert.Equal(t, Paired, state.State)
	assert.Equal(t, 0.7, state.Battery)
}

func TestBroadcastToRecordingFilters(t *testing.T) {
	r := NewRegistry(NewMockPeersStorage())

	recording := &MockChannel{}
	idle := &MockChannel{}
	r.Register(testPeer("p1"), recording)
	r.Register(testPeer("p2"), idle)

	r.UpdateTelemetry(core.PeerID("p1"), TelemetryUpdate{Recording: boolPtr(true)})

	r.BroadcastToRecording(protocol.NewMarkCommand("sess-1", protocol.MarkPayload{MarkID: "m1", Label: "Fall"}))

	assert.Len(t, recording.Written, 1)
	assert.Len(t, idle.Written, 0)
}

func TestBroadcastReachesEveryPeer(t *testing.T) {
	r := NewRegistry(NewMockPeersStorage())

	a := &MockChannel{}
	b := &MockChannel{}
	r.Register(testPeer("p1"), a)
	r.Register(testPeer("p2"), b)

	r.Broadcast(protocol.NewStopRecord("sess-1"))

	assert.Len(t, a.Written, 1)
	assert.Len(t, b.Written, 1)
}

func TestSendSwallowsTransportErrors(t *testing.T) {
	r := NewRegistry(NewMockPeersStorage())

	broken := &MockChannel{MockErr: errors.New("pipe closed")}
	r.Register(testPeer("p1"), broken)

	r.Send(core.PeerID("p1"), protocol.NewPing("p1", 42))

	// a failed send does not remove the peer
	assert.Equal(t, 1, r.Count())
}

func TestSetSlotPersistsAndPushes(t *testing.T) {
	peers := NewMockPeersStorage()
	r := NewRegistry(peers)

	ch := &MockChannel{}
	r.Register(testPeer("p1"), ch)

	slot := "red corner"
	assert.Nil(t, r.SetSlot(core.PeerID("p1"), &slot))

	stored, ok := peers.SlotByID[core.PeerID("p1")]
	assert.True(t, ok)
	assert.Equal(t, "red corner", *stored)

	assert.Len(t, ch.Written, 1)

	msg, err := protocol.Decode(ch.Written[0])
	assert.Nil(t, err)
	assert.Equal(t, protocol.AuthOkKind, msg.GetKind())
}

func TestSnapshotDetachedFromLiveMutations(t *testing.T) {
	r := NewRegistry(NewMockPeersStorage())
	r.Register(testPeer("p1"), &MockChannel{})

	before := r.Snapshot()[0]
	seenBefore := before.Identity.LastSeenAt

	r.UpdateTelemetry(core.PeerID("p1"), TelemetryUpdate{Battery: floatPtr(0.5)})
	slot := "red-corner"
	assert.Nil(t, r.SetSlot(core.PeerID("p1"), &slot))

	// the earlier snapshot is unaffected, identity included
	assert.Equal(t, float64(0), before.Battery)
	assert.Nil(t, before.Identity.Slot)
	assert.Equal(t, seenBefore, before.Identity.LastSeenAt)

	after, ok := r.Get(core.PeerID("p1"))
	assert.True(t, ok)
	assert.Equal(t, 0.5, after.Battery)
	assert.Equal(t, &slot, after.Identity.Slot)

	// telemetry writes and snapshot reads may interleave freely
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			r.UpdateTelemetry(core.PeerID("p1"), TelemetryUpdate{Battery: floatPtr(float64(i))})
		}
	}()
	for i := 0; i < 500; i++ {
		for _, state := range r.Snapshot() {
			_ = state.Identity.LastSeenAt
		}
	}
	<-done
}
