package marklog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
)

type MockMarksStorage struct {
	Marks map[core.MarkID]*core.Mark
	Acks  []*core.MarkAck
}

func NewMockMarksStorage() *MockMarksStorage {
	return &MockMarksStorage{Marks: make(map[core.MarkID]*core.Mark)}
}

func (s *MockMarksStorage) Save(mark *core.Mark) error {
	saved := *mark
	s.Marks[mark.ID] = &saved
	return nil
}

func (s *MockMarksStorage) Update(mark *core.Mark) error {
	saved := *mark
	s.Marks[mark.ID] = &saved
	return nil
}

func (s *MockMarksStorage) Delete(id core.MarkID) error {
	delete(s.Marks, id)
	return nil
}

func (s *MockMarksStorage) Find(id core.MarkID) (*core.Mark, error) {
	mark, ok := s.Marks[id]
	if !ok {
		return nil, nil
	}
	found := *mark
	return &found, nil
}

func (s *MockMarksStorage) BySession(sessionID core.SessionID) ([]*core.Mark, error) {
	out := []*core.Mark{}
	for _, mark := range s.Marks {
		if mark.SessionID == sessionID {
			out = append(out, mark)
		}
	}
	return out, nil
}

func (s *MockMarksStorage) AppendAck(ack *core.MarkAck) error {
	s.Acks = append(s.Acks, ack)
	return nil
}

func (s *MockMarksStorage) AcksByMark(id core.MarkID) ([]*core.MarkAck, error) {
	out := []*core.MarkAck{}
	for _, ack := range s.Acks {
		if ack.MarkID == id {
			out = append(out, ack)
		}
	}
	return out, nil
}

type MockSessionSource struct {
	Session *core.Session
}

func (s *MockSessionSource) CurrentRecording() *core.Session { return s.Session }

type MockBroadcaster struct {
	mu   sync.Mutex
	Sent []protocol.Message
}

func (b *MockBroadcaster) BroadcastToRecording(msg protocol.Message) {
	b.mu.Lock()
	b.Sent = append(b.Sent, msg)
	b.mu.Unlock()
}

func recordingSession() *core.Session {
	return &core.Session{
		ID:        core.SessionID("sess-1"),
		Status:    core.SessionRecording,
		StartedAt: time.Now(),
	}
}

func TestCreateMarkRequiresRecordingSession(t *testing.T) {
	l := NewMarkLog(NewMockMarksStorage(), &MockSessionSource{}, &MockBroadcaster{})

	_, err := l.CreateMark("Fall", nil)
	assert.Equal(t, ErrNoActiveSession, err)
}

func TestCreateMarkBroadcastsToRecordingPeers(t *testing.T) {
	storage := NewMockMarksStorage()
	peers := &MockBroadcaster{}
	l := NewMarkLog(storage, &MockSessionSource{Session: recordingSession()}, peers)

	mark, err := l.CreateMark("Fall", nil)
	assert.Nil(t, err)
	assert.Equal(t, "Fall", mark.Label)
	assert.Nil(t, mark.Note)
	assert.Equal(t, core.SessionID("sess-1"), mark.SessionID)

	assert.Len(t, peers.Sent, 1)
	cmd, ok := peers.Sent[0].(*protocol.MarkCommand)
	assert.True(t, ok)
	assert.Equal(t, "Fall", cmd.Payload.Label)
	assert.Equal(t, string(mark.ID), cmd.Payload.MarkID)

	stored, ok := storage.Marks[mark.ID]
	assert.True(t, ok)
	assert.Nil(t, stored.Note)
}

func TestCreateMarkDefaultLabelCounts(t *testing.T) {
	l := NewMarkLog(NewMockMarksStorage(), &MockSessionSource{Session: recordingSession()}, &MockBroadcaster{})

	first, err := l.CreateMark("", nil)
	assert.Nil(t, err)
	assert.Equal(t, "Mark 1", first.Label)

	second, err := l.CreateMark("", nil)
	assert.Nil(t, err)
	assert.Equal(t, "Mark 2", second.Label)
}

func TestOnMarkAckKeepsDuplicates(t *testing.T) {
	storage := NewMockMarksStorage()
	l := NewMarkLog(storage, &MockSessionSource{Session: recordingSession()}, &MockBroadcaster{})

	mark, err := l.CreateMark("Fall", nil)
	assert.Nil(t, err)

	assert.Nil(t, l.OnMarkAck(mark.ID, core.PeerID("p1"), 100))
	assert.Nil(t, l.OnMarkAck(mark.ID, core.PeerID("p1"), 101))

	acks, err := l.AcksByMark(mark.ID)
	assert.Nil(t, err)
	assert.Len(t, acks, 2)
}

func TestUpdateMarkEditsLabelAndNote(t *testing.T) {
	storage := NewMockMarksStorage()
	l := NewMarkLog(storage, &MockSessionSource{Session: recordingSession()}, &MockBroadcaster{})

	mark, err := l.CreateMark("Fall", nil)
	assert.Nil(t, err)

	note := "left hook, red corner"
	updated, err := l.UpdateMark(mark.ID, "Knockdown", &note)
	assert.Nil(t, err)
	assert.Equal(t, "Knockdown", updated.Label)
	assert.Equal(t, note, *updated.Note)

	_, err = l.UpdateMark(core.MarkID("missing"), "X", nil)
	assert.Equal(t, ErrUnknownMark, err)
}

func TestDeleteMark(t *testing.T) {
	storage := NewMockMarksStorage()
	l := NewMarkLog(storage, &MockSessionSource{Session: recordingSession()}, &MockBroadcaster{})

	mark, err := l.CreateMark("Fall", nil)
	assert.Nil(t, err)

	assert.Nil(t, l.DeleteMark(mark.ID))
	assert.Equal(t, ErrUnknownMark, l.DeleteMark(mark.ID))
}

func TestConcurrentCreateMarksGetDistinctDefaultLabels(t *testing.T) {
	l := NewMarkLog(NewMockMarksStorage(), &MockSessionSource{Session: recordingSession()}, &MockBroadcaster{})

	const n = 16
	var wg sync.WaitGroup
	labels := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mark, err := l.CreateMark("", nil)
			assert.Nil(t, err)
			labels <- mark.Label
		}()
	}
	wg.Wait()
	close(labels)

	seen := map[string]bool{}
	for label := range labels {
		assert.False(t, seen[label], "label %s minted twice", label)
		seen[label] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["Mark 1"])
	assert.True(t, seen["Mark 16"])
}
