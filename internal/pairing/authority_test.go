package pairing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
)

type MockTokensStorage struct {
	tokens map[string]*core.PairingToken
}

func NewMockTokensStorage() *MockTokensStorage {
	return &MockTokensStorage{tokens: make(map[string]*core.PairingToken)}
}

func (s *MockTokensStorage) Save(token *core.PairingToken) error {
	stored := *token
	stored.Code = strings.ToUpper(token.Code)
	s.tokens[stored.Code] = &stored
	return nil
}

func (s *MockTokensStorage) FindByCode(code string) (*core.PairingToken, error) {
	token, ok := s.tokens[strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	found := *token
	return &found, nil
}

func (s *MockTokensStorage) MarkUsed(code string) error {
	if token, ok := s.tokens[strings.ToUpper(code)]; ok {
		token.Used = true
	}
	return nil
}

type MockPeersStorage struct {
	core.PeersDBStorer
	peers []*core.Peer
}

func (s *MockPeersStorage) GetAllActive() ([]*core.Peer, error) {
	return s.peers, nil
}

func newTestAuthority() (*Authority, *MockTokensStorage, *MockPeersStorage) {
	tokens := NewMockTokensStorage()
	peers := &MockPeersStorage{}
	return NewAuthority(tokens, peers), tokens, peers
}

func TestCurrentTokenMintsAndReuses(t *testing.T) {
	authority, _, _ := newTestAuthority()

	first, err := authority.CurrentToken()
	assert.Nil(t, err)
	assert.Len(t, first.Code, 6)

	second, err := authority.CurrentToken()
	assert.Nil(t, err)
	assert.Equal(t, first.Code, second.Code)
}

func TestCurrentTokenMintsAfterExpiry(t *testing.T) {
	authority, _, _ := newTestAuthority()

	base := time.Now()
	authority.now = func() time.Time { return base }

	first, err := authority.CurrentToken()
	assert.Nil(t, err)

	authority.now = func() time.Time { return base.Add(TokenTTL + time.Second) }

	second, err := authority.CurrentToken()
	assert.Nil(t, err)
	assert.NotEqual(t, first.Code, second.Code)
}

func TestValidateSucceedsExactlyOnce(t *testing.T) {
	authority, _, _ := newTestAuthority()

	token, err := authority.CurrentToken()
	assert.Nil(t, err)

	found, err := authority.Validate(strings.ToLower(token.Code))
	assert.Nil(t, err)
	assert.NotNil(t, found)

	assert.Nil(t, authority.Consume(token.Code))

	again, err := authority.Validate(token.Code)
	assert.Nil(t, err)
	assert.Nil(t, again)
}

func TestValidateExpiryBoundary(t *testing.T) {
	authority, tokens, _ := newTestAuthority()

	issued := time.Now()
	assert.Nil(t, tokens.Save(&core.PairingToken{
		Code:      "AB12CD",
		CreatedAt: issued,
		ExpiresAt: issued.Add(TokenTTL),
	}))

	authority.now = func() time.Time { return issued.Add(4*time.Minute + 59*time.Second) }
	found, err := authority.Validate("AB12CD")
	assert.Nil(t, err)
	assert.NotNil(t, found)

	authority.now = func() time.Time { return issued.Add(5 * time.Minute) }
	found, err = authority.Validate("AB12CD")
	assert.Nil(t, err)
	assert.Nil(t, found)
}

func TestValidateUnknownCode(t *testing.T) {
	authority, _, _ := newTestAuthority()

	found, err := authority.Validate("NOSUCH")
	assert.Nil(t, err)
	assert.Nil(t, found)
}

func TestIssueCredential(t *testing.T) {
	authority, _, _ := newTestAuthority()

	key, err := authority.IssueCredential()
	assert.Nil(t, err)
	assert.Len(t, key, 64)

	other, err := authority.IssueCredential()
	assert.Nil(t, err)
	assert.NotEqual(t, key, other)
}

func TestIssueNamePicksLowestFreeSuffix(t *testing.T) {
	authority, _, peers := newTestAuthority()

	name, err := authority.IssueName()
	assert.Nil(t, err)
	assert.Equal(t, "Camera 1", name)

	peers.peers = []*core.Peer{
		{Name: "Camera 1"},
		{Name: "Camera 3"},
	}

	name, err = authority.IssueName()
	assert.Nil(t, err)
	assert.Equal(t, "Camera 2", name)
}
