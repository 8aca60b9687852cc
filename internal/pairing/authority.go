package pairing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
)

const (
	// TokenTTL is the lifetime of a pairing token.
	TokenTTL = 5 * time.Minute

	tokenLength    = 6
	deviceKeyBytes = 32
	namePrefix     = "Camera"

	// 0, O, 1, I and L are excluded, the code is read aloud ringside.
	tokenAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// Authority issues and validates short-lived pairing tokens and mints
// persistent device credentials. Exactly one token is considered
// current at a time; older ones lapse naturally.
type Authority struct {
	tokens core.TokensDBStorer
	peers  core.PeersDBStorer

	mu      sync.Mutex
	current *core.PairingToken

	now func() time.Time
}

func NewAuthority(tokens core.TokensDBStorer, peers core.PeersDBStorer) *Authority {
	return &Authority{
		tokens: tokens,
		peers:  peers,
		now:    time.Now,
	}
}

// CurrentToken returns the live unexpired token, minting a new one if
// none exists or the existing one expired or was consumed.
func (a *Authority) CurrentToken() (*core.PairingToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && a.current.Valid(a.now()) {
		return a.current, nil
	}

	code, err := randomCode()
	if err != nil {
		return nil, err
	}

	now := a.now()
	token := &core.PairingToken{
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(TokenTTL),
	}
	if err := a.tokens.Save(token); err != nil {
		return nil, err
	}

	a.current = token
	log.Info().Str("service", "pairing").Str("code", token.Code).Msg("minted pairing token")

	return token, nil
}

// Validate looks a code up case-insensitively. It returns nil for a
// token that is unknown, already used or expired, and never mutates
// state.
func (a *Authority) Validate(code string) (*core.PairingToken, error) {
	token, err := a.tokens.FindByCode(code)
	if err != nil {
		return nil, err
	}
	if token == nil || !token.Valid(a.now()) {
		return nil, nil
	}

	return token, nil
}

// Consume marks the token used. Called once per successful pairing.
func (a *Authority) Consume(code string) error {
	a.mu.Lock()
	if a.current != nil && a.current.Code == code {
		a.current.Used = true
	}
	a.mu.Unlock()

	return a.tokens.MarkUsed(code)
}

// IssueCredential generates a 256-bit cryptographically random device
// key, hex-encoded.
func (a *Authority) IssueCredential() (string, error) {
	buf := make([]byte, deviceKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}

// IssueName picks the lowest unused integer suffix among existing
// peers' display names, so names are stable and reusable after a peer
// is removed.
func (a *Authority) IssueName() (string, error) {
	peers, err := a.peers.GetAllActive()
	if err != nil {
		return "", err
	}

	taken := make(map[string]bool, len(peers))
	for _, p := range peers {
		taken[p.Name] = true
	}

	for n := 1; ; n++ {
		name := fmt.Sprintf("%s %d", namePrefix, n)
		if !taken[name] {
			return name, nil
		}
	}
}

func randomCode() (string, error) {
	code := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = tokenAlphabet[n.Int64()]
	}

	return string(code), nil
}
