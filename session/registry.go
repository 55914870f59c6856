// Package session tracks the per-connection identities the protocol core
// hands out: reusable display-name slots, opaque channel tokens, and the
// power claims (power + passcode) that let a client reclaim its seat with
// IAM after reconnecting.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownToken   = errors.New("channel token is not registered")
	ErrBadPasscode    = errors.New("passcode does not match the power's claim")
	ErrUnclaimedPower = errors.New("power has no registered claim")
)

// Token is an opaque session credential tying a connection to an
// identity.
type Token string

type claim struct {
	passcode int
	holder   Token // zero value while the seat is vacant
}

// Registry is the user/session collaborator. One per server process.
type Registry struct {
	mu sync.Mutex

	freeNames []string
	nextName  int
	names     map[Token]string

	claims map[string]*claim
}

func NewRegistry() *Registry {
	return &Registry{
		names:  make(map[Token]string),
		claims: make(map[string]*claim),
	}
}

// AcquireName hands out a display-name slot, reusing released slots
// before minting new ones.
func (r *Registry) AcquireName() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.freeNames); n > 0 {
		name := r.freeNames[n-1]
		r.freeNames = r.freeNames[:n-1]

		return name
	}

	r.nextName++

	return fmt.Sprintf("conn-%d", r.nextName)
}

// ReleaseName returns a display-name slot to the pool.
func (r *Registry) ReleaseName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.freeNames = append(r.freeNames, name)
}

// Issue mints a channel token for a named connection.
func (r *Registry) Issue(name string) Token {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has bigger problems.
		panic(err)
	}

	tok := Token(hex.EncodeToString(buf))

	r.mu.Lock()
	defer r.mu.Unlock()

	r.names[tok] = name

	return tok
}

// Drop forgets a token and releases any power seat it held.
func (r *Registry) Drop(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.names, tok)

	for _, c := range r.claims {
		if c.holder == tok {
			c.holder = ""
		}
	}
}

// Holder returns the display name behind a token.
func (r *Registry) Holder(tok Token) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.names[tok]

	return name, ok
}

// RegisterClaim records a power's passcode at game start and seats the
// given token.
func (r *Registry) RegisterClaim(power string, passcode int, tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.claims[power] = &claim{passcode: passcode, holder: tok}
}

// Reclaim seats a token on a power if the passcode matches. The previous
// holder, if any, loses the seat.
func (r *Registry) Reclaim(power string, passcode int, tok Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[power]
	if !ok {
		return fmt.Errorf("%s: %w", power, ErrUnclaimedPower)
	}

	if c.passcode != passcode {
		return fmt.Errorf("%s: %w", power, ErrBadPasscode)
	}

	c.holder = tok

	return nil
}

// PowerOf returns the power a token currently holds.
func (r *Registry) PowerOf(tok Token) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for power, c := range r.claims {
		if c.holder == tok {
			return power, true
		}
	}

	return "", false
}

// Passcode returns a power's passcode; only the dispatch layer calls
// this, to build the HLO it sends to the power's own connection.
func (r *Registry) Passcode(power string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[power]
	if !ok {
		return 0, false
	}

	return c.passcode, true
}
