package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"verona/internal/ports"
)

// Stub anchors instantly in memory. Used when no LEDGER_URL is configured
// and by tests that need a cooperative collaborator.
type Stub struct {
	mu      sync.Mutex
	pending map[string]string
}

func NewStub() *Stub {
	return &Stub{pending: make(map[string]string)}
}

func (s *Stub) Submit(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "pending-" + hash[:16]
	sum := sha256.Sum256([]byte(hash))
	s.pending[ref] = "tx-" + hex.EncodeToString(sum[:8])
	return ref, nil
}

func (s *Stub) Status(_ context.Context, pendingRef string) (ports.LedgerState, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.pending[pendingRef]
	if !ok {
		return ports.LedgerFailed, "", nil
	}
	return ports.LedgerAnchored, tx, nil
}
