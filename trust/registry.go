// Package trust holds the per-origin-chain allow list and the expected
// sender fingerprint of every chain.
package trust

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vitwit/xsettle/access"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/types"
)

// Entry is the trust state of one chain. An empty Fingerprint trusts any
// sender on an allowed chain.
type Entry struct {
	Fingerprint []byte
	Allowed     bool
}

// Checker is the read-only view the settlement engine depends on.
type Checker interface {
	Check(chain types.ChainSelector, sender []byte) error
}

type Registry struct {
	mu      sync.RWMutex
	entries map[types.ChainSelector]Entry
	policy  access.Policy
	emitter events.Emitter
}

var _ Checker = (*Registry)(nil)

// NewRegistry creates an empty registry administered under policy.
func NewRegistry(policy access.Policy, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &Registry{
		entries: make(map[types.ChainSelector]Entry),
		policy:  policy,
		emitter: emitter,
	}
}

// SetTrustedSender records fingerprint as the only accepted sender of chain
// and marks the chain allowed.
func (r *Registry) SetTrustedSender(caller common.Address, chain types.ChainSelector, fingerprint []byte) error {
	if err := r.policy.Authorize(caller); err != nil {
		return err
	}

	fp := bytes.Clone(fingerprint)

	r.mu.Lock()
	r.entries[chain] = Entry{Fingerprint: fp, Allowed: true}
	r.mu.Unlock()

	r.emitter.Emit(events.New(events.KindTrustedSenderSet, events.Attrs{
		"chain":       uint64(chain),
		"fingerprint": hexutil.Encode(fp),
	}))
	r.emitter.Emit(events.New(events.KindSourceChainAllowanceSet, events.Attrs{
		"chain":   uint64(chain),
		"allowed": true,
	}))
	return nil
}

// RemoveTrustedSender clears the fingerprint of chain. The allow flag is
// left untouched, so an allowed chain then accepts any sender.
func (r *Registry) RemoveTrustedSender(caller common.Address, chain types.ChainSelector) error {
	if err := r.policy.Authorize(caller); err != nil {
		return err
	}

	r.mu.Lock()
	e := r.entries[chain]
	e.Fingerprint = nil
	r.entries[chain] = e
	r.mu.Unlock()

	r.emitter.Emit(events.New(events.KindTrustedSenderSet, events.Attrs{
		"chain":       uint64(chain),
		"fingerprint": "0x",
	}))
	return nil
}

// SetSourceChainAllowed toggles chain without touching its fingerprint.
func (r *Registry) SetSourceChainAllowed(caller common.Address, chain types.ChainSelector, allowed bool) error {
	if err := r.policy.Authorize(caller); err != nil {
		return err
	}

	r.mu.Lock()
	e := r.entries[chain]
	e.Allowed = allowed
	r.entries[chain] = e
	r.mu.Unlock()

	r.emitter.Emit(events.New(events.KindSourceChainAllowanceSet, events.Attrs{
		"chain":   uint64(chain),
		"allowed": allowed,
	}))
	return nil
}

// Entry returns a copy of the trust state of chain.
func (r *Registry) Entry(chain types.ChainSelector) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[chain]
	if !ok {
		return Entry{}, false
	}
	return Entry{Fingerprint: bytes.Clone(e.Fingerprint), Allowed: e.Allowed}, true
}

// IsAuthorized reports whether sender on chain is trusted.
func (r *Registry) IsAuthorized(chain types.ChainSelector, sender []byte) bool {
	return r.Check(chain, sender) == nil
}

// Check is IsAuthorized with the reason of a rejection.
func (r *Registry) Check(chain types.ChainSelector, sender []byte) error {
	r.mu.RLock()
	e, ok := r.entries[chain]
	r.mu.RUnlock()

	if !ok || !e.Allowed {
		return types.Errorf(types.CodeUntrustedSourceChain, "source chain %d is not allowed", chain)
	}
	if len(e.Fingerprint) == 0 {
		return nil
	}
	if crypto.Keccak256Hash(e.Fingerprint) != crypto.Keccak256Hash(sender) {
		return types.Errorf(types.CodeUntrustedSender, "sender %s is not trusted on chain %d", hexutil.Encode(sender), chain)
	}
	return nil
}
