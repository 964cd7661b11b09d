// Package access provides the administrative capability checks used by the
// trust registry, the custody vault and the settlement engine.
package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/xsettle/types"
)

// Policy decides whether caller may perform administrative actions.
type Policy interface {
	// Authorize returns nil when caller holds the admin capability and a
	// types.ErrUnauthorized-coded error otherwise.
	Authorize(caller common.Address) error
}

// SingleOwner grants the admin capability to exactly one account.
type SingleOwner struct {
	mu    sync.RWMutex
	owner common.Address
}

var _ Policy = (*SingleOwner)(nil)

// NewSingleOwner creates a policy owned by owner.
func NewSingleOwner(owner common.Address) *SingleOwner {
	return &SingleOwner{owner: owner}
}

// Owner returns the current owner.
func (s *SingleOwner) Owner() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Authorize implements Policy.
func (s *SingleOwner) Authorize(caller common.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if caller != s.owner || caller == (common.Address{}) {
		return types.Errorf(types.CodeUnauthorized, "%s is not the owner", caller.Hex())
	}
	return nil
}

// TransferOwnership hands the admin capability to next. Only the current
// owner may call it and the zero address is rejected.
func (s *SingleOwner) TransferOwnership(caller, next common.Address) error {
	if err := s.Authorize(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return types.Errorf(types.CodeConfigError, "new owner is the zero address")
	}

	s.mu.Lock()
	s.owner = next
	s.mu.Unlock()
	return nil
}

// AdminSet grants the admin capability to a mutable set of accounts, e.g. the
// members of an operations team. Membership changes require an existing admin.
type AdminSet struct {
	mu     sync.RWMutex
	admins map[common.Address]struct{}
}

var _ Policy = (*AdminSet)(nil)

// NewAdminSet creates a policy with the given initial admins.
func NewAdminSet(admins ...common.Address) *AdminSet {
	set := &AdminSet{admins: make(map[common.Address]struct{}, len(admins))}
	for _, a := range admins {
		if a != (common.Address{}) {
			set.admins[a] = struct{}{}
		}
	}
	return set
}

// Authorize implements Policy.
func (s *AdminSet) Authorize(caller common.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.admins[caller]; !ok {
		return types.Errorf(types.CodeUnauthorized, "%s is not an admin", caller.Hex())
	}
	return nil
}

// Grant adds account to the set.
func (s *AdminSet) Grant(caller, account common.Address) error {
	if err := s.Authorize(caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return types.Errorf(types.CodeConfigError, "cannot grant the zero address")
	}

	s.mu.Lock()
	s.admins[account] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Revoke removes account from the set. The last admin cannot be removed,
// otherwise the component would become unmanageable.
func (s *AdminSet) Revoke(caller, account common.Address) error {
	if err := s.Authorize(caller); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.admins[account]; !ok {
		return nil
	}
	if len(s.admins) == 1 {
		return types.Errorf(types.CodeConfigError, "cannot revoke the last admin")
	}
	delete(s.admins, account)
	return nil
}

// Members returns the current admins in no particular order.
func (s *AdminSet) Members() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Address, 0, len(s.admins))
	for a := range s.admins {
		out = append(out, a)
	}
	return out
}
