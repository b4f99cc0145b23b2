// Package signal
// Author: momentics <momentics@gmail.com>
//
// Token-keyed callback lists. Lists are not synchronized: endpoints mutate
// and invoke them only from their poller goroutine.

package signal

import "sync/atomic"

// Token identifies one registration. Tokens are process-unique.
type Token uint64

var nextToken atomic.Uint64

// NewToken allocates a fresh token.
func NewToken() Token { return Token(nextToken.Add(1)) }

type slot[F any] struct {
	token Token
	fn    F
}

// Signal holds callbacks of type F in registration order.
type Signal[F any] struct {
	slots []slot[F]
}

// Connect appends fn under token.
func (s *Signal[F]) Connect(token Token, fn F) {
	s.slots = append(s.slots, slot[F]{token: token, fn: fn})
}

// Disconnect removes the callback registered under token.
func (s *Signal[F]) Disconnect(token Token) bool {
	for i, sl := range s.slots {
		if sl.token == token {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Each calls visit for every callback. The list is snapshotted first, so
// callbacks may register or remove others without affecting this pass.
func (s *Signal[F]) Each(visit func(F)) {
	if len(s.slots) == 0 {
		return
	}
	snap := make([]slot[F], len(s.slots))
	copy(snap, s.slots)
	for _, sl := range snap {
		visit(sl.fn)
	}
}

// Len returns the number of callbacks.
func (s *Signal[F]) Len() int { return len(s.slots) }
