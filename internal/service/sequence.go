package service

// sequence orders the results of remote calls. A result is applied only when its ticket
// is newer than the last applied one, so a slow earlier call never overwrites a later one.
// Not safe for concurrent use; owners guard it with their own lock.
type sequence struct {
	issued  uint64
	applied uint64
}

func (s *sequence) next() uint64 {
	s.issued++
	return s.issued
}

func (s *sequence) apply(ticket uint64) bool {
	if ticket <= s.applied {
		return false
	}
	s.applied = ticket
	return true
}

// invalidate makes every ticket issued so far stale.
func (s *sequence) invalidate() {
	s.applied = s.issued
}
