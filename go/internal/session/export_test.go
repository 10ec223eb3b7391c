package session

// settle waits for the background store calls issued so far.
func (s *Session) settle() {
	s.writes.Wait()
}
