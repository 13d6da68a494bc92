package testutil

// DefaultSession is the token FixedSession falls back to.
const DefaultSession = "test-session-default"

// FixedSession hands out the same session token every time.
//
// Two runs of one scenario with the same FixedSession key their journal
// rows identically, which is what makes golden traces byte-stable.
//
// Thread-safety: FixedSession is stateless and safe for concurrent use.
type FixedSession struct {
	token string
}

// NewFixedSession creates a generator for token. An empty token selects
// DefaultSession.
func NewFixedSession(token string) *FixedSession {
	if token == "" {
		token = DefaultSession
	}
	return &FixedSession{token: token}
}

// Generate returns the fixed token.
func (s *FixedSession) Generate() string {
	return s.token
}
