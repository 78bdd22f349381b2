package telnet

// session.go - per-client protocol state: the input decoder and the
// option negotiation table.

// Decoder states.
const (
	stateNormal = iota
	stateIAC    // saw IAC
	stateVerb   // saw IAC WILL/WONT/DO/DONT, option byte follows
	stateSub    // inside IAC SB ... IAC SE
	stateSubIAC // saw IAC inside a subnegotiation
)

// optMode is the settled value of one side of an option.
type optMode int

const (
	modeUnknown optMode = iota
	modeOn
	modeOff
)

// option carries the negotiation bookkeeping for one telnet option.
// The pending flags mark our own unanswered requests so the ack never
// triggers a counter-reply.
type option struct {
	us       optMode // local side: whether we perform the option
	them     optMode // remote side
	usPend   bool    // our WILL awaits DO/DONT
	themPend bool    // our DO awaits WILL/WONT
}

// Session tracks the telnet protocol state for one peer. The decoder
// state survives across Feed calls, so command sequences may be split
// at arbitrary chunk boundaries.
type Session struct {
	state int
	verb  byte
	opts  [256]option
}

func NewSession() *Session { return &Session{} }

// accepted reports whether the bridge performs opt when asked.
func accepted(opt byte) bool {
	return opt == OptEcho || opt == OptSuppressGoAhead
}

// Greeting returns the proactive offer sent once per session: we echo,
// nobody waits for go-aheads. The pending flags absorb the peer's
// acknowledgments.
func (s *Session) Greeting() []byte {
	s.opts[OptEcho].usPend = true
	s.opts[OptSuppressGoAhead].usPend = true
	s.opts[OptSuppressGoAhead].themPend = true
	return []byte{
		IAC, WILL, OptEcho,
		IAC, WILL, OptSuppressGoAhead,
		IAC, DO, OptSuppressGoAhead,
	}
}

// CharacterMode reports whether the Echo offer has been accepted.
func (s *Session) CharacterMode() bool {
	return s.opts[OptEcho].us == modeOn
}

// Feed advances the decoder over p. The returned data slice aliases
// p's prefix (plain bytes compacted in place); replies, when non-empty,
// must reach the peer before any further device data.
func (s *Session) Feed(p []byte) (data, replies []byte) {
	w := 0
	for _, c := range p {
		switch s.state {
		case stateNormal:
			if c == IAC {
				s.state = stateIAC
			} else {
				p[w] = c
				w++
			}

		case stateIAC:
			switch c {
			case IAC: // doubled IAC is a literal 0xFF
				p[w] = c
				w++
				s.state = stateNormal
			case WILL, WONT, DO, DONT:
				s.verb = c
				s.state = stateVerb
			case SB:
				s.state = stateSub
			default: // two-byte command (NOP and friends), dropped
				s.state = stateNormal
			}

		case stateVerb:
			replies = append(replies, s.negotiate(s.verb, c)...)
			s.state = stateNormal

		case stateSub:
			if c == IAC {
				s.state = stateSubIAC
			}
			// subnegotiation payload is discarded

		case stateSubIAC:
			if c == SE {
				s.state = stateNormal
			} else {
				// IAC IAC is an escaped payload byte; anything else
				// is still subnegotiation content
				s.state = stateSub
			}
		}
	}
	return p[:w], replies
}

// negotiate answers one incoming request. Every reply pairs with a
// state transition, so an identical repeated request finds the option
// already settled and stays silent; the pending flags swallow the acks
// of our own offers.
func (s *Session) negotiate(verb, opt byte) []byte {
	o := &s.opts[opt]
	ok := accepted(opt)

	switch verb {
	case DO:
		if o.usPend {
			o.usPend = false
			o.us = modeOn
			return nil
		}
		if ok && o.us != modeOn {
			o.us = modeOn
			return []byte{IAC, WILL, opt}
		}
		if !ok && o.us != modeOff {
			o.us = modeOff
			return []byte{IAC, WONT, opt}
		}

	case DONT:
		if o.usPend {
			o.usPend = false
			o.us = modeOff
			return nil
		}
		if o.us != modeOff {
			o.us = modeOff
			return []byte{IAC, WONT, opt}
		}

	case WILL:
		if o.themPend {
			o.themPend = false
			o.them = modeOn
			return nil
		}
		if ok && o.them != modeOn {
			o.them = modeOn
			return []byte{IAC, DO, opt}
		}
		if !ok && o.them != modeOff {
			o.them = modeOff
			return []byte{IAC, DONT, opt}
		}

	case WONT:
		if o.themPend {
			o.themPend = false
			o.them = modeOff
			return nil
		}
		if o.them != modeOff {
			o.them = modeOff
			return []byte{IAC, DONT, opt}
		}
	}
	return nil
}
