// Package telnet implements the subset of the telnet protocol (RFC 854)
// a serial bridge needs: IAC escaping, WILL/WONT/DO/DONT negotiation
// toward character mode, and subnegotiation skipping.
//
// The bridge accepts exactly two options, Echo and Suppress-Go-Ahead.
// Together they switch stock telnet clients into character-at-a-time
// mode so every keystroke reaches the device immediately. Every other
// option is refused; subnegotiations are consumed and discarded.
package telnet

import "bytes"

// Telnet command bytes.
const (
	SE   = 240 // end of subnegotiation
	NOP  = 241
	SB   = 250 // start of subnegotiation
	WILL = 251
	WONT = 252
	DO   = 253
	DONT = 254
	IAC  = 255 // interpret as command
)

// Option codes the bridge negotiates.
const (
	OptEcho            = 1
	OptSuppressGoAhead = 3
)

var (
	iacOne = []byte{IAC}
	iacTwo = []byte{IAC, IAC}
)

// Escape doubles IAC bytes so device data crosses the wire literally.
// The input is returned unchanged when it contains no IAC.
func Escape(p []byte) []byte {
	if bytes.IndexByte(p, IAC) < 0 {
		return p
	}
	return bytes.ReplaceAll(p, iacOne, iacTwo)
}
