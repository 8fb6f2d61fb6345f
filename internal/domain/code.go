package domain

import "crypto/rand"

// codeAlphabet omits 0/O, 1/I/L and lowercase so codes survive being read
// aloud or typed from a projector.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// CodeLength is the fixed length of session join codes.
const CodeLength = 6

// NewJoinCode returns a random fixed-length join code drawn uniformly from
// the unambiguous alphabet. Uniqueness against live sessions is the caller's
// responsibility.
func NewJoinCode() string {
	// reject bytes above the largest multiple of the alphabet size so every
	// glyph is equally likely
	const limit = byte(256 - 256%len(codeAlphabet))
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength)
	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out)
}
