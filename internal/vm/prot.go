package vm

import "strings"

// Prot is a set of access rights.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec

	ProtNone Prot = 0
	ProtRO        = ProtRead
	ProtRW        = ProtRead | ProtWrite
	ProtRWX       = ProtRead | ProtWrite | ProtExec
)

// Has reports whether p includes every right in q.
func (p Prot) Has(q Prot) bool {
	return p&q == q
}

func (p Prot) String() string {
	var sb strings.Builder
	for _, r := range []struct {
		bit Prot
		c   byte
	}{{ProtRead, 'r'}, {ProtWrite, 'w'}, {ProtExec, 'x'}} {
		if p&r.bit != 0 {
			sb.WriteByte(r.c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}
