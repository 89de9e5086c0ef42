// Package cantata implements the bijective textual escape carried inside
// colon-delimited pub/sub payloads exchanged with the desktop client.
//
// Ported from cantata_codec.py's CantataCodec: a fixed, ordered table of
// substring replacements, applied in order for Encode and in reverse order
// for Decode.
package cantata

import "strings"

// replacement pairs, in encode order. The '{' substitution must precede
// the '{ob}'/'{cb}' placeholders becoming literal in the input, so this
// order matters; decode walks the table in reverse.
var table = []struct{ raw, escaped string }{
	{`"`, "{q}"},
	{"{", "{ob}"},
	{"}", "{cb}"},
	{"\n", "{n}"},
	{":", "{c}"},
}

// Encode escapes s so it can be embedded in a colon-delimited payload.
func Encode(s string) string {
	for _, p := range table {
		s = strings.ReplaceAll(s, p.raw, p.escaped)
	}
	return s
}

// Decode reverses Encode. Decode(Encode(s)) == s for all s.
func Decode(s string) string {
	for i := len(table) - 1; i >= 0; i-- {
		p := table[i]
		s = strings.ReplaceAll(s, p.escaped, p.raw)
	}
	return s
}
