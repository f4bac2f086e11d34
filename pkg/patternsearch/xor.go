package patternsearch

import (
	"bytes"

	"github.com/streamyara/streamyara/pkg/types"
)

// verifyXorHits brute-forces every non-zero single-byte XOR key (1-255;
// key 0, the plaintext itself, is not searched) against p's plaintext
// value and scans data for the resulting ciphertext, recording
// the key byte that produced each hit (spec §4.2 "XOR patterns: record
// the XOR key byte used by the match").
func verifyXorHits(p types.Pattern, data []byte) []Result {
	if len(p.Value) == 0 {
		return nil
	}

	var out []Result
	cipher := make([]byte, len(p.Value))

	for key := 1; key < 256; key++ {
		k := byte(key)
		for i, b := range p.Value {
			cipher[i] = b ^ k
		}
		start := 0
		for {
			idx := bytes.Index(data[start:], cipher)
			if idx < 0 {
				break
			}
			pos := start + idx
			kk := k
			out = append(out, Result{
				PatternID: p.ID,
				Range:     types.ByteRange{Start: int64(pos), End: int64(pos + len(cipher))},
				XorKey:    &kk,
			})
			start = pos + 1
		}
	}
	return out
}
