package utils

import "encoding/hex"

// HexHead returns a hex preview of at most n bytes of b.
func HexHead(b []byte, n int) string {
	if len(b) == 0 {
		return ""
	}
	if len(b) > n {
		b = b[:n]
	}
	return hex.EncodeToString(b)
}
