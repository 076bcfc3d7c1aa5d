package pairing

import (
	"crypto/rand"
	"fmt"
)

// Unambiguous alphabet: no O/0 or I/1. Its 32 symbols divide 256 evenly, so
// reducing a random byte modulo its length is unbiased.
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator mints a fresh pairing code.
type CodeGenerator func() string

// GenerateCode returns a random code in XXXX-XXXX form.
func GenerateCode() string {
	return fmt.Sprintf("%s-%s", randomChars(4), randomChars(4))
}

func randomChars(n int) string {
	out := make([]byte, n)
	// rand.Read never returns an error; it aborts the process if the OS
	// source fails.
	_, _ = rand.Read(out)
	for i, b := range out {
		out[i] = codeChars[int(b)%len(codeChars)]
	}
	return string(out)
}
