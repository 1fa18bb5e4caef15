// Package hash provides SHA256 fingerprinting for result cache keys. The
// fingerprint is a pure function of the prompt and every generation parameter
// that affects output, so identical requests always map to the same key.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint computes a SHA256 hash over the prompt and the output-affecting
// generation parameters. Format: "prompt|temperature|maxTokens" (pipe
// delimiter between fields, not trailing). Temperature is formatted with
// strconv.FormatFloat 'g' so that e.g. 0.5 and 0.50 collapse to one key.
func Fingerprint(prompt string, temperature float64, maxTokens int) string {
	h := sha256.New()

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("|")
	b.WriteString(strconv.FormatFloat(temperature, 'g', -1, 64))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(maxTokens))

	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}
