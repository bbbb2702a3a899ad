// Package triage holds the pure parts of ticket triage: error fingerprinting and
// keyword-based classification. Nothing here touches storage or fails.
package triage

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	fingerprintMessageChars = 100
	fingerprintFrameChars   = 50
	fingerprintMinWidth     = 8
	unknownComponent        = "unknown"
)

// Fingerprint returns a short stable identifier for a class of errors.
//
// The signature is component:message[:100]:firstFrame[:50], where firstFrame is the
// second line of the stack with surrounding whitespace removed. Lengths are counted in
// UTF-16 code units. The hash is deliberately coarse so repeated failures collapse into
// one ticket.
func Fingerprint(message, stack, component string) string {
	if strings.TrimSpace(component) == "" {
		component = unknownComponent
	}
	signature := component + ":" + truncateUnits(message, fingerprintMessageChars) + ":" +
		truncateUnits(firstFrame(stack), fingerprintFrameChars)

	var hash int32
	for _, unit := range utf16.Encode([]rune(signature)) {
		hash = hash*31 + int32(unit)
	}

	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	encoded := strconv.FormatInt(abs, 36)
	if len(encoded) < fingerprintMinWidth {
		encoded = strings.Repeat("0", fingerprintMinWidth-len(encoded)) + encoded
	}
	return encoded
}

func firstFrame(stack string) string {
	lines := strings.Split(stack, "\n")
	if len(lines) < 2 {
		return ""
	}
	return strings.TrimSpace(lines[1])
}

func truncateUnits(s string, n int) string {
	units := utf16.Encode([]rune(s))
	if len(units) <= n {
		return s
	}
	return string(utf16.Decode(units[:n]))
}
