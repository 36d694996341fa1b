// Package urlenc implements the percent/plus decoding and the parameter and
// cookie extraction applied to incoming HTTP request lines and headers.
package urlenc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEncoding is returned when a percent escape is truncated or
// contains non-hex digits.
var ErrMalformedEncoding = errors.New("urlenc: malformed percent encoding")

// Decode decodes a percent/plus encoded string: "%XX" becomes the escaped
// byte, "%%" collapses to a literal '%', and '+' becomes a space.
//
// The scan is a single left-to-right pass over the input; decoded output is
// never re-examined. A '%' followed by fewer than two characters, or by
// characters that are not hex digits, fails with ErrMalformedEncoding.
func Decode(s string) (string, error) {
	if !strings.ContainsAny(s, "%+") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '%':
			if i+1 < len(s) && s[i+1] == '%' {
				b.WriteByte('%')
				i += 2
				continue
			}
			if i+2 >= len(s) {
				return "", fmt.Errorf("%w: truncated escape at offset %d", ErrMalformedEncoding, i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("%w: %q at offset %d", ErrMalformedEncoding, s[i:i+3], i)
			}
			b.WriteByte(hi<<4 | lo)
			i += 3
		case '+':
			b.WriteByte(' ')
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
