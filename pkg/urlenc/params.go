package urlenc

import "strings"

// ParseParameters decodes a raw query or form-urlencoded string and splits it
// into a name to value map. The whole string is percent-decoded first, then
// split on '&'; each segment is split on its first '='. A segment without '='
// yields a name with an empty value, and on duplicate names the last value
// wins.
//
// Consecutive or trailing '&' produce an entry with empty name and empty
// value. That entry is kept on purpose; see the parsing tests before changing
// this.
func ParseParameters(raw string) (map[string]string, error) {
	params := make(map[string]string)
	if raw == "" {
		return params, nil
	}

	decoded, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	for _, seg := range strings.Split(decoded, "&") {
		name, value, _ := strings.Cut(seg, "=")
		params[name] = value
	}
	return params, nil
}

// ParseCookies splits a raw Cookie header into a name to value map. Segments
// are separated by ';' and split on the first '='; leading non-printable
// characters (including the space after "; ") are trimmed from the name.
// Segments whose name or value would be empty are discarded.
//
// Cookie values are stored exactly as received: they are NOT percent-decoded,
// even when they contain escapes. Parameter and cookie handling are
// deliberately asymmetric here.
func ParseCookies(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, seg := range strings.Split(raw, ";") {
		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			continue
		}

		name := seg[:eq]
		start := 0
		for start < len(name) && !isGraph(name[start]) {
			start++
		}
		name = name[start:]

		value := seg[eq+1:]
		if name == "" || value == "" {
			continue
		}
		cookies[name] = value
	}
	return cookies
}

// isGraph reports whether c is a visible ASCII character.
func isGraph(c byte) bool {
	return c > 0x20 && c < 0x7f
}
