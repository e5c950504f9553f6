package ingest

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Unquote percent-decodes s. Malformed escapes are kept literally and
// byte sequences that do not form valid UTF-8 decode to U+FFFD, one per
// offending byte. '+' is not treated as a space.
func Unquote(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		buf = append(buf, c)
	}
	if utf8.Valid(buf) {
		return string(buf)
	}

	var b strings.Builder
	b.Grow(len(buf))
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(utf8.RuneError)
			buf = buf[1:]
			continue
		}
		b.Write(buf[:size])
		buf = buf[size:]
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// DecodeUnicodeEscapes replaces \uXXXX escapes with the character they
// encode. A decoded '%' is written as "%%". Every occurrence of an escape
// is replaced at once, and decoding restarts just before the replaced
// position so escapes formed by a decoded backslash are also decoded.
// Escapes without four hex digits are left untouched.
func DecodeUnicodeEscapes(s string) string {
	from := 0
	for {
		idx := strings.Index(s[from:], `\u`)
		if idx < 0 {
			return s
		}
		x := from + idx
		if x+6 > len(s) {
			return s
		}
		code := s[x : x+6]
		n, err := strconv.ParseUint(code[2:], 16, 32)
		if err != nil {
			from = x + 2
			continue
		}
		repl := string(rune(n))
		if repl == "%" {
			repl = "%%"
		}
		s = strings.ReplaceAll(s, code, repl)
		from = x
		if from > 0 {
			from--
		}
	}
}

// trimOne drops the first and last character of s.
func trimOne(s string) string {
	_, first := utf8.DecodeRuneInString(s)
	if first >= len(s) {
		return ""
	}
	s = s[first:]
	_, last := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-last]
}
