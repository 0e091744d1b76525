package extract

import "strings"

const upperhex = "0123456789ABCDEF"

// EncodeURL percent-encodes rawURL when it contains characters outside
// printable ASCII. Unreserved characters plus ':' and '/' are kept as is;
// every other byte is escaped. Printable-ASCII URLs are returned unchanged.
func EncodeURL(rawURL string) string {
	if isPrintableASCII(rawURL) {
		return rawURL
	}

	var b strings.Builder
	b.Grow(len(rawURL) * 3)
	for i := 0; i < len(rawURL); i++ {
		c := rawURL[i]
		if keepUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isPrintableASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

func keepUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~', ':', '/':
		return true
	}
	return false
}
