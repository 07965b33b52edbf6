package babel

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Deterministic Babel-space page generator
//
// Every page is a pure function of its address string. Characters are drawn
// with a keyed PRF over the position:
//
//   page[i] = Alphabet[ U64BE(SHA-256(address || ":" || itoa(i))[:8]) mod 29 ]
//
// SHA-256 gives a uniform keyed PRF; per-position keying makes every
// character independently pseudo-random yet perfectly reproducible, and the
// mod-29 bias of a 64-bit draw is far below 2^-50. There is no hidden state,
// so generation parallelizes trivially and two processes always agree.

const (
	// PageLength is the fixed page size in symbols.
	PageLength = 3200

	// Alphabet is the 29-symbol page alphabet. The symbol order is part of
	// the wire format: space, comma, period, then a-z.
	Alphabet = " ,.abcdefghijklmnopqrstuvwxyz"

	alphabetSize = uint64(len(Alphabet))
)

// AddressToPage maps an address string to its page. Total function: any byte
// string is a valid address, including the empty string, and the same address
// always yields a byte-identical page.
func AddressToPage(address string) string {
	page := make([]byte, PageLength)

	// One reusable key buffer: address || ":" || decimal position.
	key := make([]byte, 0, len(address)+12)
	key = append(key, address...)
	key = append(key, ':')
	prefix := len(key)

	for i := 0; i < PageLength; i++ {
		key = strconv.AppendInt(key[:prefix], int64(i), 10)
		sum := sha256.Sum256(key)
		v := binary.BigEndian.Uint64(sum[:8])
		page[i] = Alphabet[v%alphabetSize]
	}
	return string(page)
}

// ValidatePage checks that a page is exactly PageLength symbols and that
// every symbol is in the alphabet. The reason string is empty when valid.
func ValidatePage(page string) (bool, string) {
	if n := utf8.RuneCountInString(page); n != PageLength {
		return false, fmt.Sprintf("page length must be %d, got %d", PageLength, n)
	}
	pos := 0
	for _, r := range page {
		if !inAlphabet(r) {
			return false, fmt.Sprintf("invalid character %q at position %d", r, pos)
		}
		pos++
	}
	return true, ""
}

// RandomAddress derives a 64-char hex address from a seed. The empty seed
// yields the canonical empty-key address, so callers wanting a fresh draw
// pass their own entropy (a UUID string, a counter) as the seed.
func RandomAddress(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ValidAddress reports whether s is hex-form: lowercase hexadecimal digits
// only, any length. The generator itself accepts arbitrary strings; hex form
// is the convention enforced at API boundaries. Empty is valid and names the
// canonical empty-key page.
func ValidAddress(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NormalizeText folds arbitrary text onto the page alphabet: lowercase,
// unsupported runes become spaces, then pad with spaces or truncate to
// exactly PageLength symbols.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(PageLength)
	for _, r := range strings.ToLower(text) {
		if b.Len() == PageLength {
			break
		}
		if inAlphabet(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	for b.Len() < PageLength {
		b.WriteByte(' ')
	}
	return b.String()
}

// TextToAddress embeds text into the space: the normalized 3200-symbol page
// is read as a base-29 integer (space=0, comma=1, period=2, a=3..z=28, most
// significant symbol first) and rendered as lowercase hex. The embedding is
// exact: textFromAddress recovers the normalized page.
func TextToAddress(text string) string {
	page := NormalizeText(text)
	v := new(big.Int)
	base := big.NewInt(int64(alphabetSize))
	digit := new(big.Int)
	for i := 0; i < len(page); i++ {
		digit.SetInt64(int64(symbolIndex(page[i])))
		v.Mul(v, base).Add(v, digit)
	}
	return v.Text(16)
}

// textFromAddress inverts TextToAddress. Returns the 3200-symbol page and
// false when the address is not valid hex or encodes symbols outside the
// page range.
func textFromAddress(address string) (string, bool) {
	v, ok := new(big.Int).SetString(address, 16)
	if !ok || v.Sign() < 0 {
		return "", false
	}
	base := big.NewInt(int64(alphabetSize))
	mod := new(big.Int)
	out := make([]byte, PageLength)
	for i := PageLength - 1; i >= 0; i-- {
		v.DivMod(v, base, mod)
		out[i] = Alphabet[mod.Int64()]
	}
	// Anything left over means the address encodes more than one page.
	if v.Sign() != 0 {
		return "", false
	}
	return string(out), true
}

func inAlphabet(r rune) bool {
	return r == ' ' || r == ',' || r == '.' || (r >= 'a' && r <= 'z')
}

// symbolIndex returns the base-29 digit of an alphabet byte.
func symbolIndex(c byte) int {
	switch c {
	case ' ':
		return 0
	case ',':
		return 1
	case '.':
		return 2
	default:
		return int(c-'a') + 3
	}
}
