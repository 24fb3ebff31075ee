package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Address is a 20-byte account identifier in EIP-55 checksummed hex form.
type Address string

// ZeroAddress is never a valid owner or bidder.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates s and returns its checksummed form. Mixed-case input
// must carry a valid EIP-55 checksum.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	body := s[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	checksummed := checksum(strings.ToLower(body))
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && "0x"+body != checksummed {
		return "", fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
	}
	return Address(checksummed), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func checksum(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func (a Address) String() string { return string(a) }

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}
