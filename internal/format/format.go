// Package format renders addresses, token amounts and deadlines for display.
package format

import (
	"math/big"
	"strings"
	"time"
)

// MaxSafeInteger is the largest integer a JavaScript number holds exactly (2^53 - 1).
// Deadlines above it are not displayed.
const MaxSafeInteger = 1<<53 - 1

var maxSafe = big.NewInt(MaxSafeInteger)

// Shorten returns the first 10 and last 8 characters of an address joined by "...".
// Inputs shorter than 18 characters are returned unchanged.
func Shorten(address string) string {
	if len(address) < 18 {
		return address
	}
	return address[:10] + "..." + address[len(address)-8:]
}

// FormatUnits divides amount by 10^decimals and renders the result as a decimal
// string, keeping at least one fractional digit ("1.0", "0.25").
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0.0"
	}
	if decimals <= 0 {
		return amount.String() + ".0"
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))

	fracStr := frac.String()
	if pad := decimals - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		fracStr = "0"
	}

	out := whole.String() + "." + fracStr
	if neg {
		out = "-" + out
	}
	return out
}

// FormatDeadline renders a unix-seconds deadline in UTC. The boolean is false when
// the deadline cannot be represented without precision loss and must be omitted.
func FormatDeadline(deadline *big.Int) (string, bool) {
	if deadline == nil || deadline.Sign() < 0 || deadline.Cmp(maxSafe) > 0 {
		return "", false
	}
	return time.Unix(deadline.Int64(), 0).UTC().Format("2006-01-02 15:04:05 UTC"), true
}
