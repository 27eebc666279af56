// Package nonce maps Permit2 unordered nonces onto the contract's nonce bitmap.
//
// Permit2 stores consumed nonces per owner as 256-bit words. The upper 248 bits of a
// nonce select the word and the low 8 bits select the bit inside it, see
// SignatureTransfer.sol bitmapPositions.
package nonce

import "math/big"

var (
	one     = big.NewInt(1)
	lowMask = big.NewInt(0xff)
)

// Position splits a nonce into its bitmap word index and bit index.
func Position(n *big.Int) (word *big.Int, bit uint) {
	word = new(big.Int).Rsh(n, 8)
	bit = uint(new(big.Int).And(n, lowMask).Uint64())
	return word, bit
}

// Bit returns 1 << bit.
func Bit(bit uint) *big.Int {
	return new(big.Int).Lsh(one, bit)
}

// IsClaimed reports whether bit is already set in bitmap. It evaluates
// (bitmap ^ (1 << bit)) & (1 << bit) == 0, the same order the contract uses
// in _useUnorderedNonce.
func IsClaimed(bitmap *big.Int, bit uint) bool {
	b := Bit(bit)
	flipped := new(big.Int).Xor(bitmap, b)
	return new(big.Int).And(b, flipped).Sign() == 0
}

// Mask returns bitmap with bit set, the value submitted to invalidateUnorderedNonces.
func Mask(bitmap *big.Int, bit uint) *big.Int {
	return new(big.Int).Or(bitmap, Bit(bit))
}
