// Package ctf derives the content-addressed collection and position
// identifiers used by the conditional-token contract. The derivation is a
// deterministic map-to-curve x-coordinate search over the alt_bn128 base
// field, matching the on-chain CTHelpers library bit for bit.
package ctf

import "math/big"

// FieldPrime is the alt_bn128 base field order.
var FieldPrime, _ = new(big.Int).SetString(
	"21888242871839275222246405745257275088696311157297823662689037894645226208583", 10)

// curveB is the constant term of the curve equation y² = x³ + 3.
var curveB = big.NewInt(3)

// legendreExp is (P-1)/2, the Euler-criterion exponent.
var legendreExp = new(big.Int).Rsh(new(big.Int).Sub(FieldPrime, big.NewInt(1)), 1)

// AddMod returns (a + b) mod P. Inputs must be non-negative.
func AddMod(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(a, b), FieldPrime)
}

// MulMod returns (a · b) mod P. Inputs must be non-negative.
func MulMod(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), FieldPrime)
}

// PowMod returns a^e mod P by square-and-multiply.
func PowMod(a, e *big.Int) *big.Int {
	base := new(big.Int).Set(a)
	exp := new(big.Int).Set(e)
	result := big.NewInt(1)

	for exp.Sign() != 0 {
		if exp.Bit(0) == 1 {
			result = MulMod(result, base)
		}
		base = MulMod(base, base)
		exp.Rsh(exp, 1)
	}
	return result
}

// Legendre returns a^((P-1)/2) mod P. The result is 1 when a is a non-zero
// quadratic residue, P-1 when it is a non-residue, and 0 when a ≡ 0.
func Legendre(a *big.Int) *big.Int {
	return PowMod(a, legendreExp)
}

// IsQuadraticResidue reports whether y² = a (mod P) has a solution for a ≠ 0.
func IsQuadraticResidue(a *big.Int) bool {
	return Legendre(a).Cmp(big.NewInt(1)) == 0
}
