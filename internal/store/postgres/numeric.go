package postgres

import (
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// numeric wraps an integer amount for a NUMERIC column. Nil maps to zero so
// entity defaults stay well-formed.
func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		v = new(big.Int)
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

// bigFromNumeric converts a scanned NUMERIC back to an integer amount.
// All stored amounts are whole collateral units, so a positive exponent only
// shows up as trailing zeros folded into Exp.
func bigFromNumeric(n pgtype.Numeric) *big.Int {
	if !n.Valid || n.Int == nil {
		return new(big.Int)
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	}
	return v
}
