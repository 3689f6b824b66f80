package workingset

import "github.com/cockroachdb/errors"

// ErrOutOfGas is a transaction-fatal condition: the meter's remaining funds
// cannot cover a debit. The caller reverts the transaction but keeps the
// gas already spent and the nonce increment, per the STF's error-isolation
// rule.
var ErrOutOfGas = errors.New("workingset: out of gas")

// GasMeter prices a multi-dimensional gas unit against a fixed price
// vector by dot product, so the zkVM can bill "native cycles" and "proof
// cycles" separately while scalar deployments just use a one-dimensional
// vector. An all-zero price dimension makes that dimension free.
type GasMeter struct {
	price     []uint64
	remaining uint64
	spent     uint64
}

// NewGasMeter creates a meter priced by price with funds available to spend.
func NewGasMeter(price []uint64, funds uint64) *GasMeter {
	return &GasMeter{price: append([]uint64(nil), price...), remaining: funds}
}

// Dimensions reports the gas vector's dimensionality.
func (g *GasMeter) Dimensions() int { return len(g.price) }

// Remaining reports the funds left to spend.
func (g *GasMeter) Remaining() uint64 { return g.remaining }

// Spent reports the cumulative amount debited so far.
func (g *GasMeter) Spent() uint64 { return g.spent }

// Debit charges unit * price (dot product) against remaining funds.
// Exhaustion returns ErrOutOfGas without mutating the meter.
func (g *GasMeter) Debit(unit []uint64) error {
	cost := dot(unit, g.price)
	if cost > g.remaining {
		return ErrOutOfGas
	}
	g.remaining -= cost
	g.spent += cost
	return nil
}

// Refund credits amount back to remaining funds and lowers Spent by the
// same amount, stopping at zero.
func (g *GasMeter) Refund(amount uint64) {
	g.remaining += amount
	if amount > g.spent {
		g.spent = 0
		return
	}
	g.spent -= amount
}

func dot(unit, price []uint64) uint64 {
	n := len(unit)
	if len(price) < n {
		n = len(price)
	}
	var sum uint64
	for i := 0; i < n; i++ {
		sum += unit[i] * price[i]
	}
	return sum
}
