package checkout

import "checkout-service/internal/cart"

// PricingPolicy holds the configurable pricing inputs. Shipping is a flat
// fee; the tax rate is expressed in basis points (8% = 800) so the whole
// computation stays in integer minor units.
type PricingPolicy struct {
	ShippingFee        int64
	TaxRateBasisPoints int64
}

const basisPointDenominator = 10000

// SnapshotLine is one cart line priced at the moment of checkout.
type SnapshotLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// Snapshot freezes every monetary figure of an order. All values are in the
// smallest currency unit and are never recomputed after the order is created.
type Snapshot struct {
	Lines    []SnapshotLine
	Subtotal int64
	Shipping int64
	Tax      int64
	Total    int64
}

// ComputeSnapshot prices the given cart lines under the policy. Pure
// function, no I/O. Tax is rounded to the minor unit with round-half-even.
func ComputeSnapshot(lines []cart.CartLine, policy PricingPolicy) Snapshot {
	snap := Snapshot{Lines: make([]SnapshotLine, 0, len(lines))}
	for _, l := range lines {
		lineTotal := l.UnitPrice * int64(l.Quantity)
		snap.Lines = append(snap.Lines, SnapshotLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: lineTotal,
		})
		snap.Subtotal += lineTotal
	}

	snap.Shipping = policy.ShippingFee
	snap.Tax = roundHalfEven(snap.Subtotal*policy.TaxRateBasisPoints, basisPointDenominator)
	snap.Total = snap.Subtotal + snap.Shipping + snap.Tax
	return snap
}

// roundHalfEven divides num by den rounding to nearest, ties to even.
// Expects num >= 0 and den > 0.
func roundHalfEven(num, den int64) int64 {
	q := num / den
	r := num % den
	switch {
	case 2*r > den:
		q++
	case 2*r == den && q%2 != 0:
		q++
	}
	return q
}
