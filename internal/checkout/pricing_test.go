package checkout

import (
	"testing"

	"checkout-service/internal/cart"

	"github.com/stretchr/testify/assert"
)

func TestComputeSnapshot_TwoUnitsWithShippingAndTax(t *testing.T) {
	lines := []cart.CartLine{
		{ProductID: "p1", Name: "Protein Powder", UnitPrice: 1000, Quantity: 2},
	}
	policy := PricingPolicy{ShippingFee: 599, TaxRateBasisPoints: 800}

	snap := ComputeSnapshot(lines, policy)

	assert.Equal(t, int64(2000), snap.Subtotal)
	assert.Equal(t, int64(599), snap.Shipping)
	assert.Equal(t, int64(160), snap.Tax)
	assert.Equal(t, int64(2759), snap.Total)
	assert.Len(t, snap.Lines, 1)
	assert.Equal(t, int64(2000), snap.Lines[0].LineTotal)
}

func TestComputeSnapshot_MultipleLines(t *testing.T) {
	lines := []cart.CartLine{
		{ProductID: "p1", UnitPrice: 1500, Quantity: 1},
		{ProductID: "p2", UnitPrice: 250, Quantity: 4},
	}
	policy := PricingPolicy{ShippingFee: 0, TaxRateBasisPoints: 0}

	snap := ComputeSnapshot(lines, policy)

	assert.Equal(t, int64(2500), snap.Subtotal)
	assert.Equal(t, int64(0), snap.Tax)
	assert.Equal(t, int64(2500), snap.Total)
	assert.Equal(t, snap.Subtotal, snap.Lines[0].LineTotal+snap.Lines[1].LineTotal)
}

func TestComputeSnapshot_TotalIntegrity(t *testing.T) {
	lines := []cart.CartLine{
		{ProductID: "p1", UnitPrice: 333, Quantity: 3},
		{ProductID: "p2", UnitPrice: 799, Quantity: 2},
	}
	policy := PricingPolicy{ShippingFee: 450, TaxRateBasisPoints: 725}

	snap := ComputeSnapshot(lines, policy)

	var lineSum int64
	for _, l := range snap.Lines {
		lineSum += l.LineTotal
	}
	assert.Equal(t, lineSum, snap.Subtotal)
	assert.Equal(t, snap.Subtotal+snap.Shipping+snap.Tax, snap.Total)
}

func TestRoundHalfEven(t *testing.T) {
	tests := []struct {
		name string
		num  int64
		den  int64
		want int64
	}{
		{"exact", 1600000, 10000, 160},
		{"below half rounds down", 12400, 10000, 1},
		{"above half rounds up", 17600, 10000, 2},
		{"tie rounds to even down", 25000, 10000, 2},
		{"tie rounds to even up", 35000, 10000, 4},
		{"zero", 0, 10000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roundHalfEven(tt.num, tt.den))
		})
	}
}
