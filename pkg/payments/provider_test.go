package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferenceTotalCents(t *testing.T) {
	pref := Preference{
		Lines: []Line{
			{Name: "Mug", Quantity: 2, UnitPriceCents: 1250},
			{Name: "Poster", Quantity: 1, UnitPriceCents: 999},
		},
		Shipping: &Line{Name: "std", Quantity: 1, UnitPriceCents: 500},
	}
	assert.Equal(t, int64(2*1250+999+500), pref.TotalCents())

	pref.Shipping = nil
	assert.Equal(t, int64(2*1250+999), pref.TotalCents())
}
