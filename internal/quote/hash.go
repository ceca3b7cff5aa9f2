package quote

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-core/internal/cart"
)

// HashLine is the part of a cart line that affects shipping.
type HashLine struct {
	ProductID string
	Quantity  int
	Width     decimal.Decimal
	Height    decimal.Decimal
	Length    decimal.Decimal
	Weight    decimal.Decimal
}

func (l HashLine) canonical() string {
	return fmt.Sprintf("%s:%d:%s:%s:%s:%s",
		strings.ToLower(l.ProductID), l.Quantity,
		l.Width.String(), l.Height.String(), l.Length.String(), l.Weight.String())
}

// ComputeCartHash digests the lines independent of their order. Any change to a
// quantity, a product or its physical attributes changes the hash.
func ComputeCartHash(lines []HashLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.canonical())
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// LinesFromCart extracts hash lines from a hydrated cart.
func LinesFromCart(view *cart.View) []HashLine {
	if view == nil {
		return nil
	}
	lines := make([]HashLine, 0, len(view.Items))
	for _, item := range view.Items {
		lines = append(lines, HashLine{
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
			Width:     item.Product.Width,
			Height:    item.Product.Height,
			Length:    item.Product.Length,
			Weight:    item.Product.Weight,
		})
	}
	return lines
}
