// Package cart computes an in-progress sale. Every function takes a cart
// value and returns a new one with totals derived fresh from the full line
// list; nothing is adjusted incrementally, so a long sequence of mutations
// cannot drift. It is a calculator, not a validator: rejecting bad input
// (negative rates and the like) is the caller's job.
package cart

import (
	"math"

	"lakupos/terminal/internal/domain"
)

// DiscountKind selects how ApplyDiscount interprets its value.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountAmount     DiscountKind = "amount"
)

// New returns an empty cart, optionally bound to a customer.
func New(customerID string) domain.Cart {
	return domain.Cart{
		Lines:      []domain.CartLine{},
		CustomerID: customerID,
	}
}

// AddItem merges qty into an existing line with the same item code, or
// appends a new line. The merge key is the item code, not object identity.
func AddItem(c domain.Cart, item domain.Item, qty int) domain.Cart {
	c = clone(c)

	for i := range c.Lines {
		if c.Lines[i].ItemCode == item.Code {
			c.Lines[i].Quantity += qty
			return Recompute(c)
		}
	}

	c.Lines = append(c.Lines, domain.CartLine{
		ItemCode:      item.Code,
		ItemName:      item.Name,
		Quantity:      qty,
		UnitRateCents: item.PriceCents,
	})
	return Recompute(c)
}

// UpdateQuantity sets the quantity of the line keyed by itemCode. A quantity
// of zero or less removes the line; removing an absent line is a no-op.
func UpdateQuantity(c domain.Cart, itemCode string, qty int) domain.Cart {
	if qty <= 0 {
		return RemoveItem(c, itemCode)
	}

	c = clone(c)
	for i := range c.Lines {
		if c.Lines[i].ItemCode == itemCode {
			c.Lines[i].Quantity = qty
			break
		}
	}
	return Recompute(c)
}

// RemoveItem drops the line keyed by itemCode. Idempotent.
func RemoveItem(c domain.Cart, itemCode string) domain.Cart {
	c = clone(c)
	for i := range c.Lines {
		if c.Lines[i].ItemCode == itemCode {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			break
		}
	}
	return Recompute(c)
}

// ApplyDiscount computes an absolute discount from value and kind, clamped
// to the pre-discount subtotal so the total can never go negative.
func ApplyDiscount(c domain.Cart, value float64, kind DiscountKind) domain.Cart {
	c = clone(c)
	subtotal := subtotalCents(c.Lines)

	var discount int64
	switch kind {
	case DiscountPercentage:
		discount = int64(math.Round(float64(subtotal) * value / 100))
	default:
		discount = int64(math.Round(value))
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	c.DiscountCents = discount
	return Recompute(c)
}

// Recompute derives every line total, the line taxes, the subtotal and the
// grand total from the current line list.
func Recompute(c domain.Cart) domain.Cart {
	var subtotal, tax int64
	for i := range c.Lines {
		line := &c.Lines[i]
		gross := int64(line.Quantity) * line.UnitRateCents
		line.TotalCents = gross - line.DiscountCents + line.TaxCents
		subtotal += gross
		tax += line.TaxCents
	}

	c.SubtotalCents = subtotal
	c.TaxCents = tax
	if c.DiscountCents > subtotal {
		c.DiscountCents = subtotal
	}
	c.GrandTotalCents = subtotal - c.DiscountCents + c.TaxCents
	return c
}

// WithLineTax sets the tax amount on the line keyed by itemCode, typically
// from the item's tax rate applied against quantity*rate.
func WithLineTax(c domain.Cart, itemCode string, taxCents int64) domain.Cart {
	c = clone(c)
	for i := range c.Lines {
		if c.Lines[i].ItemCode == itemCode {
			c.Lines[i].TaxCents = taxCents
			break
		}
	}
	return Recompute(c)
}

func subtotalCents(lines []domain.CartLine) int64 {
	var subtotal int64
	for _, line := range lines {
		subtotal += int64(line.Quantity) * line.UnitRateCents
	}
	return subtotal
}

func clone(c domain.Cart) domain.Cart {
	lines := make([]domain.CartLine, len(c.Lines))
	copy(lines, c.Lines)
	c.Lines = lines
	return c
}
