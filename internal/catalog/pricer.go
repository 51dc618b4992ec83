package catalog

// Package catalog provides price calculation functionality.

import "fmt"

type ItemKind string

const (
	ItemTest    ItemKind = "test"
	ItemPackage ItemKind = "package"
)

// LineItem is a priced entry of an order being quoted. For packages,
// ComparePriceCents carries the sum of member test prices and the
// difference to UnitPriceCents becomes the discount.
type LineItem struct {
	Code              string
	Name              string
	Kind              ItemKind
	Quantity          int
	UnitPriceCents    int
	ComparePriceCents int
}

// Totals is the quoted price of an order. FinalCents is never negative.
type Totals struct {
	TotalCents    int
	DiscountCents int
	FinalCents    int
}

type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

// Compute quotes the order. The gross total uses compare prices where a
// package carries one, so the patient sees the undiscounted sum with
// the package saving broken out.
func (p *Pricer) Compute(items []LineItem) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, fmt.Errorf("at least one item is required")
	}

	var totals Totals
	for _, item := range items {
		if item.Quantity <= 0 {
			return Totals{}, fmt.Errorf("item %s has non-positive quantity", item.Code)
		}
		if item.UnitPriceCents <= 0 {
			return Totals{}, fmt.Errorf("item %s has non-positive price", item.Code)
		}

		gross := item.UnitPriceCents
		if item.Kind == ItemPackage && item.ComparePriceCents > item.UnitPriceCents {
			gross = item.ComparePriceCents
		}

		totals.TotalCents += gross * item.Quantity
		totals.DiscountCents += (gross - item.UnitPriceCents) * item.Quantity
	}

	totals.FinalCents = totals.TotalCents - totals.DiscountCents
	if totals.FinalCents < 0 {
		totals.FinalCents = 0
	}
	return totals, nil
}
