package catalog

import "testing"

func TestPricerCompute(t *testing.T) {
	pricer := NewPricer()

	tests := []struct {
		name    string
		items   []LineItem
		want    Totals
		wantErr bool
	}{
		{
			name: "single test",
			items: []LineItem{
				{Code: "cbc", Kind: ItemTest, Quantity: 1, UnitPriceCents: 40000},
			},
			want: Totals{TotalCents: 40000, DiscountCents: 0, FinalCents: 40000},
		},
		{
			name: "test with quantity",
			items: []LineItem{
				{Code: "cbc", Kind: ItemTest, Quantity: 2, UnitPriceCents: 40000},
			},
			want: Totals{TotalCents: 80000, DiscountCents: 0, FinalCents: 80000},
		},
		{
			name: "package with discount",
			items: []LineItem{
				{Code: "full-body", Kind: ItemPackage, Quantity: 1, UnitPriceCents: 150000, ComparePriceCents: 200000},
			},
			want: Totals{TotalCents: 200000, DiscountCents: 50000, FinalCents: 150000},
		},
		{
			name: "package compare price below package price is ignored",
			items: []LineItem{
				{Code: "full-body", Kind: ItemPackage, Quantity: 1, UnitPriceCents: 150000, ComparePriceCents: 100000},
			},
			want: Totals{TotalCents: 150000, DiscountCents: 0, FinalCents: 150000},
		},
		{
			name: "mixed tests and packages",
			items: []LineItem{
				{Code: "cbc", Kind: ItemTest, Quantity: 1, UnitPriceCents: 40000},
				{Code: "full-body", Kind: ItemPackage, Quantity: 1, UnitPriceCents: 150000, ComparePriceCents: 200000},
			},
			want: Totals{TotalCents: 240000, DiscountCents: 50000, FinalCents: 190000},
		},
		{
			name:    "empty order",
			items:   nil,
			wantErr: true,
		},
		{
			name: "zero quantity",
			items: []LineItem{
				{Code: "cbc", Kind: ItemTest, Quantity: 0, UnitPriceCents: 40000},
			},
			wantErr: true,
		},
		{
			name: "zero price",
			items: []LineItem{
				{Code: "cbc", Kind: ItemTest, Quantity: 1, UnitPriceCents: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pricer.Compute(tt.items)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Compute() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
