package split

import "testing"

func TestComputeExample(t *testing.T) {
	shares, err := Compute(10000, Terms{
		ClinicSplitPercent:  85,
		PlatformFeeBps:      250,
		TransactionFeeCents: 100,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if shares.ClinicAmountCents != 8150 {
		t.Fatalf("clinic amount = %d, want 8150", shares.ClinicAmountCents)
	}
	if shares.PlatformAmountCents != 1850 {
		t.Fatalf("platform amount = %d, want 1850", shares.PlatformAmountCents)
	}
	if shares.PlatformFeeCents != 350 {
		t.Fatalf("platform fee = %d, want 350", shares.PlatformFeeCents)
	}
}

func TestComputeSharesSumToGross(t *testing.T) {
	cases := []struct {
		gross int64
		terms Terms
	}{
		{10000, Terms{ClinicSplitPercent: 85, PlatformFeeBps: 250, TransactionFeeCents: 100}},
		{2990, Terms{ClinicSplitPercent: 90, PlatformFeeBps: 150, TransactionFeeCents: 50}},
		{1, Terms{ClinicSplitPercent: 100, PlatformFeeBps: 0, TransactionFeeCents: 0}},
		{333, Terms{ClinicSplitPercent: 33.3, PlatformFeeBps: 125, TransactionFeeCents: 7}},
		{999999, Terms{ClinicSplitPercent: 72.5, PlatformFeeBps: 999, TransactionFeeCents: 250}},
	}
	for _, tc := range cases {
		shares, err := Compute(tc.gross, tc.terms)
		if err != nil {
			t.Fatalf("compute(%d): %v", tc.gross, err)
		}
		if shares.ClinicAmountCents+shares.PlatformAmountCents != tc.gross {
			t.Fatalf("shares %d + %d do not sum to gross %d",
				shares.ClinicAmountCents, shares.PlatformAmountCents, tc.gross)
		}
		if shares.ClinicAmountCents < 0 || shares.PlatformAmountCents < 0 {
			t.Fatalf("negative share: %+v", shares)
		}
	}
}

func TestComputeFeeLargerThanShare(t *testing.T) {
	// Flat fee exceeds the whole clinic share: clinic gets nothing, never
	// a negative amount.
	shares, err := Compute(100, Terms{ClinicSplitPercent: 10, PlatformFeeBps: 0, TransactionFeeCents: 50})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if shares.ClinicAmountCents != 0 {
		t.Fatalf("clinic amount = %d, want 0", shares.ClinicAmountCents)
	}
	if shares.PlatformAmountCents != 100 {
		t.Fatalf("platform amount = %d, want 100", shares.PlatformAmountCents)
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	if _, err := Compute(0, Terms{ClinicSplitPercent: 85}); err == nil {
		t.Fatal("expected error for zero gross")
	}
	if _, err := Compute(-100, Terms{ClinicSplitPercent: 85}); err == nil {
		t.Fatal("expected error for negative gross")
	}
	if _, err := Compute(100, Terms{ClinicSplitPercent: 101}); err == nil {
		t.Fatal("expected error for percent over 100")
	}
	if _, err := Compute(100, Terms{ClinicSplitPercent: 85, PlatformFeeBps: -1}); err == nil {
		t.Fatal("expected error for negative bps")
	}
}
