package domain

import "testing"

func TestResolveHold(t *testing.T) {
	tests := []struct {
		name    string
		entries []LedgerEntry
		want    HoldOutcome
	}{
		{"no entries", nil, HoldAbsent},
		{"open hold", []LedgerEntry{{Type: EntryHold}}, HoldOpen},
		{"refunded", []LedgerEntry{{Type: EntryHold}, {Type: EntryRefund}}, HoldRefunded},
		{"settled", []LedgerEntry{{Type: EntryHold}, {Type: EntryEarning}}, HoldSettled},
		{"credit only", []LedgerEntry{{Type: EntryCredit}}, HoldAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveHold(tt.entries); got != tt.want {
				t.Errorf("ResolveHold() = %v, want %v", got, tt.want)
			}
		})
	}
}
