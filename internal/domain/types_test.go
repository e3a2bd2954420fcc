package domain

import "testing"

func TestParseMode(t *testing.T) {
	for _, in := range []string{"quick", " Deep ", "CRACKED"} {
		m, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
		if !m.Valid() {
			t.Fatalf("ParseMode(%q) returned invalid mode %q", in, m)
		}
	}
	if _, err := ParseMode("turbo"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestModeTier(t *testing.T) {
	cases := map[Mode]Tier{
		ModeQuick:   Tier1,
		ModeDeep:    Tier2,
		ModeCracked: Tier3,
		Mode("x"):   TierNone,
	}
	for m, want := range cases {
		if got := m.Tier(); got != want {
			t.Errorf("%q.Tier() = %s, want %s", m, got, want)
		}
	}
}

func TestTierOrderingAndNext(t *testing.T) {
	if !(TierNone < Tier1 && Tier1 < Tier2 && Tier2 < Tier3) {
		t.Fatal("tiers must be ordered")
	}
	if TierNone.Next() != Tier1 || Tier2.Next() != Tier3 || Tier3.Next() != TierNone {
		t.Fatal("unexpected Next() chain")
	}
	for _, tier := range []Tier{TierNone, Tier1, Tier2, Tier3} {
		back, err := ParseTier(tier.String())
		if err != nil || back != tier {
			t.Fatalf("ParseTier(%q) = %v, %v", tier.String(), back, err)
		}
	}
	if Tier(7).String() != "tier(7)" {
		t.Fatalf("unexpected String for out-of-range tier: %s", Tier(7))
	}
}
