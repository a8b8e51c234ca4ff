package symbol

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2330", "2330.TW"},
		{"2330.tw", "2330.TW"},
		{"6446.two", "6446.TWO"},
		{"4958.ootc", "4958.OOTC"},
		{"AAPL", "AAPL"},
		{"aapl", "AAPL"},
		{" 2330 ", "2330.TW"},
		{"00878", "00878.TW"},
		{"BRK.B", "BRK.B"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestQuerySymbol(t *testing.T) {
	if got := QuerySymbol("6446.TWO"); got != "6446.OOTC" {
		t.Fatalf("QuerySymbol(6446.TWO) = %q, want 6446.OOTC", got)
	}
	if got := QuerySymbol("2330.TW"); got != "2330.TW" {
		t.Fatalf("QuerySymbol(2330.TW) = %q, want unchanged", got)
	}
	if got := QuerySymbol("AAPL"); got != "AAPL" {
		t.Fatalf("QuerySymbol(AAPL) = %q, want unchanged", got)
	}
}

func TestIsTaiwan(t *testing.T) {
	for sym, want := range map[string]bool{
		"2330.TW":   true,
		"6446.TWO":  true,
		"4958.OOTC": true,
		"AAPL":      false,
	} {
		if got := IsTaiwan(sym); got != want {
			t.Fatalf("IsTaiwan(%q) = %v, want %v", sym, got, want)
		}
	}
}

func TestNameKey(t *testing.T) {
	if got := NameKey("4958.OOTC"); got != "4958.TWO" {
		t.Fatalf("NameKey(4958.OOTC) = %q, want 4958.TWO", got)
	}
	if got := NameKey("2330.TW"); got != "2330.TW" {
		t.Fatalf("NameKey(2330.TW) = %q, want unchanged", got)
	}
}

func TestCode(t *testing.T) {
	if got := Code("2330.TW"); got != "2330" {
		t.Fatalf("Code(2330.TW) = %q", got)
	}
	if got := Code("AAPL"); got != "AAPL" {
		t.Fatalf("Code(AAPL) = %q", got)
	}
}
