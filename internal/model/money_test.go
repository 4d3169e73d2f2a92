package model

import "testing"

func TestParseCents(t *testing.T) {
	cases := []struct {
		raw     string
		want    Cents
		wantErr bool
	}{
		{"0", 0, false},
		{"1", 100, false},
		{"149.99", 14999, false},
		{"149.9", 14990, false},
		{"0.05", 5, false},
		{".50", 50, false},
		{"-12.34", -1234, false},
		{" 720.00 ", 72000, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.999", 0, true},
		{"12.3.4", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseCents(%q): expected error, got %d", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCents(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCents(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestCentsString(t *testing.T) {
	cases := []struct {
		in   Cents
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{14999, "149.99"},
		{-1234, "-12.34"},
		{72000000, "720000.00"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("Cents(%d).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	for _, value := range []Cents{0, 1, 99, 100, 14999, -250} {
		parsed, err := ParseCents(value.String())
		if err != nil {
			t.Fatalf("round trip %d: %v", value, err)
		}
		if parsed != value {
			t.Fatalf("round trip %d came back as %d", value, parsed)
		}
	}
}
