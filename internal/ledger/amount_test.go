package ledger

import (
	"errors"
	"testing"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
)

func TestParseMajor(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"990", 99000},
		{"1250.5", 125050},
		{" 0.01 ", 1},
		{"-12.00", -1200},
	}
	for _, tc := range cases {
		a, err := ParseMajor("INR", tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got := MustMinor(a); got != tc.want {
			t.Fatalf("%q: want %d minor units, got %d", tc.in, tc.want, got)
		}
	}
	for _, bad := range []string{"", "ten", "1.005"} {
		if _, err := ParseMajor("INR", bad); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("%q: expected ErrInvalid, got %v", bad, err)
		}
	}
}

func TestSum(t *testing.T) {
	a, _ := FromMinor("INR", 150)
	b, _ := FromMinor("INR", -50)
	total, err := Sum("INR", a, b)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if MustMinor(total) != 100 {
		t.Fatalf("want 100, got %d", MustMinor(total))
	}
	usd, _ := FromMinor("USD", 1)
	if _, err := Sum("INR", a, usd); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("mixed currencies: expected ErrInvalid, got %v", err)
	}
}
