package ledger

import (
	"testing"
	"time"
)

func TestValidateSignTable(t *testing.T) {
	if err := ValidateSignTable(); err != nil {
		t.Fatalf("sign table: %v", err)
	}
}

func TestEffect(t *testing.T) {
	amt, err := FromMinor("INR", 1000)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	cases := []struct {
		cat  Category
		dir  Direction
		want int64
	}{
		{CategoryAsset, DirectionDebit, 1000},
		{CategoryAsset, DirectionCredit, -1000},
		{CategoryExpense, DirectionDebit, 1000},
		{CategoryExpense, DirectionCredit, -1000},
		{CategoryLiability, DirectionCredit, 1000},
		{CategoryLiability, DirectionDebit, -1000},
		{CategoryEquity, DirectionCredit, 1000},
		{CategoryEquity, DirectionDebit, -1000},
		{CategoryRevenue, DirectionCredit, 1000},
		{CategoryRevenue, DirectionDebit, -1000},
		{Category("asset"), DirectionDebit, 1000},
		{Category(" Revenue "), DirectionCredit, 1000},
	}
	for _, tc := range cases {
		got, err := Effect(tc.cat, tc.dir, amt)
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.cat, tc.dir, err)
		}
		if MustMinor(got) != tc.want {
			t.Fatalf("%s/%s: got %d want %d", tc.cat, tc.dir, MustMinor(got), tc.want)
		}
	}
	if _, err := Effect("BOGUS", DirectionDebit, amt); err == nil {
		t.Fatalf("expected error for unknown category")
	}
	if _, err := Effect(CategoryAsset, Direction("SIDEWAYS"), amt); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestParseCategoryAndDirection(t *testing.T) {
	if c, err := ParseCategory("liability"); err != nil || c != CategoryLiability {
		t.Fatalf("parse category: %v %v", c, err)
	}
	if _, err := ParseCategory("income"); err == nil {
		t.Fatalf("expected error for income")
	}
	if d, err := ParseDirection("credit"); err != nil || d != DirectionCredit {
		t.Fatalf("parse direction: %v %v", d, err)
	}
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	day, err := ParseDay("2024-03-05")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	start, end := DayBounds(day, loc)
	if end.Sub(start) != 24*time.Hour-time.Second {
		t.Fatalf("unexpected span %v", end.Sub(start))
	}
	if got := Day(start.Add(30*time.Minute), loc); !got.Equal(day) {
		t.Fatalf("Day(start) = %v want %v", got, day)
	}
	// 20:00 UTC on the 5th is already the 6th in IST.
	late := time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC)
	if got := FormatDay(Day(late, loc)); got != "2024-03-06" {
		t.Fatalf("Day(late) = %s", got)
	}
}
