package format

import "testing"

func TestEscape(t *testing.T) {
	got, err := Escape("ACC_cement *best* [deal]", Markdown)
	if err != nil {
		t.Fatalf("v1: %v", err)
	}
	if want := `ACC\_cement \*best\* \[deal]`; got != want {
		t.Fatalf("v1 = %q, want %q", got, want)
	}

	got, err = Escape("Rs. 350 (bag)!", MarkdownV2)
	if err != nil {
		t.Fatalf("v2: %v", err)
	}
	if want := `Rs\. 350 \(bag\)\!`; got != want {
		t.Fatalf("v2 = %q, want %q", got, want)
	}

	if _, err := Escape("x", Dialect(3)); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
	if got := MD(`a\b_c`); got != `a\b\_c` {
		t.Fatalf("MD = %q", got)
	}
}

func TestAmounts(t *testing.T) {
	if got := Amount(350); got != "350" {
		t.Fatalf("Amount(350) = %s", got)
	}
	if got := Amount(18.5); got != "18.5" {
		t.Fatalf("Amount(18.5) = %s", got)
	}
	if got := Delivery(0); got != "Free" {
		t.Fatalf("Delivery(0) = %s", got)
	}
	if got := Delivery(50); got != "₹50" {
		t.Fatalf("Delivery(50) = %s", got)
	}
	if got := AmountOr(nil, "-"); got != "-" {
		t.Fatalf("AmountOr(nil) = %s", got)
	}
	if got := OrDefault("", "Any"); got != "Any" {
		t.Fatalf("OrDefault = %s", got)
	}
}
