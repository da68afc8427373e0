package aggregates

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"gymroster/internal/domain/roster"
)

func TestMonthlyPaidTotal(t *testing.T) {
	rows := []roster.Row{
		{Paid: true, PaidAmount: "10,50"},
		{Paid: true, PaidAmount: "5.25"},
		{Paid: false, PaidAmount: "100"},
	}
	if got := MonthlyPaidTotal(rows); !got.Equal(decimal.RequireFromString("15.75")) {
		t.Errorf("MonthlyPaidTotal = %s, want 15.75", got)
	}

	reversed := []roster.Row{rows[2], rows[1], rows[0]}
	if !MonthlyPaidTotal(reversed).Equal(MonthlyPaidTotal(rows)) {
		t.Error("total depends on row order")
	}

	withJunk := append(rows, roster.Row{Paid: true, PaidAmount: "gratis"})
	if !MonthlyPaidTotal(withJunk).Equal(MonthlyPaidTotal(rows)) {
		t.Error("unreadable amount did not count as zero")
	}
	if !MonthlyPaidTotal(nil).IsZero() {
		t.Error("empty rows should total zero")
	}
}

func TestUnpaidEmails(t *testing.T) {
	rows := []roster.Row{
		{Paid: false, Email: "a@x.com"},
		{Paid: true, Email: "b@x.com"},
		{Paid: false, Email: ""},
		{Paid: false, Email: "c@x.com"},
	}
	got := UnpaidEmails(rows)
	want := []string{"a@x.com", "c@x.com"}
	if len(got) != len(want) {
		t.Fatalf("UnpaidEmails = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UnpaidEmails[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if UnpaidEmails([]roster.Row{{Paid: true, Email: "b@x.com"}}) != nil {
		t.Error("all paid should yield no emails")
	}
}

func TestParseInstructorAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"20", "20", false},
		{"5,50", "5.5", false},
		{" 7.25 ", "7.25", false},
		{"abc", "0", true},
		{"", "0", true},
	}
	for _, tt := range tests {
		got, err := ParseInstructorAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInstructorAmount(%q) err = %v", tt.in, err)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("err = %v, want ErrInvalidAmount", err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseInstructorAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatEuro(t *testing.T) {
	tests := map[string]string{
		"15.75": "15.75 €",
		"25.5":  "25.50 €",
		"0":     "0.00 €",
		"1.005": "1.01 €",
	}
	for in, want := range tests {
		if got := FormatEuro(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatEuro(%s) = %q, want %q", in, got, want)
		}
	}
}
