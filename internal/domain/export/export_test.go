package export

import (
	"testing"

	"gymroster/internal/domain/roster"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"yoga.csv", FormatCSV, false},
		{"out/Yoga-Ottobre.XLSX", FormatXLSX, false},
		{"sheet.json", FormatJSON, false},
		{"notes.txt", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := FormatForPath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatForPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("FormatForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSheetRows_TrimsAndDropsBlanks(t *testing.T) {
	s := Sheet{Records: []Record{
		{FirstName: "  Anna "},
		{MemberID: "m-9"},
		{},
	}}
	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].FirstName != "Anna" {
		t.Errorf("FirstName = %q, want trimmed", rows[0].FirstName)
	}
}

func TestNewSheet_CarriesRemoteID(t *testing.T) {
	s := NewSheet(roster.Key{Course: "Yoga", Month: "Ottobre-2025"}, []roster.Row{{FirstName: "Anna", RemoteID: "m-1"}})
	if s.Records[0].MemberID != "m-1" {
		t.Errorf("MemberID = %q, want m-1", s.Records[0].MemberID)
	}
	if got := s.Records[0].Row(); got.RemoteID != "m-1" {
		t.Errorf("Row().RemoteID = %q, want m-1", got.RemoteID)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "sì", "x", " on "} {
		if !ParseBool(s) {
			t.Errorf("ParseBool(%q) = false", s)
		}
	}
	for _, s := range []string{"", "false", "no", "0"} {
		if ParseBool(s) {
			t.Errorf("ParseBool(%q) = true", s)
		}
	}
}
