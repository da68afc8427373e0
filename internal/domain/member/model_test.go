package member_test

import (
	"errors"
	"strings"
	"testing"

	"gymroster/internal/domain/member"
)

func TestMemberValidation(t *testing.T) {
	tests := []struct {
		name    string
		member  member.Member
		wantErr error
	}{
		{"valid", member.Member{FullName: "Anna Rossi", Email: "anna@example.com"}, nil},
		{"created from roster row without name", member.Member{Email: "anna@example.com"}, nil},
		{"empty email", member.Member{FullName: "Anna Rossi", Email: "  "}, member.ErrEmptyEmail},
		{"name too long", member.Member{FullName: strings.Repeat("a", 256), Email: "a@x.com"}, member.ErrNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.member.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMember_Password(t *testing.T) {
	var m member.Member
	if err := m.CheckPassword("anything"); !errors.Is(err, member.ErrWrongPassword) {
		t.Errorf("member without password accepted a login: %v", err)
	}
	if err := m.SetPassword("short"); !errors.Is(err, member.ErrPasswordTooShort) {
		t.Errorf("SetPassword(short) = %v", err)
	}
	if err := m.SetPassword("palestra2025"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := m.CheckPassword("palestra2025"); err != nil {
		t.Errorf("CheckPassword(correct) = %v", err)
	}
	if err := m.CheckPassword("palestra2024"); !errors.Is(err, member.ErrWrongPassword) {
		t.Errorf("CheckPassword(wrong) = %v", err)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Anna Rossi", "Anna", "Rossi"},
		{"Anna Maria  Rossi", "Anna", "Maria Rossi"},
		{"Anna", "Anna", ""},
		{"   ", "", ""},
	}
	for _, tt := range tests {
		first, last := member.SplitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.first, tt.last)
		}
	}
	if got := member.JoinName(" Anna", ""); got != "Anna" {
		t.Errorf("JoinName = %q", got)
	}
}
