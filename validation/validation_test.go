package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"strips angle brackets", "<script>alert(1)</script>", "scriptalert(1)/script"},
		{"strips quotes", `say "hi" y'all`, "say hi yall"},
		{"removes javascript protocol", "JavaScript:alert(1)", "alert(1)"},
		{"removes event handlers", "x onclick=steal()", "x steal()"},
		{"empty stays empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeInput(tc.in); got != tc.want {
				t.Fatalf("SanitizeInput(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestEmail(t *testing.T) {
	got, err := Email("  User@Example.COM ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "user@example.com" {
		t.Fatalf("lowercased email = %q", got)
	}

	for _, bad := range []string{"", "not-an-email", "a@b", strings.Repeat("a", 250) + "@b.co"} {
		if _, err := Email(bad); err == nil {
			t.Fatalf("Email(%q) accepted", bad)
		}
	}

	_, err = Email("")
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "email" {
		t.Fatalf("err = %v, want FieldError on email", err)
	}
}

func TestPassword(t *testing.T) {
	if _, err := Password("Tr0ub4dor&Strong"); err != nil {
		t.Fatalf("strong password rejected: %v", err)
	}

	cases := []struct {
		name     string
		password string
	}{
		{"empty", ""},
		{"too short", "Ab1!x"},
		{"no uppercase", "lowercase1!aaqz"},
		{"no lowercase", "UPPERCASE1!QQWZ"},
		{"no digit", "NoDigitsHere!xy"},
		{"no special", "NoSpecial12345xy"},
		{"repeated run", "Gooodpass12345!"},
		{"common word", "MyPassword123!x"},
		{"keyboard walk", "Qwerty!23456789"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Password(tc.password); err == nil {
				t.Fatalf("Password(%q) accepted", tc.password)
			}
		})
	}
}

func TestPasswordNotSanitized(t *testing.T) {
	in := `Ab1!with"quote<ok>`
	got, err := Password(in)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Fatalf("password mutated: %q", got)
	}
}

func TestName(t *testing.T) {
	got, err := Name("  Mary-Jane Watson ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Mary-Jane Watson" {
		t.Fatalf("name = %q", got)
	}

	for _, bad := range []string{"", "A", strings.Repeat("a", 51), "R2D2", "bob@home"} {
		if _, err := Name(bad); err == nil {
			t.Fatalf("Name(%q) accepted", bad)
		}
	}
}

func TestPasswordConfirmation(t *testing.T) {
	if err := PasswordConfirmation("same", "same"); err != nil {
		t.Fatal(err)
	}
	err := PasswordConfirmation("one", "two")
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "confirmPassword" {
		t.Fatalf("err = %v, want FieldError on confirmPassword", err)
	}
}

func TestPasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		want     int
	}{
		{"", 0},
		{"abcdefgh", 1},
		{"Abcdefgh1!", 4},
		{"Abcdefghijkl1!", 4},
		{"abcdefghijkl", 2},
	}
	for _, tc := range cases {
		if got := PasswordStrength(tc.password); got != tc.want {
			t.Fatalf("PasswordStrength(%q) = %d, want %d", tc.password, got, tc.want)
		}
	}

	if got := StrengthText(4); got != "Strong" {
		t.Fatalf("StrengthText(4) = %q", got)
	}
	if got := StrengthText(9); got != "Very Weak" {
		t.Fatalf("StrengthText(9) = %q", got)
	}
}
