package form

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Customer Intake", "customer-intake"},
		{"  Customer   Intake  ", "customer-intake"},
		{"Page 1", "page-1"},
		{"Héllo, Wörld!", "h-llo-w-rld"},
		{"already-slugged", "already-slugged"},
		{"UPPER_case mix", "upper-case-mix"},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidSlug(t *testing.T) {
	valid := []string{"a", "page-1", "customer-intake", "address_street", "a1-b2_c3"}
	for _, v := range valid {
		if !ValidSlug(v) {
			t.Errorf("ValidSlug(%q) = false, want true", v)
		}
	}
	invalid := []string{"", "-page", "page-", "Page", "two words", "a--b", "a__b"}
	for _, v := range invalid {
		if ValidSlug(v) {
			t.Errorf("ValidSlug(%q) = true, want false", v)
		}
	}
}

func TestRandomSuffix(t *testing.T) {
	a := RandomSuffix(4)
	b := RandomSuffix(4)
	if len(a) != 8 || len(b) != 8 {
		t.Fatalf("expected 8 hex chars, got %q and %q", a, b)
	}
	if a == b {
		t.Fatalf("two suffixes collided: %q", a)
	}
	for _, c := range a {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("non-hex character %q in %q", c, a)
		}
	}
}
