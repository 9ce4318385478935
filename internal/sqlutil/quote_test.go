package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"customer", `"customer"`},
		{`weird"name`, `"weird""name"`},
		{"first_name", `"first_name"`},
	}
	for _, tc := range cases {
		if got := QuoteIdentifier(tc.in); got != tc.want {
			t.Errorf("QuoteIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuoteQualified(t *testing.T) {
	if got := QuoteQualified("public", "customer"); got != `"public"."customer"` {
		t.Errorf("unexpected qualified name: %s", got)
	}
	if got := QuoteQualified("", "customer"); got != `"customer"` {
		t.Errorf("unexpected unqualified name: %s", got)
	}
}

func TestEscapeLikePattern(t *testing.T) {
	if got := EscapeLikePattern(`100%_done\`); got != `100\%\_done\\` {
		t.Errorf("unexpected escaped pattern: %s", got)
	}
}
