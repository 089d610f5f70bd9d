package compliance

import "testing"

func TestDecide(t *testing.T) {
	a, b := []byte("envelope-a"), []byte("envelope-b")
	cases := []struct {
		mode     ComplianceMode
		existing []byte
		want     Decision
	}{
		{Permissive, nil, Store},
		{Strict, nil, Store},
		{Permissive, a, Skip},
		{Strict, a, Skip},
		{Permissive, b, Replace},
		{Strict, b, Reject},
	}
	for _, tc := range cases {
		if got := tc.mode.Decide(tc.existing, a); got != tc.want {
			t.Fatalf("%s.Decide(%q) = %v, want %v", tc.mode, tc.existing, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	for in, want := range map[string]ComplianceMode{"": Permissive, "Strict": Strict, " permissive ": Permissive} {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := Parse("lenient"); err == nil {
		t.Fatalf("expected error")
	}
}
