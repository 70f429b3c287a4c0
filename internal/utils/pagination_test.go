package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPage(t *testing.T) {
	cases := []struct {
		page, size       int
		wantP, wantS, wo int
	}{
		{0, 0, 1, DefaultPageSize, 0},
		{-3, 10, 1, 10, 0},
		{3, 10, 3, 10, 20},
		{2, 1000, 2, MaxPageSize, MaxPageSize},
	}
	for _, tc := range cases {
		p, s, o := Page(tc.page, tc.size)
		if p != tc.wantP || s != tc.wantS || o != tc.wo {
			t.Fatalf("Page(%d,%d) = (%d,%d,%d); want (%d,%d,%d)", tc.page, tc.size, p, s, o, tc.wantP, tc.wantS, tc.wo)
		}
	}
}

func TestTotalPages(t *testing.T) {
	if got := TotalPages(0, 20); got != 0 {
		t.Fatalf("empty = %d", got)
	}
	if got := TotalPages(41, 20); got != 3 {
		t.Fatalf("41/20 = %d; want 3", got)
	}
	if got := TotalPages(40, 20); got != 2 {
		t.Fatalf("40/20 = %d; want 2", got)
	}
}
