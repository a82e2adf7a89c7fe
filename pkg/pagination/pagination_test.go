package pagination

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   Params
		want Params
	}{
		{Params{}, Params{Page: 1, PageSize: DefaultPageSize}},
		{Params{Page: -3, PageSize: 500}, Params{Page: 1, PageSize: MaxPageSize}},
		{Params{Page: 4, PageSize: 10}, Params{Page: 4, PageSize: 10}},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestOffset(t *testing.T) {
	if got := (Params{Page: 3, PageSize: 20}).Offset(); got != 40 {
		t.Fatalf("expected offset 40, got %d", got)
	}
	if got := (Params{}).Offset(); got != 0 {
		t.Fatalf("expected offset 0, got %d", got)
	}
}

func TestNewPageNeverNil(t *testing.T) {
	page := NewPage[string](nil, 0, Params{})
	if page.Items == nil {
		t.Fatal("expected empty slice")
	}
	if page.Page != 1 || page.PageSize != DefaultPageSize {
		t.Fatalf("unexpected page %+v", page)
	}
}
