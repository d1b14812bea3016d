package builtin

import (
	"reflect"
	"testing"
)

func TestCanonicalHeaders_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "mock_dataset_header",
			in:   []string{"customer_id", " Names", " Mail", " Address", " Transactions", " Account Created At", " product_category"},
			want: []string{"customer_id", "names", "mail", "address", "transactions", "account_created_at", "product_category"},
		},
		{
			name: "case_insensitive_collision",
			in:   []string{"account Created at", "Account Created At"},
			want: []string{"account_created_at", "account_created_at_1"},
		},
		{
			name: "triple_collision",
			in:   []string{"A", "a", " a "},
			want: []string{"a", "a_1", "a_2"},
		},
		{
			name: "suffix_already_taken_by_literal",
			in:   []string{"a_1", "a", "a"},
			want: []string{"a_1", "a", "a_2"},
		},
		{
			name: "empty_headers",
			in:   []string{"", "  ", ""},
			want: []string{"", "_1", "_2"},
		},
		{
			name: "internal_spaces_each_replaced",
			in:   []string{"post  code"},
			want: []string{"post__code"},
		},
		{
			name: "normalization_forms_stay_distinct",
			in:   []string{"Caf\u00e9", "Cafe\u0301"},
			want: []string{"caf\u00e9", "cafe\u0301"},
		},
		{
			name: "empty_input",
			in:   []string{},
			want: []string{},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := CanonicalHeaders(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("CanonicalHeaders(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalHeaders_UniqueAndSameLength(t *testing.T) {
	t.Parallel()

	in := []string{"x", "X", "x_1", "x ", "", "", "x_2", "Y y", "y_y"}
	got := CanonicalHeaders(in)

	if len(got) != len(in) {
		t.Fatalf("len=%d, want %d", len(got), len(in))
	}
	seen := map[string]bool{}
	for _, n := range got {
		if seen[n] {
			t.Fatalf("duplicate canonical name %q in %q", n, got)
		}
		seen[n] = true
	}
}
