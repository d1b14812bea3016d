package builtin

import (
	"errors"
	"testing"
)

func TestParseTransactions_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      any
		status  Status
		amounts []string
	}{
		{
			name:    "single_quoted_list",
			in:      `[{'id': 't1', 'amount': '€100,50'}, {'id': 't2', 'amount': '$50.25'}]`,
			status:  StatusParsed,
			amounts: []string{"€100,50", "$50.25"},
		},
		{
			name:    "python_none_amount",
			in:      `[{'id': 't3', 'amount': None}]`,
			status:  StatusParsed,
			amounts: []string{"None"},
		},
		{
			name:    "quoted_null_token",
			in:      `[{"id": "t4", "amount": "Null"}]`,
			status:  StatusParsed,
			amounts: []string{"None"},
		},
		{
			name:    "numeric_amount",
			in:      `[{'id': 't5', 'amount': 12.50}]`,
			status:  StatusParsed,
			amounts: []string{"12.5"},
		},
		{
			name:    "missing_amount",
			in:      `[{'id': 't6'}]`,
			status:  StatusParsed,
			amounts: []string{DefaultAmountText},
		},
		{
			name:    "non_object_element",
			in:      `['t7']`,
			status:  StatusParsed,
			amounts: []string{DefaultAmountText},
		},
		{name: "empty_list", in: `[]`, status: StatusParsed, amounts: []string{}},
		{name: "empty_list_padded", in: "  [ ]\n", status: StatusParsed, amounts: []string{}},
		{name: "not_json", in: `not json`, status: StatusUnparseable},
		{name: "object_not_list", in: `{'id': 't1'}`, status: StatusUnparseable},
		{name: "trailing_data", in: `[1] [2]`, status: StatusUnparseable},
		{name: "apostrophe_in_value", in: `[{'id': 'x', 'amount': "O'Brien"}]`, status: StatusUnparseable},
		{name: "empty_string", in: ``, status: StatusUnparseable},
		{name: "nil_cell", in: nil, status: StatusEmpty},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTransactions(tc.in)
			if got.Status != tc.status {
				t.Fatalf("Status=%v, want %v (err=%v)", got.Status, tc.status, got.Err)
			}
			if tc.status != StatusParsed {
				if len(got.Transactions) != 0 {
					t.Fatalf("expected no transactions on %v, got %d", got.Status, len(got.Transactions))
				}
				return
			}
			if len(got.Transactions) != len(tc.amounts) {
				t.Fatalf("len=%d, want %d", len(got.Transactions), len(tc.amounts))
			}
			for i, tx := range got.Transactions {
				if a, _ := tx.Amount(); a != tc.amounts[i] {
					t.Fatalf("tx[%d].Amount()=%q, want %q", i, a, tc.amounts[i])
				}
			}
		})
	}
}

func TestParseTransactions_Errors(t *testing.T) {
	t.Parallel()

	if r := ParseTransactions(nil); !errors.Is(r.Err, ErrNotString) {
		t.Fatalf("nil: err=%v, want ErrNotString", r.Err)
	}
	if r := ParseTransactions("[{"); !errors.Is(r.Err, ErrUnparseable) {
		t.Fatalf("truncated: err=%v, want ErrUnparseable", r.Err)
	}
}

func TestTransaction_AmountPresence(t *testing.T) {
	t.Parallel()

	r := ParseTransactions(`[{'amount': '€1'}, {'id': 'x'}, 5]`)
	want := []bool{true, false, false}
	for i, tx := range r.Transactions {
		if _, present := tx.Amount(); present != want[i] {
			t.Fatalf("tx[%d] present=%v, want %v", i, present, want[i])
		}
	}
	if !r.Transactions[0].IsObject() || r.Transactions[2].IsObject() {
		t.Fatalf("IsObject mismatch: %+v", r.Transactions)
	}
}

func TestRepairTransactionsText(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{`[{'a': None}]`, `[{"a": null}]`},
		{`[{'a':Null}]`, `[{"a": null}]`},
		{`[{'a': 'None'}]`, `[{"a": null}]`},
		{`{'a': Nonexistent}`, `{"a": Nonexistent}`},
		{"  [1]  ", "[1]"},
		{`[{'amount': NaN}]`, `[{"amount": "nan"}]`},
		{`[Infinity, -Infinity]`, `["inf", "-inf"]`},
		{`[{'id': 'NaN', 'note': 'Infinity'}]`, `[{"id": "NaN", "note": "Infinity"}]`},
		{`[{'id': NaNa}]`, `[{"id": NaNa}]`},
	}
	for _, tc := range tests {
		if got := RepairTransactionsText(tc.in); got != tc.want {
			t.Fatalf("RepairTransactionsText(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTransactions_NonFiniteConstants(t *testing.T) {
	t.Parallel()

	r := ParseTransactions(`[{'id': 't1', 'amount': NaN}, {'id': 't2', 'amount': -Infinity}]`)
	if r.Status != StatusParsed || len(r.Transactions) != 2 {
		t.Fatalf("status=%v n=%d err=%v, want parsed with 2 transactions", r.Status, len(r.Transactions), r.Err)
	}
	for i, want := range []string{"nan", "-inf"} {
		text, present := r.Transactions[i].Amount()
		if !present || text != want {
			t.Fatalf("tx[%d] amount=%q present=%v, want %q", i, text, present, want)
		}
		if amt, err := ParseCurrencyAmount(text); err == nil || amt != 0 {
			t.Fatalf("tx[%d] ParseCurrencyAmount(%q)=%v,%v, want 0 with error", i, text, amt, err)
		}
	}
}
