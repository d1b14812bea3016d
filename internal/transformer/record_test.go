package transformer

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"customeretl/pkg/records"
)

var mockColumns = []string{"customer_id", "names", "mail", "address", "transactions", "account_created_at", "product_category"}

func mockSet() records.Set {
	return records.Set{
		Columns: mockColumns,
		Rows: []records.Record{
			{
				"customer_id":        "1",
				"names":              "John Doe",
				"mail":               "john.doe@example.com",
				"address":            `{'address': {'streeet': '123 Main St', 'city': 'Anytown', 'post code': '12345', 'country': 'USA'}}`,
				"transactions":       `[{'id': 't1', 'amount': '€100,50'}, {'id': 't2', 'amount': '$50.25'}]`,
				"account_created_at": "2023-01-01 10:00:00.123456",
				"product_category":   "Electronics",
			},
			{
				"customer_id":        "2",
				"names":              "Jane Smith",
				"mail":               "jane.smith@example.com",
				"address":            `{'address': {'streeet': '456 Oak Ave', 'city': 'Otherville', 'post code': '67890', 'country': 'Canada'}}`,
				"transactions":       `[{'id': 't3', 'amount': '£200.00'}]`,
				"account_created_at": "2023-02-15 11:30:00.654321",
				"product_category":   "Books",
			},
			{
				"customer_id":        "3",
				"names":              "Peter Jones",
				"mail":               "peter.jones@example.com",
				"address":            `{'address': {'streeet': '789 Pine Ln', 'city': 'Somewhere', 'post code': '11223', 'country': 'UK'}}`,
				"transactions":       `[{'id': 't4', 'amount': '¥5000'}, {'id': 't5', 'amount': '$12.75'}]`,
				"account_created_at": "2023-03-20 14:45:00.987654",
				"product_category":   "Clothing",
			},
		},
		Lines: []int{2, 3, 4},
	}
}

func TestTransform_MockDataset(t *testing.T) {
	t.Parallel()

	rows, st, err := New(zerolog.Nop()).Transform(context.Background(), mockSet())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rows) != 3 || st.Rows != 3 {
		t.Fatalf("rows=%d stats.Rows=%d, want 3", len(rows), st.Rows)
	}

	want := []struct {
		names, email, street, city, post, country string
		created                                   time.Time
		num                                       int
		total                                     float64
	}{
		{"John Doe", "john.doe@example.com", "123 Main St", "Anytown", "12345", "USA",
			time.Date(2023, 1, 1, 10, 0, 0, 123456000, time.UTC), 2, 150.75},
		{"Jane Smith", "jane.smith@example.com", "456 Oak Ave", "Otherville", "67890", "Canada",
			time.Date(2023, 2, 15, 11, 30, 0, 654321000, time.UTC), 1, 200},
		{"Peter Jones", "peter.jones@example.com", "789 Pine Ln", "Somewhere", "11223", "UK",
			time.Date(2023, 3, 20, 14, 45, 0, 987654000, time.UTC), 2, 5012.75},
	}

	for i, w := range want {
		r := rows[i]
		if r.Names.String != w.names || r.Email.String != w.email {
			t.Fatalf("row %d names/email=%q/%q", i, r.Names.String, r.Email.String)
		}
		if r.AddressStreet != w.street || r.AddressCity != w.city || r.AddressPostCode != w.post || r.AddressCountry != w.country {
			t.Fatalf("row %d address=%+v", i, r)
		}
		if !r.AccountCreatedAt.Valid || !r.AccountCreatedAt.Time.Equal(w.created) {
			t.Fatalf("row %d created=%v, want %v", i, r.AccountCreatedAt, w.created)
		}
		if r.NumTransactions != w.num || r.TotalTransactionAmount != w.total {
			t.Fatalf("row %d num=%d total=%v, want %d %v", i, r.NumTransactions, r.TotalTransactionAmount, w.num, w.total)
		}
	}
	if st.Transactions != 5 || st.AddressUnparseable != 0 || st.TimestampsNull != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestTransform_TimestampColumnFallback(t *testing.T) {
	t.Parallel()

	set := records.Set{
		Columns: []string{"names", "mail", "address", "transactions", "account_created_at_1"},
		Rows: []records.Record{{
			"names": "A", "mail": "a@x", "address": nil, "transactions": "[]",
			"account_created_at_1": "2024-05-06 07:08:09.5",
		}},
	}
	rows, _, err := New(zerolog.Nop()).Transform(context.Background(), set)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := time.Date(2024, 5, 6, 7, 8, 9, 500000000, time.UTC)
	if got := rows[0].AccountCreatedAt; !got.Valid || !got.Time.Equal(want) {
		t.Fatalf("AccountCreatedAt=%v, want %v", got, want)
	}
}

func TestTransform_PrefersExactTimestampColumn(t *testing.T) {
	t.Parallel()

	set := records.Set{
		Columns: []string{"names", "mail", "address", "transactions", "account_created_at", "account_created_at_1"},
		Rows: []records.Record{{
			"names": "A", "mail": "a@x", "address": nil, "transactions": "[]",
			"account_created_at":   "garbage",
			"account_created_at_1": "2024-05-06 07:08:09.5",
		}},
	}
	rows, st, err := New(zerolog.Nop()).Transform(context.Background(), set)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if rows[0].AccountCreatedAt.Valid {
		t.Fatalf("expected NULL from the exact column, got %v", rows[0].AccountCreatedAt)
	}
	if st.TimestampsNull != 1 {
		t.Fatalf("TimestampsNull=%d, want 1", st.TimestampsNull)
	}
}

func TestTransform_MalformedFieldsDegradeAndWarn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	set := records.Set{
		Columns: []string{"names", "mail", "address", "transactions"},
		Rows: []records.Record{{
			"names":        nil,
			"mail":         "m@x",
			"address":      "{{not an address",
			"transactions": `[{'id': 'a', 'amount': 'n/a'}, {'id': 'b'}, {'id': 'c', 'amount': '€2,50'}]`,
		}, {
			"names":        "B",
			"mail":         nil,
			"address":      `{'address': {'streeet': 'S'}}`,
			"transactions": "broken",
		}},
		Lines: []int{2, 3},
	}

	rows, st, err := New(log).Transform(context.Background(), set)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	r0 := rows[0]
	if r0.Names.Valid || !r0.Email.Valid {
		t.Fatalf("row 0 names/email validity wrong: %+v", r0)
	}
	if r0.AddressStreet != "" || r0.AddressCity != "" || r0.AddressPostCode != "" || r0.AddressCountry != "" {
		t.Fatalf("row 0 address should be empty: %+v", r0)
	}
	if r0.NumTransactions != 3 || r0.TotalTransactionAmount != 2.5 {
		t.Fatalf("row 0 num=%d total=%v, want 3 2.5", r0.NumTransactions, r0.TotalTransactionAmount)
	}
	if r0.AccountCreatedAt.Valid {
		t.Fatalf("no timestamp column should give NULL")
	}

	r1 := rows[1]
	if r1.AddressStreet != "S" || r1.NumTransactions != 0 || r1.TotalTransactionAmount != 0 {
		t.Fatalf("row 1 unexpected: %+v", r1)
	}

	want := Stats{
		Rows:                    2,
		AddressUnparseable:      1,
		TransactionsUnparseable: 1,
		Transactions:            3,
		AmountsUnparseable:      1,
		TimestampsNull:          2,
	}
	if st != want {
		t.Fatalf("stats=%+v, want %+v", st, want)
	}

	logs := buf.String()
	for _, msg := range []string{"could not parse address", "could not parse transactions", "could not parse amount", "no account creation column"} {
		if !strings.Contains(logs, msg) {
			t.Fatalf("missing log %q in:\n%s", msg, logs)
		}
	}
	if !strings.Contains(logs, `"line":3`) {
		t.Fatalf("expected source line in logs:\n%s", logs)
	}
}

func TestTransform_AmountTotals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		txs       string
		wantNum   int
		wantTotal float64
	}{
		{
			name:      "float_accumulation",
			txs:       `[{'id': 'a', 'amount': '$0.1'}, {'id': 'b', 'amount': '$0.2'}]`,
			wantNum:   2,
			wantTotal: 0.1 + 0.2,
		},
		{
			name:      "out_of_range_amount_is_infinite",
			txs:       `[{'id': 'a', 'amount': '$1` + strings.Repeat("0", 400) + `'}, {'id': 'b', 'amount': '$5'}]`,
			wantNum:   2,
			wantTotal: math.Inf(1),
		},
		{
			name:      "nan_amount_contributes_zero",
			txs:       `[{'id': 'a', 'amount': NaN}, {'id': 'b', 'amount': '€2,50'}]`,
			wantNum:   2,
			wantTotal: 2.5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			set := records.Set{
				Columns: []string{"names", "mail", "address", "transactions"},
				Rows:    []records.Record{{"names": "A", "mail": "a@x", "address": nil, "transactions": tc.txs}},
			}
			rows, _, err := New(zerolog.Nop()).Transform(context.Background(), set)
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			got := rows[0]
			if got.NumTransactions != tc.wantNum || got.TotalTransactionAmount != tc.wantTotal {
				t.Fatalf("num=%d total=%v, want %d %v", got.NumTransactions, got.TotalTransactionAmount, tc.wantNum, tc.wantTotal)
			}
		})
	}
}

func TestTransform_MissingColumn(t *testing.T) {
	t.Parallel()

	set := records.Set{Columns: []string{"names", "mail", "address"}}
	_, _, err := New(zerolog.Nop()).Transform(context.Background(), set)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("err=%v, want ErrMissingColumn", err)
	}
	if !strings.Contains(err.Error(), `"transactions"`) {
		t.Fatalf("error should name the column: %v", err)
	}
}

func TestTransform_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New(zerolog.Nop()).Transform(ctx, mockSet()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestTransform_EmptySet(t *testing.T) {
	t.Parallel()

	rows, st, err := New(zerolog.Nop()).Transform(context.Background(), records.Set{Columns: mockColumns})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rows) != 0 || st.Rows != 0 {
		t.Fatalf("rows=%d, want 0", len(rows))
	}
}

func TestOutputRow_Values(t *testing.T) {
	t.Parallel()

	rows, _, err := New(zerolog.Nop()).Transform(context.Background(), mockSet())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	got := rows[1].Values()
	want := []any{
		"Jane Smith", "jane.smith@example.com",
		"456 Oak Ave", "Otherville", "67890", "Canada",
		time.Date(2023, 2, 15, 11, 30, 0, 654321000, time.UTC),
		int64(1), float64(200),
	}
	if len(got) != len(OutputColumns) {
		t.Fatalf("len(Values)=%d, want %d", len(got), len(OutputColumns))
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Values()=%#v\nwant %#v", got, want)
	}

	var empty OutputRow
	v := empty.Values()
	if v[0] != nil || v[1] != nil || v[6] != nil {
		t.Fatalf("NULL fields should be nil: %#v", v)
	}
}
