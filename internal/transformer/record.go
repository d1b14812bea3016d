// Package transformer turns canonical source records into the flat customer
// rows persisted by the sink.
//
// The per-field parsers live in package builtin and never log; this package
// decides how each parse outcome degrades, logs it, and counts it in Stats.
package transformer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"customeretl/internal/transformer/builtin"
	"customeretl/pkg/records"
)

// ErrMissingColumn is returned when a column the row mapping needs is absent
// from the source header.
var ErrMissingColumn = errors.New("missing required column")

// Canonical source columns read by Transform.
const (
	ColNames            = "names"
	ColMail             = "mail"
	ColAddress          = "address"
	ColTransactions     = "transactions"
	ColAccountCreatedAt = "account_created_at"

	// ColAccountCreatedAtAlt is the name header cleaning gives a second
	// "Account Created At" column.
	ColAccountCreatedAtAlt = ColAccountCreatedAt + "_1"
)

// RequiredColumns must all be present for Transform to run.
var RequiredColumns = []string{ColNames, ColMail, ColAddress, ColTransactions}

// OutputColumns is the fixed, ordered output schema.
var OutputColumns = []string{
	"names",
	"email",
	"address_street",
	"address_city",
	"address_post_code",
	"address_country",
	"account_created_at",
	"num_transactions",
	"total_transaction_amount",
}

// OutputRow is one flat customer row.
type OutputRow struct {
	Names sql.NullString
	Email sql.NullString

	AddressStreet   string
	AddressCity     string
	AddressPostCode string
	AddressCountry  string

	AccountCreatedAt sql.NullTime

	NumTransactions        int
	TotalTransactionAmount float64
}

// Values returns the row in OutputColumns order, with nil for SQL NULL.
// The two aggregate fields go through CoerceInt and CoerceFloat, so a sink
// binds int64 and float64.
func (r OutputRow) Values() []any {
	var names, email, created any
	if r.Names.Valid {
		names = r.Names.String
	}
	if r.Email.Valid {
		email = r.Email.String
	}
	if r.AccountCreatedAt.Valid {
		created = r.AccountCreatedAt.Time
	}
	num, _ := CoerceInt(r.NumTransactions)
	total, _ := CoerceFloat(r.TotalTransactionAmount)

	return []any{
		names,
		email,
		r.AddressStreet,
		r.AddressCity,
		r.AddressPostCode,
		r.AddressCountry,
		created,
		num,
		total,
	}
}

// Stats counts how fields degraded during a Transform call.
type Stats struct {
	Rows int

	AddressEmpty       int
	AddressUnparseable int

	TransactionsEmpty       int
	TransactionsUnparseable int
	Transactions            int
	AmountsUnparseable      int

	TimestampsNull int
}

// Transformer maps canonical records to OutputRows.
type Transformer struct {
	Log zerolog.Logger
}

// New returns a Transformer that logs field-level warnings to log.
func New(log zerolog.Logger) *Transformer {
	return &Transformer{Log: log}
}

// Transform maps every record of set to an OutputRow, preserving order.
//
// Malformed fields never fail the call: each one degrades to its default
// (empty address fields, zero transactions, a zero amount, a NULL timestamp)
// and is logged at warn level. Columns not named in OutputColumns are
// dropped.
//
// Errors:
//   - ErrMissingColumn when a RequiredColumns entry is absent.
//   - ctx.Err() if ctx is canceled between rows.
func (t *Transformer) Transform(ctx context.Context, set records.Set) ([]OutputRow, Stats, error) {
	var st Stats
	for _, c := range RequiredColumns {
		if !set.HasColumn(c) {
			return nil, st, fmt.Errorf("%w: %q (have %v)", ErrMissingColumn, c, set.Columns)
		}
	}

	tsCol := ""
	switch {
	case set.HasColumn(ColAccountCreatedAt):
		tsCol = ColAccountCreatedAt
	case set.HasColumn(ColAccountCreatedAtAlt):
		tsCol = ColAccountCreatedAtAlt
	default:
		t.Log.Warn().Msg("no account creation column; account_created_at will be NULL")
	}

	out := make([]OutputRow, 0, len(set.Rows))
	for i, rec := range set.Rows {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		log := t.Log.With().Int("row", i).Int("line", set.Line(i)).Logger()
		out = append(out, t.row(log, rec, tsCol, &st))
	}
	st.Rows = len(out)
	return out, st, nil
}

func (t *Transformer) row(log zerolog.Logger, rec records.Record, tsCol string, st *Stats) OutputRow {
	row := OutputRow{
		Names: nullString(rec[ColNames]),
		Email: nullString(rec[ColMail]),
	}

	addr := builtin.ParseAddress(rec[ColAddress])
	switch addr.Status {
	case builtin.StatusParsed:
		row.AddressStreet = addr.Address.Street
		row.AddressCity = addr.Address.City
		row.AddressPostCode = addr.Address.PostCode
		row.AddressCountry = addr.Address.Country
	case builtin.StatusEmpty:
		st.AddressEmpty++
		if addr.Err != nil {
			log.Warn().Err(addr.Err).Msg("address is not a string")
		}
	case builtin.StatusUnparseable:
		st.AddressUnparseable++
		log.Warn().Err(addr.Err).Str("input", addr.Input).Msg("could not parse address")
	}

	txs := builtin.ParseTransactions(rec[ColTransactions])
	switch txs.Status {
	case builtin.StatusEmpty:
		st.TransactionsEmpty++
		log.Warn().Err(txs.Err).Msg("transactions is not a string")
	case builtin.StatusUnparseable:
		st.TransactionsUnparseable++
		log.Warn().Err(txs.Err).Str("input", txs.Input).Msg("could not parse transactions")
	}

	// Plain float accumulation: an out-of-range amount parses to ±Inf and
	// carries into the total instead of failing the row.
	var total float64
	for j, tx := range txs.Transactions {
		if !tx.IsObject() {
			log.Warn().Int("transaction", j).Msg("transaction is not an object; amount counts as zero")
		}
		text, _ := tx.Amount()
		amt, err := builtin.ParseCurrencyAmount(text)
		if err != nil {
			st.AmountsUnparseable++
			log.Warn().Err(err).Int("transaction", j).Str("id", tx.ID()).Msg("could not parse amount")
		}
		total += amt
	}
	st.Transactions += len(txs.Transactions)
	row.NumTransactions = len(txs.Transactions)
	row.TotalTransactionAmount = total

	if ts, ok := timestampOf(rec, tsCol); ok {
		row.AccountCreatedAt = sql.NullTime{Time: ts, Valid: true}
	} else {
		st.TimestampsNull++
		if tsCol != "" && rec[tsCol] != nil {
			log.Warn().Interface("input", rec[tsCol]).Str("layout", TimestampLayout).Msg("account creation time does not match layout")
		}
	}
	return row
}

func timestampOf(rec records.Record, col string) (time.Time, bool) {
	if col == "" {
		return time.Time{}, false
	}
	s, ok := rec[col].(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(s)
}

func nullString(v any) sql.NullString {
	switch t := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: t, Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(t), Valid: true}
	}
}
