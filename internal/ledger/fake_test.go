package ledger

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/flatfile"
)

// recordSlice is a RecordSource over fixed records.
type recordSlice struct {
	recs []flatfile.Record
	pos  int
}

func records(lines ...string) *recordSlice {
	rs := &recordSlice{}
	for i, l := range lines {
		rs.recs = append(rs.recs, flatfile.Record{Fields: strings.Split(l, ","), Line: int64(i + 1)})
	}
	return rs
}

func (r *recordSlice) Read(context.Context) (flatfile.Record, error) {
	if r.pos >= len(r.recs) {
		return flatfile.Record{}, io.EOF
	}
	rec := r.recs[r.pos]
	r.pos++
	return rec, nil
}

// memStore is an in-memory Store for tests.
type memStore struct {
	summaries map[string]AccountSummary
	txns      []Transaction
	pageCalls int
	failWith  error
}

func newMemStore(summaries ...AccountSummary) *memStore {
	m := &memStore{summaries: make(map[string]AccountSummary)}
	for i, s := range summaries {
		s.ID = int64(i + 1)
		m.summaries[s.AccountNumber] = s
	}
	return m
}

func (m *memStore) TransactionsByAccountNumber(_ context.Context, account string) ([]Transaction, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Transaction
	for _, tx := range m.txns {
		if tx.AccountNumber == account {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memStore) InsertTransactions(_ context.Context, txns []Transaction) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.txns = append(m.txns, txns...)
	return nil
}

func (m *memStore) DeleteTransactions(context.Context) error {
	m.txns = nil
	return nil
}

func (m *memStore) SummariesWithTransactions(_ context.Context, after string, limit int) ([]AccountSummary, error) {
	m.pageCalls++
	referenced := make(map[string]bool)
	for _, tx := range m.txns {
		referenced[tx.AccountNumber] = true
	}
	var out []AccountSummary
	for acct, s := range m.summaries {
		if referenced[acct] && acct > after {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateSummaries(_ context.Context, summaries []AccountSummary) error {
	for _, s := range summaries {
		cur := m.summaries[s.AccountNumber]
		cur.CurrentBalance = s.CurrentBalance
		m.summaries[s.AccountNumber] = cur
	}
	return nil
}

func (m *memStore) UpsertSummaries(_ context.Context, summaries []AccountSummary) error {
	for _, s := range summaries {
		m.summaries[s.AccountNumber] = s
	}
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

var _ Store = (*memStore)(nil)
