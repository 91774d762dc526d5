// internal/repository/memory/repos.go
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/repository"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
)

type walletRepo struct{ s *Store }

func (r *walletRepo) CreateWallet(_ context.Context, w *domain.Wallet) error {
	return r.s.run(func(st *state) error {
		if _, ok := st.walletByUser[w.UserID]; ok {
			return fmt.Errorf("wallet for user %d: %w", w.UserID, util.ErrDuplicateEntry)
		}
		st.nextWalletID++
		w.ID = st.nextWalletID
		st.wallets[w.ID] = *w
		st.walletByUser[w.UserID] = w.ID
		return nil
	})
}

func (r *walletRepo) GetWalletByID(_ context.Context, id int64) (*domain.Wallet, error) {
	var out domain.Wallet
	err := r.s.run(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return util.ErrWalletNotFound
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *walletRepo) GetWalletByUserID(_ context.Context, userID int64) (*domain.Wallet, error) {
	var out domain.Wallet
	err := r.s.run(func(st *state) error {
		id, ok := st.walletByUser[userID]
		if !ok {
			return util.ErrWalletNotFound
		}
		out = st.wallets[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockWalletByUserID needs no extra locking: transactions are already serialized.
func (r *walletRepo) LockWalletByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return r.GetWalletByUserID(ctx, userID)
}

func (r *walletRepo) mutate(walletID int64, fn func(w *domain.Wallet) error) (domain.Wallet, error) {
	var out domain.Wallet
	err := r.s.run(func(st *state) error {
		w, ok := st.wallets[walletID]
		if !ok {
			return util.ErrWalletNotFound
		}
		if err := fn(&w); err != nil {
			return err
		}
		w.UpdatedAt = time.Now().UTC()
		st.wallets[walletID] = w
		out = w
		return nil
	})
	return out, err
}

func (r *walletRepo) DebitAvailable(_ context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return decimal.Zero, util.InvalidInput("debit amount must be positive")
	}
	w, err := r.mutate(walletID, func(w *domain.Wallet) error {
		if w.Balance.LessThan(amount) {
			return util.ErrInsufficientFunds
		}
		w.Balance = w.Balance.Sub(amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (r *walletRepo) CreditAvailable(_ context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if amount.IsNegative() {
		return decimal.Zero, util.InvalidInput("credit amount must not be negative")
	}
	w, err := r.mutate(walletID, func(w *domain.Wallet) error {
		w.Balance = w.Balance.Add(amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (r *walletRepo) CreditPending(_ context.Context, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if amount.IsNegative() {
		return decimal.Zero, util.InvalidInput("credit amount must not be negative")
	}
	w, err := r.mutate(walletID, func(w *domain.Wallet) error {
		w.PendingBalance = w.PendingBalance.Add(amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return w.PendingBalance, nil
}

func (r *walletRepo) ZeroPending(_ context.Context, walletID int64) (decimal.Decimal, error) {
	var previous decimal.Decimal
	_, err := r.mutate(walletID, func(w *domain.Wallet) error {
		previous = w.PendingBalance
		w.PendingBalance = decimal.Zero
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return previous, nil
}

func (r *walletRepo) ListWalletsWithPendingAtLeast(_ context.Context, min decimal.Decimal, userID *int64) ([]domain.Wallet, error) {
	out := []domain.Wallet{}
	err := r.s.run(func(st *state) error {
		for _, w := range st.wallets {
			if userID != nil && w.UserID != *userID {
				continue
			}
			if w.PendingBalance.IsPositive() && w.PendingBalance.GreaterThanOrEqual(min) {
				out = append(out, w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, err
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) CreateTransaction(_ context.Context, t *domain.Transaction) error {
	return r.s.run(func(st *state) error {
		if t.IdempotencyKey != nil {
			if _, ok := st.txByKey[*t.IdempotencyKey]; ok {
				return fmt.Errorf("transaction with idempotency key: %w", util.ErrDuplicateEntry)
			}
		}
		if _, ok := st.txByRef[t.Reference]; ok {
			return fmt.Errorf("transaction reference %s already exists", t.Reference)
		}
		if !t.Balanced() {
			return fmt.Errorf("transaction %s violates amount = fee + net_amount", t.Reference)
		}
		st.nextTxID++
		t.ID = st.nextTxID
		if t.Metadata == nil {
			t.Metadata = domain.Metadata{}
		}
		stored := *t
		stored.Metadata = t.Metadata.Clone()
		st.transactions[t.ID] = stored
		st.txByRef[t.Reference] = t.ID
		if t.IdempotencyKey != nil {
			st.txByKey[*t.IdempotencyKey] = t.ID
		}
		return nil
	})
}

func (r *transactionRepo) get(lookup func(st *state) (int64, bool)) (*domain.Transaction, error) {
	var out domain.Transaction
	err := r.s.run(func(st *state) error {
		id, ok := lookup(st)
		if !ok {
			return util.ErrNotFound
		}
		t, ok := st.transactions[id]
		if !ok {
			return util.ErrNotFound
		}
		out = t
		out.Metadata = t.Metadata.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *transactionRepo) GetTransactionByID(_ context.Context, id int64) (*domain.Transaction, error) {
	return r.get(func(*state) (int64, bool) { return id, true })
}

func (r *transactionRepo) GetTransactionByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	return r.get(func(st *state) (int64, bool) { id, ok := st.txByRef[reference]; return id, ok })
}

func (r *transactionRepo) GetTransactionByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	return r.get(func(st *state) (int64, bool) { id, ok := st.txByKey[key]; return id, ok })
}

func (r *transactionRepo) transition(id int64, fn func(t *domain.Transaction)) (*domain.Transaction, error) {
	var out domain.Transaction
	err := r.s.run(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return util.ErrNotFound
		}
		if t.Status != domain.TransactionStatusPending {
			return util.ErrAlreadyProcessed
		}
		fn(&t)
		if _, ok := t.Metadata[domain.MetadataCharging]; ok {
			t.Metadata = t.Metadata.Clone()
			delete(t.Metadata, domain.MetadataCharging)
		}
		st.transactions[id] = t
		out = t
		out.Metadata = t.Metadata.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *transactionRepo) ClaimTransaction(_ context.Context, id int64, claim repository.ClaimUpdate) (*domain.Transaction, error) {
	return r.transition(id, func(t *domain.Transaction) {
		completedAt := claim.CompletedAt
		t.Status = domain.TransactionStatusCompleted
		t.CompletedAt = &completedAt
		t.UpdatedAt = completedAt
		if claim.ExternalReference != nil {
			ref := *claim.ExternalReference
			t.ExternalReference = &ref
		}
		t.Metadata = t.Metadata.Merge(claim.Metadata)
	})
}

func (r *transactionRepo) MarkTerminal(_ context.Context, id int64, status domain.TransactionStatus, metadata domain.Metadata) (*domain.Transaction, error) {
	if status != domain.TransactionStatusFailed && status != domain.TransactionStatusCancelled {
		return nil, util.InvalidInput("terminal status must be failed or cancelled, got %s", status)
	}
	return r.transition(id, func(t *domain.Transaction) {
		t.Status = status
		t.UpdatedAt = time.Now().UTC()
		t.Metadata = t.Metadata.Merge(metadata)
	})
}

func (r *transactionRepo) SetGatewayHandles(_ context.Context, id int64, externalReference, pollURL *string) error {
	return r.s.run(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok || t.Status != domain.TransactionStatusPending {
			return nil
		}
		if externalReference != nil {
			v := *externalReference
			t.ExternalReference = &v
		}
		if pollURL != nil {
			v := *pollURL
			t.PollURL = &v
		}
		t.Metadata = t.Metadata.Clone()
		delete(t.Metadata, domain.MetadataCharging)
		t.UpdatedAt = time.Now().UTC()
		st.transactions[id] = t
		return nil
	})
}

func (r *transactionRepo) ClaimCharge(_ context.Context, id int64) (bool, error) {
	claimed := false
	err := r.s.run(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return util.ErrNotFound
		}
		if t.Status != domain.TransactionStatusPending || t.PollURL != nil {
			return nil
		}
		if _, held := t.Metadata[domain.MetadataCharging]; held {
			return nil
		}
		t.Metadata = t.Metadata.Merge(domain.Metadata{domain.MetadataCharging: true})
		t.UpdatedAt = time.Now().UTC()
		st.transactions[id] = t
		claimed = true
		return nil
	})
	return claimed, err
}

func (r *transactionRepo) ReleaseCharge(_ context.Context, id int64) error {
	return r.s.run(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return util.ErrNotFound
		}
		if _, held := t.Metadata[domain.MetadataCharging]; !held {
			return nil
		}
		t.Metadata = t.Metadata.Clone()
		delete(t.Metadata, domain.MetadataCharging)
		t.UpdatedAt = time.Now().UTC()
		st.transactions[id] = t
		return nil
	})
}

func (r *transactionRepo) collect(match func(t domain.Transaction) bool) ([]domain.Transaction, error) {
	out := []domain.Transaction{}
	err := r.s.run(func(st *state) error {
		for _, t := range st.transactions {
			if match(t) {
				t.Metadata = t.Metadata.Clone()
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (r *transactionRepo) ListPendingByUser(_ context.Context, userID int64, txType domain.TransactionType) ([]domain.Transaction, error) {
	out, err := r.collect(func(t domain.Transaction) bool {
		return t.UserID == userID && t.Type == txType && t.Status == domain.TransactionStatusPending
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func matches(f repository.TransactionFilter, t domain.Transaction) bool {
	walletID := t.ToWalletID
	if f.Outgoing {
		walletID = t.FromWalletID
	}
	if walletID == nil || *walletID != f.WalletID || t.Type != f.Type {
		return false
	}
	if !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if t.CreatedAt.Before(f.Since) {
		return false
	}
	return f.Until.IsZero() || t.CreatedAt.Before(f.Until)
}

func (r *transactionRepo) SumAmounts(_ context.Context, f repository.TransactionFilter) (decimal.Decimal, error) {
	rows, err := r.collect(func(t domain.Transaction) bool { return matches(f, t) })
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		total = total.Add(t.Amount)
	}
	return total, nil
}

func (r *transactionRepo) CountTransactions(_ context.Context, f repository.TransactionFilter) (int, error) {
	rows, err := r.collect(func(t domain.Transaction) bool { return matches(f, t) })
	return len(rows), err
}

func (r *transactionRepo) GetTransactionsByWalletID(_ context.Context, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	rows, err := r.collect(func(t domain.Transaction) bool {
		return (t.FromWalletID != nil && *t.FromWalletID == walletID) || (t.ToWalletID != nil && *t.ToWalletID == walletID)
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	total := int64(len(rows))
	if offset >= len(rows) {
		return []domain.Transaction{}, total, nil
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end], total, nil
}

type settlementRepo struct{ s *Store }

func (r *settlementRepo) CreateSettlement(_ context.Context, s *domain.Settlement) error {
	return r.s.run(func(st *state) error {
		for _, existing := range st.settlements {
			if existing.BatchID == s.BatchID && existing.DriverID == s.DriverID {
				return fmt.Errorf("settlement for driver %d in batch %s: %w", s.DriverID, s.BatchID, util.ErrDuplicateEntry)
			}
		}
		st.nextSettlementID++
		s.ID = st.nextSettlementID
		st.settlements[s.ID] = *s
		return nil
	})
}

func (r *settlementRepo) ListSettlementsByBatch(_ context.Context, batchID string) ([]domain.Settlement, error) {
	out := []domain.Settlement{}
	err := r.s.run(func(st *state) error {
		for _, s := range st.settlements {
			if s.BatchID == batchID {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, err
}

type driverRepo struct{ s *Store }

func (r *driverRepo) CreateSession(_ context.Context, s *domain.DriverSession) error {
	return r.s.run(func(st *state) error {
		if _, ok := st.sessions[s.Token]; ok {
			return fmt.Errorf("driver session token: %w", util.ErrDuplicateEntry)
		}
		st.sessions[s.Token] = *s
		return nil
	})
}

func (r *driverRepo) GetSession(_ context.Context, token string) (*domain.DriverSession, error) {
	var out domain.DriverSession
	err := r.s.run(func(st *state) error {
		s, ok := st.sessions[token]
		if !ok {
			return util.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *driverRepo) UpsertBankDetails(_ context.Context, d *domain.DriverBankDetails) error {
	return r.s.run(func(st *state) error {
		if existing, ok := st.bankDetails[d.DriverID]; ok {
			d.CreatedAt = existing.CreatedAt
		}
		st.bankDetails[d.DriverID] = *d
		return nil
	})
}

func (r *driverRepo) GetBankDetails(_ context.Context, driverID int64) (*domain.DriverBankDetails, error) {
	var out domain.DriverBankDetails
	err := r.s.run(func(st *state) error {
		d, ok := st.bankDetails[driverID]
		if !ok {
			return util.ErrNotFound
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
