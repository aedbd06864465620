package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// memDB is an in-memory stand-in for PostgreSQL. WithinTx snapshots every table and
// restores the snapshot when fn fails, so tests can observe rollback.
type memDB struct {
	mu sync.Mutex

	users        map[string]domain.User
	merchants    map[string]domain.Merchant
	transactions []domain.Transaction
	referrals    map[string]domain.Referral
	withdrawals  map[string]domain.BoostWithdrawal
	ledger       []domain.BoostLedgerEntry
	payouts      map[string]domain.Payout
	slabs        map[string][]domain.LoyaltySlab
	draws        map[string]domain.LuckyDrawConfig
	entries      []domain.LuckyDrawEntry
	settlements  map[string]domain.Settlement
	orders       map[string]domain.PaymentOrder
	settings     *domain.SettlementSettings

	// graphLocks counts LockReferralGraph calls.
	graphLocks int

	// failOn makes the named operation return an error, to exercise rollback.
	failOn string
}

func newMemDB() *memDB {
	return &memDB{
		users:       map[string]domain.User{},
		merchants:   map[string]domain.Merchant{},
		referrals:   map[string]domain.Referral{},
		withdrawals: map[string]domain.BoostWithdrawal{},
		payouts:     map[string]domain.Payout{},
		slabs:       map[string][]domain.LoyaltySlab{},
		draws:       map[string]domain.LuckyDrawConfig{},
		settlements: map[string]domain.Settlement{},
		orders:      map[string]domain.PaymentOrder{},
	}
}

type memSnapshot struct {
	users        map[string]domain.User
	merchants    map[string]domain.Merchant
	transactions []domain.Transaction
	referrals    map[string]domain.Referral
	withdrawals  map[string]domain.BoostWithdrawal
	ledger       []domain.BoostLedgerEntry
	payouts      map[string]domain.Payout
	entries      []domain.LuckyDrawEntry
	settlements  map[string]domain.Settlement
	orders       map[string]domain.PaymentOrder
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	return memSnapshot{
		users:        copyMap(db.users),
		merchants:    copyMap(db.merchants),
		transactions: append([]domain.Transaction(nil), db.transactions...),
		referrals:    copyMap(db.referrals),
		withdrawals:  copyMap(db.withdrawals),
		ledger:       append([]domain.BoostLedgerEntry(nil), db.ledger...),
		payouts:      copyMap(db.payouts),
		entries:      append([]domain.LuckyDrawEntry(nil), db.entries...),
		settlements:  copyMap(db.settlements),
		orders:       copyMap(db.orders),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.users = s.users
	db.merchants = s.merchants
	db.transactions = s.transactions
	db.referrals = s.referrals
	db.withdrawals = s.withdrawals
	db.ledger = s.ledger
	db.payouts = s.payouts
	db.entries = s.entries
	db.settlements = s.settlements
	db.orders = s.orders
}

func (db *memDB) check(op string) error {
	if db.failOn == op {
		return fmt.Errorf("injected failure in %s", op)
	}
	return nil
}

// WithinTx serialises units of work, which is the isolation the real store gives
// through row locks and atomic updates.
func (db *memDB) WithinTx(ctx context.Context, fn func(q repository.Querier) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *memDB) repositories() Repositories {
	return Repositories{
		Users:         memUsers{db},
		Merchants:     memMerchants{db},
		Transactions:  memTransactions{db},
		Referrals:     memReferrals{db},
		Withdrawals:   memWithdrawals{db},
		BoostLedger:   memLedger{db},
		Payouts:       memPayouts{db},
		Slabs:         memSlabs{db},
		LuckyDraws:    memDraws{db},
		Settlements:   memSettlements{db},
		PaymentOrders: memOrders{db},
	}
}

func (db *memDB) addUser(id string, role domain.Role, referredBy string) {
	u := domain.User{ID: id, Role: role, Status: domain.UserStatusApproved}
	if referredBy != "" {
		ref := referredBy
		u.ReferredBy = &ref
	}
	db.users[id] = u
}

func (db *memDB) transactionsOf(userID string, t domain.TransactionType) []domain.Transaction {
	var out []domain.Transaction
	for _, txn := range db.transactions {
		if txn.UserID == userID && txn.Type == t {
			out = append(out, txn)
		}
	}
	return out
}

// --- users ---

type memUsers struct{ db *memDB }

func (r memUsers) GetByID(_ context.Context, _ repository.Querier, id string) (*domain.User, error) {
	u, ok := r.db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (r memUsers) GetReferrerID(ctx context.Context, q repository.Querier, id string) (string, error) {
	u, err := r.GetByID(ctx, q, id)
	if err != nil {
		return "", err
	}
	if u.ReferredBy == nil {
		return "", nil
	}
	return *u.ReferredBy, nil
}

func (r memUsers) ListReferredBy(_ context.Context, _ repository.Querier, ids []string) ([]domain.User, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.User
	for _, u := range r.db.users {
		if u.ReferredBy != nil && want[*u.ReferredBy] {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUsers) SetReferrer(_ context.Context, _ repository.Querier, id, referrerID string, chain []string) error {
	u, ok := r.db.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	ref := referrerID
	u.ReferredBy = &ref
	u.ReferralChain = chain
	r.db.users[id] = u
	return nil
}

func (r memUsers) SetReferralChain(_ context.Context, _ repository.Querier, id string, chain []string) error {
	u, ok := r.db.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.ReferralChain = chain
	r.db.users[id] = u
	return nil
}

func (r memUsers) LockReferralGraph(_ context.Context, _ repository.Querier) error {
	r.db.graphLocks++
	return nil
}

func (r memUsers) AddWallet(_ context.Context, _ repository.Querier, id string, delta int64) (int64, error) {
	if err := r.db.check("AddWallet"); err != nil {
		return 0, err
	}
	u, ok := r.db.users[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.WalletBalancePaise += delta
	r.db.users[id] = u
	return u.WalletBalancePaise, nil
}

func (r memUsers) DebitWallet(_ context.Context, _ repository.Querier, id string, amount int64) (int64, error) {
	u, ok := r.db.users[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if u.WalletBalancePaise < amount {
		return 0, domain.ErrInsufficientBalance
	}
	u.WalletBalancePaise -= amount
	r.db.users[id] = u
	return u.WalletBalancePaise, nil
}

func (r memUsers) AddPoints(_ context.Context, _ repository.Querier, id string, delta int64) (int64, error) {
	u, ok := r.db.users[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.PointsBalance += delta
	r.db.users[id] = u
	return u.PointsBalance, nil
}

// --- merchants ---

type memMerchants struct{ db *memDB }

func (r memMerchants) GetByID(_ context.Context, _ repository.Querier, id string) (*domain.Merchant, error) {
	m, ok := r.db.merchants[id]
	if !ok {
		return nil, fmt.Errorf("merchant %s: %w", id, domain.ErrNotFound)
	}
	return &m, nil
}

func (r memMerchants) CreditBoost(_ context.Context, _ repository.Querier, id string, amount int64) (int64, error) {
	if err := r.db.check("CreditBoost"); err != nil {
		return 0, err
	}
	m, ok := r.db.merchants[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	m.BoostBalancePaise += amount
	r.db.merchants[id] = m
	return m.BoostBalancePaise, nil
}

func (r memMerchants) DebitBoost(_ context.Context, _ repository.Querier, id string, amount int64) (int64, error) {
	m, ok := r.db.merchants[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if m.BoostBalancePaise < amount {
		return 0, domain.ErrInsufficientBalance
	}
	m.BoostBalancePaise -= amount
	r.db.merchants[id] = m
	return m.BoostBalancePaise, nil
}

// --- ledgers ---

type memTransactions struct{ db *memDB }

func (r memTransactions) Create(_ context.Context, _ repository.Querier, txn *domain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	r.db.transactions = append(r.db.transactions, *txn)
	return nil
}

func (r memTransactions) ListByUser(_ context.Context, _ repository.Querier, userID string, limit, offset int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range r.db.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r memTransactions) CountByUserAndType(_ context.Context, _ repository.Querier, userID string, t domain.TransactionType) (int, error) {
	return len(r.db.transactionsOf(userID, t)), nil
}

type memLedger struct{ db *memDB }

func (r memLedger) Create(_ context.Context, _ repository.Querier, e *domain.BoostLedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.db.ledger = append(r.db.ledger, *e)
	return nil
}

// --- requests ---

type memReferrals struct{ db *memDB }

func (r memReferrals) Create(_ context.Context, _ repository.Querier, ref *domain.Referral) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	r.db.referrals[ref.ID] = *ref
	return nil
}

func (r memReferrals) GetByIDForUpdate(_ context.Context, _ repository.Querier, id string) (*domain.Referral, error) {
	ref, ok := r.db.referrals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ref, nil
}

func (r memReferrals) UpdateStatus(_ context.Context, _ repository.Querier, ref *domain.Referral) error {
	r.db.referrals[ref.ID] = *ref
	return nil
}

func (r memReferrals) ListByReferrer(_ context.Context, _ repository.Querier, referrerID string, _, _ int) ([]domain.Referral, error) {
	var out []domain.Referral
	for _, ref := range r.db.referrals {
		if ref.ReferrerID == referrerID {
			out = append(out, ref)
		}
	}
	return out, nil
}

type memWithdrawals struct{ db *memDB }

func (r memWithdrawals) Create(_ context.Context, _ repository.Querier, w *domain.BoostWithdrawal) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	r.db.withdrawals[w.ID] = *w
	return nil
}

func (r memWithdrawals) GetByIDForUpdate(_ context.Context, _ repository.Querier, id string) (*domain.BoostWithdrawal, error) {
	w, ok := r.db.withdrawals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (r memWithdrawals) UpdateStatus(_ context.Context, _ repository.Querier, w *domain.BoostWithdrawal) error {
	r.db.withdrawals[w.ID] = *w
	return nil
}

type memPayouts struct{ db *memDB }

func (r memPayouts) Create(_ context.Context, _ repository.Querier, p *domain.Payout) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.db.payouts[p.ID] = *p
	return nil
}

func (r memPayouts) GetByIDForUpdate(_ context.Context, _ repository.Querier, id string) (*domain.Payout, error) {
	p, ok := r.db.payouts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r memPayouts) UpdateStatus(_ context.Context, _ repository.Querier, p *domain.Payout) error {
	r.db.payouts[p.ID] = *p
	return nil
}

// --- configuration ---

type memSlabs struct{ db *memDB }

func (r memSlabs) ListByCategory(_ context.Context, _ repository.Querier, key string) ([]domain.LoyaltySlab, error) {
	return r.db.slabs[key], nil
}

type memDraws struct{ db *memDB }

func (r memDraws) GetConfig(_ context.Context, _ repository.Querier, drawDate string) (*domain.LuckyDrawConfig, error) {
	cfg, ok := r.db.draws[drawDate]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (r memDraws) CreateEntry(_ context.Context, _ repository.Querier, e *domain.LuckyDrawEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.db.entries = append(r.db.entries, *e)
	return nil
}

type memSettings struct{ db *memDB }

func (r memSettings) LoadSettlementSettings(_ context.Context, _ repository.Querier) (*domain.SettlementSettings, error) {
	return r.db.settings, nil
}

type memSettlements struct{ db *memDB }

func (r memSettlements) Claim(_ context.Context, _ repository.Querier, key string) error {
	if _, ok := r.db.settlements[key]; ok {
		return domain.ErrAlreadySettled
	}
	r.db.settlements[key] = domain.Settlement{Key: key, CreatedAt: time.Now().UTC()}
	return nil
}

func (r memSettlements) Complete(_ context.Context, _ repository.Querier, s *domain.Settlement) error {
	prev, ok := r.db.settlements[s.Key]
	if !ok {
		return domain.ErrNotFound
	}
	s.CreatedAt = prev.CreatedAt
	r.db.settlements[s.Key] = *s
	return nil
}

func (r memSettlements) Get(_ context.Context, _ repository.Querier, key string) (*domain.Settlement, error) {
	s, ok := r.db.settlements[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

// --- payment orders ---

type memOrders struct{ db *memDB }

func (r memOrders) Create(_ context.Context, _ repository.Querier, o *domain.PaymentOrder) error {
	r.db.orders[o.MerchantOrderID] = *o
	return nil
}

func (r memOrders) Get(_ context.Context, _ repository.Querier, id string) (*domain.PaymentOrder, error) {
	o, ok := r.db.orders[id]
	if !ok {
		return nil, fmt.Errorf("payment order %s: %w", id, domain.ErrNotFound)
	}
	return &o, nil
}

func (r memOrders) GetForUpdate(ctx context.Context, q repository.Querier, id string) (*domain.PaymentOrder, error) {
	return r.Get(ctx, q, id)
}

func (r memOrders) UpdateStatus(_ context.Context, _ repository.Querier, o *domain.PaymentOrder) error {
	if _, ok := r.db.orders[o.MerchantOrderID]; !ok {
		return domain.ErrNotFound
	}
	r.db.orders[o.MerchantOrderID] = *o
	return nil
}
