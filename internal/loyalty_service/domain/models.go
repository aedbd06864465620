package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Role is the account type of a user.
type Role string

const (
	RoleSuperAdmin Role = "superAdmin"
	RoleAgent      Role = "agent"
	RoleMerchant   Role = "merchant"
	RoleMember     Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAgent, RoleMerchant, RoleMember:
		return true
	}
	return false
}

// UserStatus is the account approval state.
type UserStatus string

const (
	UserStatusPending     UserStatus = "pending"
	UserStatusApproved    UserStatus = "approved"
	UserStatusRejected    UserStatus = "rejected"
	UserStatusDeactivated UserStatus = "deactivated"
)

// User is a platform account. Balances are running totals kept in step with the ledger.
type User struct {
	ID                 string     `json:"id"`
	Role               Role       `json:"role"`
	ReferredBy         *string    `json:"referred_by,omitempty"`
	ReferralChain      []string   `json:"referral_chain,omitempty"` // nearest ancestor first
	WalletBalancePaise int64      `json:"wallet_balance_paise"`
	PointsBalance      int64      `json:"points_balance"`
	Status             UserStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Merchant is a shop that accepts purchases and accrues Boost cashback.
type Merchant struct {
	ID                string    `json:"id"`
	OwnerUserID       string    `json:"owner_user_id"`
	LinkedAgentID     *string   `json:"linked_agent_id,omitempty"`
	CommissionRate    float64   `json:"commission_rate"`
	BoostBalancePaise int64     `json:"boost_balance_paise"`
	Category          *string   `json:"category,omitempty"`
	Industry          *string   `json:"industry,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TransactionType defines the nature of a ledger entry.
type TransactionType string

const (
	TransactionTypePurchase       TransactionType = "purchase"
	TransactionTypePayout         TransactionType = "payout"
	TransactionTypeRefund         TransactionType = "refund"
	TransactionTypeCommission     TransactionType = "commission"
	TransactionTypeCredit         TransactionType = "credit"
	TransactionTypeDebit          TransactionType = "debit"
	TransactionTypePointsEarned   TransactionType = "points-earned"
	TransactionTypePointsRedeemed TransactionType = "points-redeemed"
)

// Value implements the driver.Valuer interface for TransactionType.
func (tt TransactionType) Value() (driver.Value, error) {
	return string(tt), nil
}

// Scan implements the sql.Scanner interface for TransactionType.
func (tt *TransactionType) Scan(value interface{}) error {
	var strVal string
	switch v := value.(type) {
	case string:
		strVal = v
	case []byte:
		strVal = string(v)
	default:
		return fmt.Errorf("failed to scan TransactionType: value is not string or []byte, it is %T", value)
	}
	switch t := TransactionType(strVal); t {
	case TransactionTypePurchase, TransactionTypePayout, TransactionTypeRefund, TransactionTypeCommission,
		TransactionTypeCredit, TransactionTypeDebit, TransactionTypePointsEarned, TransactionTypePointsRedeemed:
		*tt = t
		return nil
	}
	return fmt.Errorf("unknown TransactionType value: %s", strVal)
}

// Transaction is an immutable ledger entry. Amount is paise for money types and
// points for the points-* types.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	MerchantID  *string         `json:"merchant_id,omitempty"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	SourceID    *string         `json:"source_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReferralStatus tracks commission approval.
type ReferralStatus string

const (
	ReferralStatusPending  ReferralStatus = "pending"
	ReferralStatusApproved ReferralStatus = "approved"
	ReferralStatusRejected ReferralStatus = "rejected"
)

// Referral records one commission award to one upline member for one purchase.
type Referral struct {
	ID                    string         `json:"id"`
	ReferrerID            string         `json:"referrer_id"`
	ReferredID            string         `json:"referred_id"`
	Level                 int            `json:"level"`
	CommissionAmountPaise int64          `json:"commission_amount_paise"`
	Status                ReferralStatus `json:"status"`
	SourceTransactionID   string         `json:"source_transaction_id"`
	CreatedAt             time.Time      `json:"created_at"`
	ReviewedAt            *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy            *string        `json:"reviewed_by,omitempty"`
}

// RequestStatus is shared by payout and boost withdrawal requests.
// pending moves to completed or rejected; both are terminal.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusRejected  RequestStatus = "rejected"
)

// BoostWithdrawal is a merchant's request to cash out Boost balance.
// The amount is debited from the balance when the request is created.
type BoostWithdrawal struct {
	ID           string        `json:"id"`
	MerchantID   string        `json:"merchant_id"`
	RequestedBy  string        `json:"requested_by"`
	AmountPaise  int64         `json:"amount_paise"`
	Status       RequestStatus `json:"status"`
	AutoApproved bool          `json:"auto_approved"`
	Note         string        `json:"note,omitempty"`
	ReviewedBy   *string       `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Payout is a wallet cash-out request. Same lifecycle as BoostWithdrawal.
type Payout struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	AmountPaise int64         `json:"amount_paise"`
	Status      RequestStatus `json:"status"`
	Note        string        `json:"note,omitempty"`
	ReviewedBy  *string       `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// BoostEntryType is the kind of movement on a merchant's Boost balance.
type BoostEntryType string

const (
	BoostEntryCredit BoostEntryType = "credit"
	BoostEntryDebit  BoostEntryType = "debit"
	BoostEntryRefund BoostEntryType = "refund"
)

// BoostLedgerEntry is one movement on a merchant's Boost balance.
type BoostLedgerEntry struct {
	ID          string         `json:"id"`
	MerchantID  string         `json:"merchant_id"`
	Type        BoostEntryType `json:"type"`
	AmountPaise int64          `json:"amount_paise"`
	SourceID    string         `json:"source_id"`
	CreatedAt   time.Time      `json:"created_at"`
}

// LoyaltySlab awards Points for purchases in [MinAmountPaise, MaxAmountPaise].
// A nil MaxAmountPaise means the range is unbounded above.
type LoyaltySlab struct {
	CategoryKey    string  `json:"category_key"`
	MinAmountPaise int64   `json:"min_amount_paise"`
	MaxAmountPaise *int64  `json:"max_amount_paise,omitempty"`
	Points         float64 `json:"points"`
}

// LuckyDrawConfig enables the draw for a single calendar day.
type LuckyDrawConfig struct {
	DrawDate          string `json:"draw_date"` // YYYY-MM-DD
	Enabled           bool   `json:"enabled"`
	MinPurchaseRupees int64  `json:"min_purchase_rupees"`
}

// LuckyDrawEntry is one ticket earned by a qualifying purchase.
type LuckyDrawEntry struct {
	ID            string    `json:"id"`
	DrawDate      string    `json:"draw_date"`
	UserID        string    `json:"user_id"`
	MerchantID    string    `json:"merchant_id"`
	TransactionID string    `json:"transaction_id"`
	AmountPaise   int64     `json:"amount_paise"`
	CreatedAt     time.Time `json:"created_at"`
}

// Settlement is the idempotency record for a settled purchase.
type Settlement struct {
	Key                   string    `json:"key"`
	PurchaseTransactionID string    `json:"purchase_transaction_id"`
	PointsAwarded         int64     `json:"points_awarded"`
	BoostCreditedPaise    int64     `json:"boost_credited_paise"`
	CommissionCount       int       `json:"commission_count"`
	LuckyDrawEntryID      *string   `json:"lucky_draw_entry_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// PaymentOrderStatus is the local view of a gateway order.
type PaymentOrderStatus string

const (
	PaymentOrderStatusPending PaymentOrderStatus = "pending"
	PaymentOrderStatusSuccess PaymentOrderStatus = "success"
	PaymentOrderStatusFailed  PaymentOrderStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s PaymentOrderStatus) IsTerminal() bool {
	return s == PaymentOrderStatusSuccess || s == PaymentOrderStatusFailed
}

// PaymentOrder tracks a purchase paid through the gateway.
type PaymentOrder struct {
	MerchantOrderID      string             `json:"merchant_order_id"`
	GatewayOrderID       string             `json:"gateway_order_id"`
	UserID               string             `json:"user_id"`
	MerchantID           string             `json:"merchant_id"`
	OfferID              *string            `json:"offer_id,omitempty"`
	Quantity             int                `json:"quantity"`
	AmountPaise          int64              `json:"amount_paise"`
	Status               PaymentOrderStatus `json:"status"`
	RedirectURL          string             `json:"redirect_url"`
	ExpireAt             time.Time          `json:"expire_at"`
	GatewayTransactionID *string            `json:"gateway_transaction_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}
