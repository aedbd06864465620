package app

import "github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"

// Repositories groups the stores shared by the loyalty services.
type Repositories struct {
	Users         repository.UserRepository
	Merchants     repository.MerchantRepository
	Transactions  repository.TransactionRepository
	Referrals     repository.ReferralRepository
	Withdrawals   repository.BoostWithdrawalRepository
	BoostLedger   repository.BoostLedgerRepository
	Payouts       repository.PayoutRepository
	Slabs         repository.SlabRepository
	LuckyDraws    repository.LuckyDrawRepository
	Settlements   repository.SettlementRepository
	PaymentOrders repository.PaymentOrderRepository
}
