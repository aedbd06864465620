package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

func TestGetNetwork_ThreeLevels(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	env.db.addUser("l1b", domain.RoleMember, "l2")

	net, err := env.referrals.GetNetwork(context.Background(), admin, "l4")
	require.NoError(t, err)
	assert.Equal(t, []string{"l3"}, net.Levels.Level1)
	assert.Equal(t, []string{"l2"}, net.Levels.Level2)
	assert.ElementsMatch(t, []string{"l1", "l1b"}, net.Levels.Level3)
	assert.Equal(t, 4, net.Total)
}

func TestGetNetwork_CyclicDataTerminates(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.db.addUser("a", domain.RoleAgent, "c")
	env.db.addUser("b", domain.RoleAgent, "a")
	env.db.addUser("c", domain.RoleAgent, "b")

	net, err := env.referrals.GetNetwork(context.Background(), admin, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, net.Levels.Level1)
	assert.Equal(t, []string{"c"}, net.Levels.Level2)
	assert.Empty(t, net.Levels.Level3)
}

func TestGetNetwork_Permissions(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	ctx := context.Background()

	_, err := env.referrals.GetNetwork(ctx, domain.Principal{UserID: "l1", Role: domain.RoleMember}, "l2")
	var perr *domain.PermissionError
	assert.ErrorAs(t, err, &perr)

	_, err = env.referrals.GetNetwork(ctx, domain.Principal{UserID: "l2", Role: domain.RoleAgent}, "l2")
	assert.NoError(t, err)

	_, err = env.referrals.GetNetwork(ctx, admin, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignReferrer(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	env.db.addUser("newbie", domain.RoleMember, "")
	ctx := context.Background()

	u, err := env.referrals.AssignReferrer(ctx, admin, "newbie", "l1")
	require.NoError(t, err)
	require.NotNil(t, u.ReferredBy)
	assert.Equal(t, "l1", *u.ReferredBy)
	assert.Equal(t, []string{"l1", "l2", "l3", "l4"}, u.ReferralChain)
	assert.Equal(t, 1, env.db.graphLocks)
}

func TestAssignReferrer_RewritesDescendantChains(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	env.db.addUser("root", domain.RoleAgent, "")
	ctx := context.Background()

	// Moving l3 under root changes the ancestry of l2, l1 and buyer.
	_, err := env.referrals.AssignReferrer(ctx, admin, "l3", "root")
	require.NoError(t, err)

	assert.Equal(t, []string{"root"}, env.db.users["l3"].ReferralChain)
	assert.Equal(t, []string{"l3", "root"}, env.db.users["l2"].ReferralChain)
	assert.Equal(t, []string{"l2", "l3", "root"}, env.db.users["l1"].ReferralChain)
	assert.Equal(t, []string{"l1", "l2", "l3", "root"}, env.db.users["buyer"].ReferralChain)
	assert.Nil(t, env.db.users["l4"].ReferralChain)
}

func TestAssignReferrer_CycleCheckSeesCommittedAssignment(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.db.addUser("a", domain.RoleAgent, "")
	env.db.addUser("b", domain.RoleAgent, "")
	ctx := context.Background()

	// Two assignments racing in opposite directions: whichever runs second sees the first.
	results := make(chan error, 2)
	go func() {
		_, err := env.referrals.AssignReferrer(ctx, admin, "a", "b")
		results <- err
	}()
	go func() {
		_, err := env.referrals.AssignReferrer(ctx, admin, "b", "a")
		results <- err
	}()

	var cycles, ok int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrReferralCycle):
			cycles++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, cycles)
	assert.Equal(t, 2, env.db.graphLocks)
}

func TestAssignReferrer_RejectsCycles(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	ctx := context.Background()

	_, err := env.referrals.AssignReferrer(ctx, admin, "l4", "buyer")
	assert.ErrorIs(t, err, domain.ErrReferralCycle)

	_, err = env.referrals.AssignReferrer(ctx, admin, "l2", "l2")
	assert.ErrorIs(t, err, domain.ErrReferralCycle)

	assert.Nil(t, env.db.users["l4"].ReferredBy)
}

func TestAssignReferrer_AdminOnly(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()

	_, err := env.referrals.AssignReferrer(context.Background(), domain.Principal{UserID: "l1", Role: domain.RoleAgent}, "buyer", "l3")
	var perr *domain.PermissionError
	assert.ErrorAs(t, err, &perr)
}

func pendingReferral(t *testing.T, env *testEnv) domain.Referral {
	t.Helper()
	_, err := env.settlement.Settle(context.Background(), purchase("order-1", 20_000))
	require.NoError(t, err)
	for _, ref := range env.db.referrals {
		if ref.Level == 1 {
			return ref
		}
	}
	t.Fatal("no level 1 referral recorded")
	return domain.Referral{}
}

func TestApproveReferral_CreditsWalletOnce(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	ref := pendingReferral(t, env)
	ctx := context.Background()

	got, err := env.referrals.ApproveReferral(ctx, admin, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralStatusApproved, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, admin.UserID, *got.ReviewedBy)
	assert.Equal(t, int64(5000), env.db.users["l1"].WalletBalancePaise)
	assert.Len(t, env.db.transactionsOf("l1", domain.TransactionTypeCredit), 1)

	_, err = env.referrals.ApproveReferral(ctx, admin, ref.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	assert.Equal(t, int64(5000), env.db.users["l1"].WalletBalancePaise)

	env.publisher.AssertCalled(t, "Publish", mock.Anything, domain.SubjectReferralApproved, mock.Anything)
}

func TestRejectReferral_CreditsNothing(t *testing.T) {
	env := newTestEnv(domain.DefaultSettlementSettings())
	env.seedChain()
	ref := pendingReferral(t, env)

	got, err := env.referrals.RejectReferral(context.Background(), admin, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralStatusRejected, got.Status)
	assert.Zero(t, env.db.users["l1"].WalletBalancePaise)
	assert.Empty(t, env.db.transactionsOf("l1", domain.TransactionTypeCredit))

	_, err = env.referrals.RejectReferral(context.Background(), admin, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
