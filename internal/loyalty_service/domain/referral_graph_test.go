package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userReferredBy(id, referrer string) User {
	u := User{ID: id, Role: RoleMember}
	if referrer != "" {
		u.ReferredBy = ptrString(referrer)
	}
	return u
}

func TestComputeReferralLevels_Chain(t *testing.T) {
	users := []User{
		userReferredBy("A", ""),
		userReferredBy("B", "A"),
		userReferredBy("C", "B"),
		userReferredBy("D", "C"),
		userReferredBy("E", "D"), // fourth generation
	}

	levels := ComputeReferralLevels(users, "A")
	assert.Equal(t, []string{"B"}, levels.Level1)
	assert.Equal(t, []string{"C"}, levels.Level2)
	assert.Equal(t, []string{"D"}, levels.Level3)
	assert.Equal(t, 3, levels.Total())
}

func TestComputeReferralLevels_Branching(t *testing.T) {
	users := []User{
		userReferredBy("root", ""),
		userReferredBy("a1", "root"),
		userReferredBy("a2", "root"),
		userReferredBy("b1", "a1"),
		userReferredBy("b2", "a2"),
		userReferredBy("b3", "a2"),
		userReferredBy("other", ""),
	}

	levels := ComputeReferralLevels(users, "root")
	assert.ElementsMatch(t, []string{"a1", "a2"}, levels.Level1)
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, levels.Level2)
	assert.Empty(t, levels.Level3)
}

func TestComputeReferralLevels_CycleDoesNotLoop(t *testing.T) {
	// A -> B -> C -> A
	users := []User{
		userReferredBy("A", "C"),
		userReferredBy("B", "A"),
		userReferredBy("C", "B"),
	}

	levels := ComputeReferralLevels(users, "A")
	assert.Equal(t, []string{"B"}, levels.Level1)
	assert.Equal(t, []string{"C"}, levels.Level2)
	assert.Empty(t, levels.Level3, "root must not reappear as its own descendant")
}

func TestUpline(t *testing.T) {
	parents := map[string]string{"D": "C", "C": "B", "B": "A", "A": "root"}
	lookup := func(id string) (string, error) { return parents[id], nil }

	chain, err := Upline("D", MaxReferralDepth, lookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, chain)

	chain, err = Upline("B", MaxReferralDepth, lookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "root"}, chain)

	chain, err = Upline("root", MaxReferralDepth, lookup)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestUpline_StopsOnCycle(t *testing.T) {
	parents := map[string]string{"A": "B", "B": "A"}
	lookup := func(id string) (string, error) { return parents[id], nil }

	chain, err := Upline("A", 10, lookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, chain)
}

func TestUpline_LookupError(t *testing.T) {
	boom := errors.New("db down")
	_, err := Upline("A", 3, func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestCheckReferrerAssignment(t *testing.T) {
	assert.ErrorIs(t, CheckReferrerAssignment("A", "A", nil), ErrReferralCycle)
	// B's ancestors include A, so A cannot be referred by B.
	assert.ErrorIs(t, CheckReferrerAssignment("A", "B", []string{"X", "A"}), ErrReferralCycle)
	assert.NoError(t, CheckReferrerAssignment("A", "B", []string{"X", "Y"}))
}
