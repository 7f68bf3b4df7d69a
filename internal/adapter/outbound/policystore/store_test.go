package policystore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/policystore"
	domainstore "github.com/ipe-systems/ipe/internal/domain/policystore"
	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/vm"
)

func newStore() *policystore.Store {
	mgr := tiering.NewManager(vm.New(), nil)
	return policystore.New(mgr, 1)
}

func ctxFor(typeID int64, env string) *evalctx.EvaluationContext {
	return evalctx.New(
		evalctx.Resource{TypeID: typeID, Attributes: map[string]evalctx.AttributeValue{
			"environment": evalctx.FromValue(bytecode.String(env)),
		}},
		evalctx.Action{Operation: "read"},
		evalctx.Request{Principal: evalctx.Principal{ID: "alice"}},
	)
}

func TestEvaluateNoPoliciesForResourceType(t *testing.T) {
	s := newStore()
	dec, err := s.Evaluate(context.Background(), ctxFor(1, "production"))
	require.NoError(t, err)
	assert.False(t, dec.IsAllow())
	assert.Equal(t, "No policies found for resource type", dec.Reason)
}

func TestAddPolicyThenEvaluateAllows(t *testing.T) {
	s := newStore()
	result := s.UpdateSync(domainstore.AddPolicy("AllowProd", `policy AllowProd:
"x"
triggers when resource.type == 1
requires environment == "production"
`, []int64{1}))
	require.NoError(t, result.Err)
	assert.Equal(t, uint64(1), result.Version)

	dec, err := s.Evaluate(context.Background(), ctxFor(1, "production"))
	require.NoError(t, err)
	assert.True(t, dec.IsAllow())
	assert.Equal(t, []string{"AllowProd"}, dec.MatchedPolicies)
}

func TestEvaluateDeniesWhenNoPolicyAllows(t *testing.T) {
	s := newStore()
	s.UpdateSync(domainstore.AddPolicy("AllowProd", `policy AllowProd:
"x"
triggers when resource.type == 1
requires environment == "production"
`, []int64{1}))

	dec, err := s.Evaluate(context.Background(), ctxFor(1, "staging"))
	require.NoError(t, err)
	assert.False(t, dec.IsAllow())
	assert.Equal(t, "No policies allowed access", dec.Reason)
}

func TestRemovePolicy(t *testing.T) {
	s := newStore()
	s.UpdateSync(domainstore.AddPolicy("AllowProd", `policy AllowProd:
"x"
triggers when resource.type == 1
requires environment == "production"
`, []int64{1}))

	result := s.UpdateSync(domainstore.RemovePolicy("AllowProd"))
	require.NoError(t, result.Err)

	dec, err := s.Evaluate(context.Background(), ctxFor(1, "production"))
	require.NoError(t, err)
	assert.False(t, dec.IsAllow())
}

func TestReplaceAll(t *testing.T) {
	s := newStore()
	result := s.UpdateSync(domainstore.ReplaceAll([]domainstore.PolicySpec{
		{Name: "A", Source: `policy A:
"x"
triggers when resource.type == 1
requires environment == "production"
`, ResourceTypes: []int64{1}},
		{Name: "B", Source: `policy B:
"x"
triggers when resource.type == 2
requires environment == "staging"
`, ResourceTypes: []int64{2}},
	}))
	require.NoError(t, result.Err)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Len())
}

func TestCompileFailureAbortsUpdateAtomically(t *testing.T) {
	s := newStore()
	s.UpdateSync(domainstore.AddPolicy("Good", `policy Good:
"x"
triggers when resource.type == 1
requires environment == "production"
`, []int64{1}))

	before := s.Snapshot().Version

	result := s.UpdateSync(domainstore.AddPolicy("Bad", `not a valid policy at all`, []int64{1}))
	assert.Error(t, result.Err)

	assert.Equal(t, before, s.Snapshot().Version, "a failed update must not change the snapshot")
}

func TestStatsTrackReadsAndUpdates(t *testing.T) {
	s := newStore()
	s.UpdateSync(domainstore.AddPolicy("A", `policy A:
"x"
triggers when resource.type == 1
requires environment == "production"
`, []int64{1}))
	s.Snapshot()

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Updates)
	assert.EqualValues(t, 0, stats.UpdateFailures)
	assert.GreaterOrEqual(t, stats.Reads, uint64(1))
}
