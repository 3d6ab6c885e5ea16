package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aguaragazu/mate-framework/model"
	"github.com/aguaragazu/mate-framework/privacy"
)

// record returns an unsaved record of a throwaway model.
func record(t *testing.T, attrs map[string]any) *model.Record {
	t.Helper()
	r, err := model.NewClient(nil).Repository(model.New("Post", model.Unguarded())).Make(attrs)
	require.NoError(t, err)
	return r
}

// TestDecisionErrors tests the decision error types and formatting.
func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name      string
		decision  error
		wantAllow bool
		wantDeny  bool
		wantSkip  bool
		wantMsg   string
	}{
		{name: "allow_decision", decision: privacy.Allow, wantAllow: true},
		{name: "deny_decision", decision: privacy.Deny, wantDeny: true},
		{name: "skip_decision", decision: privacy.Skip, wantSkip: true},
		{
			name:      "allowf_formatted",
			decision:  privacy.Allowf("user %d", 1),
			wantAllow: true,
			wantMsg:   "user 1: mate/privacy: allow rule",
		},
		{
			name:     "denyf_formatted",
			decision: privacy.Denyf("missing %s", "role"),
			wantDeny: true,
			wantMsg:  "missing role: mate/privacy: deny rule",
		},
		{
			name:     "skipf_formatted",
			decision: privacy.Skipf("abstain"),
			wantSkip: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAllow, errors.Is(tt.decision, privacy.Allow))
			assert.Equal(t, tt.wantDeny, errors.Is(tt.decision, privacy.Deny))
			assert.Equal(t, tt.wantSkip, errors.Is(tt.decision, privacy.Skip))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, tt.decision.Error())
			}
		})
	}
}

// TestPolicyEvalMutation tests the ordered evaluation of a policy.
func TestPolicyEvalMutation(t *testing.T) {
	ctx := context.Background()
	r := record(t, nil)
	errCustom := errors.New("custom")

	tests := []struct {
		name   string
		policy privacy.Policy
		want   error
	}{
		{"empty_policy_allows", privacy.Policy{}, nil},
		{"allow_stops", privacy.Policy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()}, nil},
		{"deny_stops", privacy.Policy{privacy.AlwaysDenyRule(), privacy.AlwaysAllowRule()}, privacy.Deny},
		{"skips_continue", privacy.Policy{
			privacy.ContextMutationRule(func(context.Context) error { return nil }),
			privacy.ContextMutationRule(func(context.Context) error { return privacy.Skip }),
			privacy.AlwaysDenyRule(),
		}, privacy.Deny},
		{"other_errors_are_final", privacy.Policy{
			privacy.ContextMutationRule(func(context.Context) error { return errCustom }),
			privacy.AlwaysAllowRule(),
		}, errCustom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.EvalMutation(ctx, model.OpCreate, r)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestDecisionContext tests that a context decision overrides the rules.
func TestDecisionContext(t *testing.T) {
	r := record(t, nil)
	deny := privacy.Policy{privacy.AlwaysDenyRule()}
	allow := privacy.Policy{privacy.AlwaysAllowRule()}

	ctx := privacy.DecisionContext(context.Background(), privacy.Allow)
	assert.NoError(t, deny.EvalMutation(ctx, model.OpUpdate, r))

	ctx = privacy.DecisionContext(context.Background(), privacy.Denyf("maintenance"))
	assert.ErrorIs(t, allow.EvalMutation(ctx, model.OpUpdate, r), privacy.Deny)

	// Skip and nil attach nothing.
	base := context.Background()
	assert.Equal(t, base, privacy.DecisionContext(base, privacy.Skip))
	assert.Equal(t, base, privacy.DecisionContext(base, nil))
	_, ok := privacy.DecisionFromContext(base)
	assert.False(t, ok)
}

// TestOperationRules tests the operation filters.
func TestOperationRules(t *testing.T) {
	ctx := context.Background()
	r := record(t, nil)
	p := privacy.Policy{
		privacy.DenyMutationOperationRule(model.OpDelete),
		privacy.AllowMutationOperationRule(model.OpCreate),
		privacy.AlwaysDenyRule(),
	}
	assert.NoError(t, p.EvalMutation(ctx, model.OpCreate, r))
	assert.ErrorIs(t, p.EvalMutation(ctx, model.OpUpdate, r), privacy.Deny)

	err := p.EvalMutation(ctx, model.OpDelete, r)
	assert.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "operation OpDelete is not allowed on Post")
}

// TestPolicyAsMixin tests that a policy guards record writes.
func TestPolicyAsMixin(t *testing.T) {
	m := model.New("Secret", model.Unguarded(), model.Mixins(privacy.Policy{
		privacy.DenyIfNoViewer(),
	}))
	r, err := model.NewClient(nil).Repository(m).Make(map[string]any{"body": "x"})
	require.NoError(t, err)

	// Denied before any statement reaches the driver.
	ok, err := r.Save(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, privacy.Deny)
	assert.ErrorContains(t, err, "viewer required")
	assert.False(t, r.Exists())
}
