// Package kvstore implements the approval and relationship stores on top of
// internal/adapter/outbound/kv's ordered engine, grounded on
// original_source/crates/ipe-core/src/approval.rs and .../relationship.rs.
package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/kv"
	"github.com/ipe-systems/ipe/internal/domain/approval"
	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
)

// ApprovalStore persists Approval records in an ordered kv.Engine, scoped
// by key prefix. It satisfies evalctx.ApprovalStore structurally.
type ApprovalStore struct {
	engine *kv.Engine
}

// NewApprovalStore builds an ApprovalStore over engine.
func NewApprovalStore(engine *kv.Engine) *ApprovalStore {
	return &ApprovalStore{engine: engine}
}

// approvalRecord is the JSON wire shape persisted for one Approval. Timestamps are
// Unix seconds, mirroring the original Rust's serde_json encoding.
type approvalRecord struct {
	Identity   string            `json:"identity"`
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	GrantedBy  string            `json:"granted_by"`
	GrantedAt  int64             `json:"granted_at"`
	ExpiresAt  *int64            `json:"expires_at,omitempty"`
	Metadata   map[string]string `json:"metadata"`
	TTLSeconds *int64            `json:"ttl_seconds,omitempty"`
}

func toApprovalRecord(a approval.Approval) approvalRecord {
	rec := approvalRecord{
		Identity:  a.Identity,
		Resource:  a.Resource,
		Action:    a.Action,
		GrantedBy: a.GrantedBy,
		GrantedAt: a.GrantedAt.Unix(),
		Metadata:  a.Metadata,
	}
	if a.HasExpiry {
		exp := a.ExpiresAt.Unix()
		rec.ExpiresAt = &exp
	}
	if a.HasTTL {
		ttl := a.TTLSeconds
		rec.TTLSeconds = &ttl
	}
	return rec
}

func (r approvalRecord) isExpired() bool {
	if r.ExpiresAt == nil {
		return false
	}
	return time.Now().Unix() >= *r.ExpiresAt
}

func (r approvalRecord) toApproval(scope approval.Scope) approval.Approval {
	a := approval.Approval{
		Identity:  r.Identity,
		Resource:  r.Resource,
		Action:    r.Action,
		GrantedBy: r.GrantedBy,
		GrantedAt: time.Unix(r.GrantedAt, 0),
		Metadata:  r.Metadata,
		Scope:     scope,
	}
	if r.ExpiresAt != nil {
		a.ExpiresAt = time.Unix(*r.ExpiresAt, 0)
		a.HasExpiry = true
	}
	if r.TTLSeconds != nil {
		a.TTLSeconds = *r.TTLSeconds
		a.HasTTL = true
	}
	return a
}

// Grant validates and persists an approval record, last-write-wins on key
// collision.
func (s *ApprovalStore) Grant(ctx context.Context, a approval.Approval) error {
	if a.Identity == "" {
		return ipeerr.New(ipeerr.KindInvalidInput, "identity cannot be empty")
	}
	if a.Resource == "" {
		return ipeerr.New(ipeerr.KindInvalidInput, "resource cannot be empty")
	}
	if a.Action == "" {
		return ipeerr.New(ipeerr.KindInvalidInput, "action cannot be empty")
	}

	payload, err := json.Marshal(toApprovalRecord(a))
	if err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "marshal approval", err)
	}
	return s.engine.Put(a.Key(), payload)
}

// Has satisfies evalctx.ApprovalStore: true iff a record exists at
// (identity, resource, action, scope) and is not expired. The scope
// argument is a pre-encoded scope string so the evalctx fanout point need
// not import the approval package's Scope type (avoids an import cycle).
func (s *ApprovalStore) Has(ctx context.Context, identity, resource, action, scopeStr string) (bool, error) {
	return s.hasInScope(identity, resource, action, scopeFromString(scopeStr))
}

func (s *ApprovalStore) hasInScope(identity, resource, action string, scope approval.Scope) (bool, error) {
	rec, found, err := s.get(identity, resource, action, scope)
	if err != nil || !found {
		return false, err
	}
	return !rec.isExpired(), nil
}

// HasInScope is the richer entry point for callers that hold a real Scope
// value rather than its encoded string form.
func (s *ApprovalStore) HasInScope(ctx context.Context, identity, resource, action string, scope approval.Scope) (bool, error) {
	return s.hasInScope(identity, resource, action, scope)
}

// Get returns the stored record regardless of expiration.
func (s *ApprovalStore) Get(ctx context.Context, identity, resource, action string, scope approval.Scope) (approval.Approval, bool, error) {
	rec, found, err := s.get(identity, resource, action, scope)
	if err != nil || !found {
		return approval.Approval{}, found, err
	}
	return rec.toApproval(scope), true, nil
}

func (s *ApprovalStore) get(identity, resource, action string, scope approval.Scope) (approvalRecord, bool, error) {
	raw, ok, err := s.engine.Get(approval.EncodeKey(scope, identity, resource, action))
	if err != nil {
		return approvalRecord{}, false, err
	}
	if !ok {
		return approvalRecord{}, false, nil
	}
	var rec approvalRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return approvalRecord{}, false, ipeerr.Wrap(ipeerr.KindSerialization, "unmarshal approval", err)
	}
	return rec, true, nil
}

// Revoke deletes the approval at (identity, resource, action, scope);
// deleting an absent record is not an error.
func (s *ApprovalStore) Revoke(ctx context.Context, identity, resource, action string, scope approval.Scope) error {
	return s.engine.Delete(approval.EncodeKey(scope, identity, resource, action))
}

// IsInApprovedSet is the cheap set-membership test: it seeks to the first
// approval key for identity that starts with resourcePrefix and reports
// whether that one approval is non-expired. Later keys under the prefix are
// not examined.
func (s *ApprovalStore) IsInApprovedSet(ctx context.Context, identity, resourcePrefix string, scope approval.Scope) (bool, error) {
	prefix := approval.Prefix(scope, identity) + resourcePrefix
	it := s.engine.SeekPrefix(prefix)
	if !it.Valid() {
		return false, nil
	}
	var rec approvalRecord
	if err := json.Unmarshal(it.Value(), &rec); err != nil {
		return false, nil
	}
	return !rec.isExpired(), nil
}

// CheckApprovals batch-checks has() for each (identity, resource, action)
// tuple, preserving order.
type ApprovalCheck struct {
	Identity string
	Resource string
	Action   string
}

func (s *ApprovalStore) CheckApprovals(ctx context.Context, checks []ApprovalCheck, scope approval.Scope) ([]bool, error) {
	out := make([]bool, len(checks))
	for i, c := range checks {
		ok, err := s.hasInScope(c.Identity, c.Resource, c.Action, scope)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

// List prefix-iterates every approval granted to identity in scope,
// including expired ones, in key order.
func (s *ApprovalStore) List(ctx context.Context, identity string, scope approval.Scope) ([]approval.Approval, error) {
	it := s.engine.SeekPrefix(approval.Prefix(scope, identity))
	var out []approval.Approval
	for it.Valid() {
		var rec approvalRecord
		if err := json.Unmarshal(it.Value(), &rec); err == nil {
			out = append(out, rec.toApproval(scope))
		}
		it.Next()
	}
	return out, nil
}

// Count returns the total number of keys in the engine. This is a coarse,
// diagnostic-only count across every namespace sharing the engine, matching
// the original's linear column-family scan intent.
func (s *ApprovalStore) Count(ctx context.Context) (int, error) {
	return s.engine.Count(), nil
}

// scopeFromString decodes the encoded-scope strings evalctx's fanout point
// passes ("global" being the only one it ever produces today).
func scopeFromString(s string) approval.Scope {
	if s == "" || s == "global" {
		return approval.GlobalScope
	}
	return approval.CustomScope(s)
}
