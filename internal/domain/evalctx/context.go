// Package evalctx defines the EvaluationContext façade: the (Resource,
// Action, Request) triple a policy evaluates against, plus the fanout point
// into the approval and relationship stores.
package evalctx

import (
	"context"
	"fmt"

	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

// AttributeValue is the context-side value type for Resource/Action/Request
// attribute maps. It mirrors bytecode.Value's variants exactly but is a
// distinct defined type, not an alias, because it is the untrusted input
// model — a bytecode.Value is not assignable where an AttributeValue is
// expected and vice versa; the interpreter converts explicitly via ToValue
// only at field access time (spec.md §3).
type AttributeValue bytecode.Value

// FromValue wraps a bytecode.Value as an AttributeValue, for callers
// (fixture loaders, store adapters) that only have trusted Values on hand.
func FromValue(v bytecode.Value) AttributeValue { return AttributeValue(v) }

// ToValue converts an AttributeValue to the bytecode.Value the interpreter
// operates on.
func (a AttributeValue) ToValue() bytecode.Value { return bytecode.Value(a) }

// Resource describes the object an action targets.
type Resource struct {
	TypeID     int64
	Attributes map[string]AttributeValue
}

// Action describes what the principal is attempting.
type Action struct {
	Operation  string
	Attributes map[string]AttributeValue
}

// Principal identifies the requesting identity.
type Principal struct {
	ID         string
	Attributes map[string]AttributeValue
}

// Request carries ambient request metadata, including the Principal.
type Request struct {
	Principal Principal
	Metadata  map[string]AttributeValue
}

// ApprovalStore is the minimal surface EvaluationContext needs from the
// approval store; see internal/domain/approval for the full contract.
type ApprovalStore interface {
	Has(ctx context.Context, identity, resource, action, scope string) (bool, error)
}

// RelationshipStore is the minimal surface EvaluationContext needs from the
// relationship store; see internal/domain/relationship for the full
// contract.
type RelationshipStore interface {
	Has(ctx context.Context, subject, relation, object, scope string) (bool, error)
	HasTransitive(ctx context.Context, subject, relation, object, scope string) (bool, error)
	FindPath(ctx context.Context, subject, relation, object, scope string) (Path, bool, error)
}

// Path is the minimal shape EvaluationContext needs to describe a found
// relationship path without importing the relationship package (which in
// turn would need to import this one for Context) — see
// internal/domain/relationship.Path for the richer type this is built from.
type Path struct {
	Depth int
}

// EvaluationContext bundles Resource/Action/Request with optional shared
// handles to the approval and relationship stores. Each convenience
// predicate returns ipeerr.ErrNotConfigured when its backing store was never
// supplied (spec.md §4.11).
type EvaluationContext struct {
	Resource Resource
	Action   Action
	Request  Request

	Approvals     ApprovalStore
	Relationships RelationshipStore
}

// New builds a bare EvaluationContext with no stores wired in.
func New(resource Resource, action Action, request Request) *EvaluationContext {
	return &EvaluationContext{Resource: resource, Action: action, Request: request}
}

// WithApprovals returns a copy of ec with the approval store attached.
func (ec EvaluationContext) WithApprovals(store ApprovalStore) *EvaluationContext {
	ec.Approvals = store
	return &ec
}

// WithRelationships returns a copy of ec with the relationship store
// attached.
func (ec EvaluationContext) WithRelationships(store RelationshipStore) *EvaluationContext {
	ec.Relationships = store
	return &ec
}

// approvalKeys derives the (resource, action) key pair used by HasApproval,
// per spec.md §4.11's fallback chain: resource key is
// resource.attributes["url"] if present, else action.target (action's "target"
// attribute); action key is action.attributes["method"] if present, else the
// debug representation of action.operation.
func (ec *EvaluationContext) approvalKeys() (resourceKey, actionKey string) {
	if v, ok := ec.Resource.Attributes["url"]; ok && v.Kind == bytecode.KindString {
		resourceKey = v.Str
	} else if v, ok := ec.Action.Attributes["target"]; ok && v.Kind == bytecode.KindString {
		resourceKey = v.Str
	}

	if v, ok := ec.Action.Attributes["method"]; ok && v.Kind == bytecode.KindString {
		actionKey = v.Str
	} else {
		actionKey = fmt.Sprintf("%v", ec.Action.Operation)
	}
	return resourceKey, actionKey
}

// HasApproval checks for an approval granted to this context's principal for
// the resource/action derived from approvalKeys, in the Global scope.
func (ec *EvaluationContext) HasApproval(ctx context.Context) (bool, error) {
	if ec.Approvals == nil {
		return false, ipeerr.ErrNotConfigured
	}
	resourceKey, actionKey := ec.approvalKeys()
	return ec.Approvals.Has(ctx, ec.Request.Principal.ID, resourceKey, actionKey, "global")
}

// HasRelationship checks a direct (non-transitive) relationship edge from
// this context's principal to object.
func (ec *EvaluationContext) HasRelationship(ctx context.Context, relation, object string) (bool, error) {
	if ec.Relationships == nil {
		return false, ipeerr.ErrNotConfigured
	}
	return ec.Relationships.Has(ctx, ec.Request.Principal.ID, relation, object, "global")
}

// HasTransitiveRelationship checks whether object is reachable from this
// context's principal by chaining transitive relation edges.
func (ec *EvaluationContext) HasTransitiveRelationship(ctx context.Context, relation, object string) (bool, error) {
	if ec.Relationships == nil {
		return false, ipeerr.ErrNotConfigured
	}
	return ec.Relationships.HasTransitive(ctx, ec.Request.Principal.ID, relation, object, "global")
}

// FindRelationshipPath returns the shortest transitive path (if any) from
// this context's principal to object.
func (ec *EvaluationContext) FindRelationshipPath(ctx context.Context, relation, object string) (Path, bool, error) {
	if ec.Relationships == nil {
		return Path{}, false, ipeerr.ErrNotConfigured
	}
	return ec.Relationships.FindPath(ctx, ec.Request.Principal.ID, relation, object, "global")
}

// contextKey is the unexported type for the decision-in-context pattern
// (mirrors the teacher's policy.WithDecision/DecisionFromContext helpers).
type contextKey struct{}

// decisionKey is the sentinel value key for a *Decision stashed in a
// context.Context by an inbound adapter, for downstream handlers to inspect
// (decision package is not imported here to avoid a cycle; callers store
// `any` and type-assert).
var decisionKey = contextKey{}

// WithValue stores v (typically a *decision.Decision) on ctx for downstream
// retrieval via FromContext.
func WithValue(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, decisionKey, v)
}

// FromContext retrieves a value previously stored with WithValue.
func FromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(decisionKey)
	return v, v != nil
}
