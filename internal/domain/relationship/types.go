// Package relationship defines the Relationship record, RelationType, and
// the BFS path result type, grounded on
// original_source/crates/ipe-core/src/relationship.rs.
package relationship

import (
	"fmt"
	"time"

	"github.com/ipe-systems/ipe/internal/domain/approval"
)

// RelationType categorizes a Relationship edge and determines whether it
// may be chained transitively.
type RelationType int

const (
	Role RelationType = iota
	Trust
	Membership
	Ownership
	Delegation
	Custom
)

func (r RelationType) String() string {
	switch r {
	case Role:
		return "role"
	case Trust:
		return "trust"
	case Membership:
		return "membership"
	case Ownership:
		return "ownership"
	case Delegation:
		return "delegation"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// IsTransitive reports whether edges of this type may be chained:
// A-[r]->B, B-[r]->C implies A-[r]->C. Only Trust and Membership qualify.
func (r RelationType) IsTransitive() bool {
	return r == Trust || r == Membership
}

// Relationship is a directed edge: subject has `relation` to object.
type Relationship struct {
	Subject      string
	Relation     string
	Object       string
	RelationType RelationType
	CreatedBy    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	HasExpiry    bool
	Metadata     map[string]string
	Scope        approval.Scope
	TTLSeconds   int64
	HasTTL       bool
}

// New builds a Relationship created now, in the Global scope.
func New(subject, relation, object string, relType RelationType, createdBy string) Relationship {
	return Relationship{
		Subject:      subject,
		Relation:     relation,
		Object:       object,
		RelationType: relType,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
		Scope:        approval.GlobalScope,
		Metadata:     make(map[string]string),
	}
}

// RoleEdge builds a Role relationship ("alice" is "editor" of "doc-1").
func RoleEdge(subject, role, object, createdBy string) Relationship {
	return New(subject, role, object, Role, createdBy)
}

// TrustEdge builds a Trust relationship ("cert" is "trusted_by" "root-ca").
func TrustEdge(subject, object, createdBy string) Relationship {
	return New(subject, "trusted_by", object, Trust, createdBy)
}

// MembershipEdge builds a Membership relationship ("alice" is "member_of" "group").
func MembershipEdge(subject, object, createdBy string) Relationship {
	return New(subject, "member_of", object, Membership, createdBy)
}

// WithScope returns a copy of r scoped to scope.
func (r Relationship) WithScope(scope approval.Scope) Relationship {
	r.Scope = scope
	return r
}

// WithTTL returns a copy of r with a TTL (and derived ExpiresAt) attached.
func (r Relationship) WithTTL(ttl time.Duration) Relationship {
	r.TTLSeconds = int64(ttl.Seconds())
	r.HasTTL = true
	r.ExpiresAt = time.Now().Add(ttl)
	r.HasExpiry = true
	return r
}

// WithExpiration returns a copy of r expiring `in` from now.
func (r Relationship) WithExpiration(in time.Duration) Relationship {
	r.ExpiresAt = time.Now().Add(in)
	r.HasExpiry = true
	return r
}

// WithMetadata returns a copy of r with key/value merged into Metadata.
func (r Relationship) WithMetadata(key, value string) Relationship {
	m := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		m[k] = v
	}
	m[key] = value
	r.Metadata = m
	return r
}

// IsExpired reports whether r has an expiry and it has passed.
func (r Relationship) IsExpired() bool {
	return r.HasExpiry && !time.Now().Before(r.ExpiresAt)
}

// Key renders the direct-lookup storage key:
// "relationships:{scope}:{subject}:{relation}:{object}" (spec.md §6).
func (r Relationship) Key() string {
	return EncodeKey(r.Scope, r.Subject, r.Relation, r.Object)
}

// EncodeKey builds the direct-lookup storage key without requiring a full
// Relationship value.
func EncodeKey(scope approval.Scope, subject, relation, object string) string {
	return fmt.Sprintf("relationships:%s:%s:%s:%s", scope.Encode(), subject, relation, object)
}

// SubjectPrefix renders the key prefix covering every edge leaving subject
// regardless of relation, for listing.
func SubjectPrefix(scope approval.Scope, subject string) string {
	return fmt.Sprintf("relationships:%s:%s:", scope.Encode(), subject)
}

// Path is the chain of edges BFS found connecting a subject to an object.
type Path struct {
	Edges []Relationship
	Depth int
}
