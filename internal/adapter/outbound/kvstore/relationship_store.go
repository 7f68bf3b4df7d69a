package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/kv"
	"github.com/ipe-systems/ipe/internal/domain/approval"
	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/domain/relationship"
)

// DefaultMaxTraversalDepth bounds find-path BFS (spec.md §4.10).
const DefaultMaxTraversalDepth = 10

// RelationshipStore persists Relationship edges and answers direct and
// transitive queries. It satisfies evalctx.RelationshipStore structurally.
type RelationshipStore struct {
	engine          *kv.Engine
	maxTraversalDepth int
}

// NewRelationshipStore builds a RelationshipStore over engine with the
// default traversal depth bound.
func NewRelationshipStore(engine *kv.Engine) *RelationshipStore {
	return &RelationshipStore{engine: engine, maxTraversalDepth: DefaultMaxTraversalDepth}
}

// WithMaxTraversalDepth overrides the BFS depth bound.
func (s *RelationshipStore) WithMaxTraversalDepth(depth int) *RelationshipStore {
	s.maxTraversalDepth = depth
	return s
}

type relationshipRecord struct {
	Subject      string            `json:"subject"`
	Relation     string            `json:"relation"`
	Object       string            `json:"object"`
	RelationType int               `json:"relation_type"`
	CreatedBy    string            `json:"created_by"`
	CreatedAt    int64             `json:"created_at"`
	ExpiresAt    *int64            `json:"expires_at,omitempty"`
	Metadata     map[string]string `json:"metadata"`
	TTLSeconds   *int64            `json:"ttl_seconds,omitempty"`
}

func toRelationshipRecord(r relationship.Relationship) relationshipRecord {
	rec := relationshipRecord{
		Subject:      r.Subject,
		Relation:     r.Relation,
		Object:       r.Object,
		RelationType: int(r.RelationType),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.Unix(),
		Metadata:     r.Metadata,
	}
	if r.HasExpiry {
		exp := r.ExpiresAt.Unix()
		rec.ExpiresAt = &exp
	}
	if r.HasTTL {
		ttl := r.TTLSeconds
		rec.TTLSeconds = &ttl
	}
	return rec
}

func (r relationshipRecord) isExpired() bool {
	if r.ExpiresAt == nil {
		return false
	}
	return time.Now().Unix() >= *r.ExpiresAt
}

func (r relationshipRecord) toRelationship(scope approval.Scope) relationship.Relationship {
	rel := relationship.Relationship{
		Subject:      r.Subject,
		Relation:     r.Relation,
		Object:       r.Object,
		RelationType: relationship.RelationType(r.RelationType),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    time.Unix(r.CreatedAt, 0),
		Metadata:     r.Metadata,
		Scope:        scope,
	}
	if r.ExpiresAt != nil {
		rel.ExpiresAt = time.Unix(*r.ExpiresAt, 0)
		rel.HasExpiry = true
	}
	if r.TTLSeconds != nil {
		rel.TTLSeconds = *r.TTLSeconds
		rel.HasTTL = true
	}
	return rel
}

// Add persists a relationship edge, last-write-wins on key collision.
func (s *RelationshipStore) Add(ctx context.Context, r relationship.Relationship) error {
	if r.Subject == "" || r.Relation == "" || r.Object == "" {
		return ipeerr.New(ipeerr.KindInvalidInput, "subject, relation, and object cannot be empty")
	}
	payload, err := json.Marshal(toRelationshipRecord(r))
	if err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "marshal relationship", err)
	}
	return s.engine.Put(r.Key(), payload)
}

func (s *RelationshipStore) get(subject, relation, object string, scope approval.Scope) (relationshipRecord, bool, error) {
	raw, ok, err := s.engine.Get(relationship.EncodeKey(scope, subject, relation, object))
	if err != nil {
		return relationshipRecord{}, false, err
	}
	if !ok {
		return relationshipRecord{}, false, nil
	}
	var rec relationshipRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return relationshipRecord{}, false, ipeerr.Wrap(ipeerr.KindSerialization, "unmarshal relationship", err)
	}
	return rec, true, nil
}

func (s *RelationshipStore) hasInScope(subject, relation, object string, scope approval.Scope) (bool, error) {
	rec, found, err := s.get(subject, relation, object, scope)
	if err != nil || !found {
		return false, err
	}
	return !rec.isExpired(), nil
}

// Has satisfies evalctx.RelationshipStore's direct-edge check.
func (s *RelationshipStore) Has(ctx context.Context, subject, relation, object, scopeStr string) (bool, error) {
	return s.hasInScope(subject, relation, object, scopeFromString(scopeStr))
}

// HasInScope is the richer entry point taking a real Scope value.
func (s *RelationshipStore) HasInScope(ctx context.Context, subject, relation, object string, scope approval.Scope) (bool, error) {
	return s.hasInScope(subject, relation, object, scope)
}

// Get returns the stored edge regardless of expiration.
func (s *RelationshipStore) Get(ctx context.Context, subject, relation, object string, scope approval.Scope) (relationship.Relationship, bool, error) {
	rec, found, err := s.get(subject, relation, object, scope)
	if err != nil || !found {
		return relationship.Relationship{}, found, err
	}
	return rec.toRelationship(scope), true, nil
}

// Remove deletes an edge; deleting an absent one is not an error.
func (s *RelationshipStore) Remove(ctx context.Context, subject, relation, object string, scope approval.Scope) error {
	return s.engine.Delete(relationship.EncodeKey(scope, subject, relation, object))
}

// ListSubject prefix-iterates every edge leaving subject in scope,
// including expired ones, in key order.
func (s *RelationshipStore) ListSubject(ctx context.Context, subject string, scope approval.Scope) ([]relationship.Relationship, error) {
	it := s.engine.SeekPrefix(relationship.SubjectPrefix(scope, subject))
	var out []relationship.Relationship
	for it.Valid() {
		var rec relationshipRecord
		if err := json.Unmarshal(it.Value(), &rec); err == nil {
			out = append(out, rec.toRelationship(scope))
		}
		it.Next()
	}
	return out, nil
}

// Count returns the total number of keys in the engine (diagnostic only,
// shared across namespaces).
func (s *RelationshipStore) Count(ctx context.Context) (int, error) {
	return s.engine.Count(), nil
}

// outgoing returns every non-expired edge leaving subject via relation,
// across all scopes that share this store — matching the original's
// deliberate choice to search across scopes during transitive traversal
// (original_source/.../relationship.rs get_outgoing_relationships). Every
// candidate is decoded and filtered on its own Subject/Relation fields,
// never on the raw key text: scope.Encode() embeds colons of its own
// (Tenant/Environment/Custom scopes render as "tenant:%s", "tenant:%s:env:%s",
// etc.), so a substring match against the full key can cross a scope
// segment boundary and false-match an unrelated edge.
func (s *RelationshipStore) outgoing(subject, relation string) ([]relationship.Relationship, error) {
	var out []relationship.Relationship
	it := s.engine.SeekPrefix("relationships:")
	for it.Valid() {
		var rec relationshipRecord
		if err := json.Unmarshal(it.Value(), &rec); err == nil &&
			rec.Subject == subject && rec.Relation == relation && !rec.isExpired() {
			out = append(out, rec.toRelationship(approval.GlobalScope))
		}
		it.Next()
	}
	return out, nil
}

// HasTransitive checks a direct edge first, then falls back to FindPath.
func (s *RelationshipStore) HasTransitive(ctx context.Context, subject, relation, object, scopeStr string) (bool, error) {
	if ok, err := s.Has(ctx, subject, relation, object, scopeStr); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	_, found, err := s.findPath(subject, relation, object)
	return found, err
}

// bfsFrame is one queued BFS state: the current node plus the edge chain
// that reached it.
type bfsFrame struct {
	node string
	path []relationship.Relationship
}

// findPath runs breadth-first search over outgoing `relation` edges from
// subject, honoring the visited set, depth bound, and transitivity filter
// exactly per spec.md §4.10.
func (s *RelationshipStore) findPath(subject, relation, object string) (relationship.Path, bool, error) {
	visited := map[string]struct{}{subject: {}}
	queue := []bfsFrame{{node: subject}}

	for len(queue) > 0 {
		frame := queue[0]
		queue = queue[1:]

		if len(frame.path) >= s.maxTraversalDepth {
			return relationship.Path{}, false, ipeerr.New(ipeerr.KindMaxDepthExceeded, "maximum traversal depth exceeded")
		}

		edges, err := s.outgoing(frame.node, relation)
		if err != nil {
			return relationship.Path{}, false, err
		}

		for _, edge := range edges {
			if edge.Object == object {
				final := append(append([]relationship.Relationship(nil), frame.path...), edge)
				return relationship.Path{Edges: final, Depth: len(final)}, true, nil
			}

			if edge.RelationType.IsTransitive() {
				if _, seen := visited[edge.Object]; seen {
					continue
				}
				visited[edge.Object] = struct{}{}
				next := append(append([]relationship.Relationship(nil), frame.path...), edge)
				queue = append(queue, bfsFrame{node: edge.Object, path: next})
			}
		}
	}

	return relationship.Path{}, false, nil
}

// FindPath satisfies evalctx.RelationshipStore, returning the minimal
// evalctx.Path shape (Depth only — see evalctx.Path's doc comment for why
// the full edge chain isn't threaded through this interface).
func (s *RelationshipStore) FindPath(ctx context.Context, subject, relation, object, scopeStr string) (evalctx.Path, bool, error) {
	path, found, err := s.findPath(subject, relation, object)
	if err != nil || !found {
		return evalctx.Path{}, found, err
	}
	return evalctx.Path{Depth: path.Depth}, true, nil
}

// FindFullPath is the richer entry point returning the complete edge chain,
// for callers (e.g. the CLI, audit trails) that need more than the depth.
func (s *RelationshipStore) FindFullPath(ctx context.Context, subject, relation, object string) (relationship.Path, bool, error) {
	return s.findPath(subject, relation, object)
}
