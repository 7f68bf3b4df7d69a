// Package policystore defines the PolicySnapshot/PolicyEntry data model and
// update request/result shapes shared by the policy data store, grounded on
// original_source/crates/ipe-core/src/store.rs.
package policystore

import (
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

// PolicyEntry is one pre-compiled policy plus the resource types it
// applies to. FieldMapping lives on the bytecode itself (see
// bytecode.CompiledPolicy.FieldMapping) rather than being recomputed here —
// the original source's inline version built an empty placeholder mapping;
// this port always uses the compiler's real field map.
type PolicyEntry struct {
	Name          string
	Bytecode      *bytecode.CompiledPolicy
	ResourceTypes []int64
	DenyReason    string
	HasDenyReason bool
}

// PolicySnapshot is an immutable, versioned view of every compiled policy,
// indexed by resource type for O(1) lookup.
type PolicySnapshot struct {
	Version  uint64
	Policies []PolicyEntry
	index    map[int64][]int
}

// EmptySnapshot is the zero-policy starting snapshot, version 0.
func EmptySnapshot() *PolicySnapshot {
	return &PolicySnapshot{index: make(map[int64][]int)}
}

// NewSnapshot builds an indexed snapshot at the given version.
func NewSnapshot(version uint64, policies []PolicyEntry) *PolicySnapshot {
	index := make(map[int64][]int)
	for i, p := range policies {
		for _, rt := range p.ResourceTypes {
			index[rt] = append(index[rt], i)
		}
	}
	return &PolicySnapshot{Version: version, Policies: policies, index: index}
}

// PoliciesForResource returns every policy applying to resourceType, in
// the order they were added.
func (s *PolicySnapshot) PoliciesForResource(resourceType int64) []PolicyEntry {
	idxs, ok := s.index[resourceType]
	if !ok {
		return nil
	}
	out := make([]PolicyEntry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.Policies[i])
	}
	return out
}

// GetPolicy looks up a policy by name.
func (s *PolicySnapshot) GetPolicy(name string) (PolicyEntry, bool) {
	for _, p := range s.Policies {
		if p.Name == name {
			return p, true
		}
	}
	return PolicyEntry{}, false
}

// Len returns the total number of policies in the snapshot.
func (s *PolicySnapshot) Len() int { return len(s.Policies) }

// IsEmpty reports whether the snapshot holds no policies.
func (s *PolicySnapshot) IsEmpty() bool { return len(s.Policies) == 0 }

// PolicySpec is one (name, source, resource_types) tuple used by
// ReplaceAll update requests.
type PolicySpec struct {
	Name          string
	Source        string
	ResourceTypes []int64
}

// UpdateKind discriminates the UpdateRequest variants.
type UpdateKind int

const (
	UpdateAddPolicy UpdateKind = iota
	UpdateRemovePolicy
	UpdateReplaceAll
)

// UpdateRequest is one mutation submitted to the store's validation
// worker pool.
type UpdateRequest struct {
	Kind          UpdateKind
	Name          string
	Source        string
	ResourceTypes []int64
	Specs         []PolicySpec
}

// AddPolicy builds an UpdateAddPolicy request.
func AddPolicy(name, source string, resourceTypes []int64) UpdateRequest {
	return UpdateRequest{Kind: UpdateAddPolicy, Name: name, Source: source, ResourceTypes: resourceTypes}
}

// RemovePolicy builds an UpdateRemovePolicy request.
func RemovePolicy(name string) UpdateRequest {
	return UpdateRequest{Kind: UpdateRemovePolicy, Name: name}
}

// ReplaceAll builds an UpdateReplaceAll request.
func ReplaceAll(specs []PolicySpec) UpdateRequest {
	return UpdateRequest{Kind: UpdateReplaceAll, Specs: specs}
}

// UpdateResult is the outcome of one UpdateRequest: either a new version
// number or an error. A batch update fails atomically — no partial
// application is ever observed by readers.
type UpdateResult struct {
	Version uint64
	Err     error
}

// Success reports whether the update succeeded.
func (r UpdateResult) Success() bool { return r.Err == nil }

// StoreStatSnapshot is a point-in-time read of the store's counters.
type StoreStatSnapshot struct {
	Reads          uint64
	Updates        uint64
	UpdateFailures uint64
	CurrentVersion uint64
}
