// Package policystore implements the lock-free, versioned policy data
// store: an atomic snapshot cell fed by a worker pool that compiles and
// validates updates off the read path, grounded on
// original_source/crates/ipe-core/src/store.rs and the teacher's
// internal/service/policy_service.go (atomic.Value snapshot swap pattern).
package policystore

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ipe-systems/ipe/internal/domain/decision"
	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/domain/policystore"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
	"github.com/ipe-systems/ipe/internal/lang/compiler"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

// DefaultWorkerCount is the number of background validation workers
// spawned when none is specified.
const DefaultWorkerCount = 1

// updateJob pairs one request with the channel its result is delivered on,
// mirroring the Rust original's (UpdateRequest, Sender<UpdateResult>) MPSC
// shape — Go's native unbuffered channel already gives the required
// semantics, so no third-party queue is needed here.
type updateJob struct {
	request policystore.UpdateRequest
	reply   chan policystore.UpdateResult
}

// Store is the read-mostly policy data store: reads take an atomic
// snapshot handle with no locking; updates are serialized through a
// channel-backed worker pool and swapped in atomically.
type Store struct {
	snapshot atomic.Pointer[policystore.PolicySnapshot]
	updates  chan updateJob
	tiering  *tiering.Manager
	tracer   trace.Tracer

	reads          atomic.Uint64
	updateCount    atomic.Uint64
	updateFailures atomic.Uint64
}

// New builds a Store with workerCount background validation workers,
// evaluating through mgr (interpreter + optional JIT tiering). Spans are
// no-ops until a tracer is installed with WithTracer.
func New(mgr *tiering.Manager, workerCount int) *Store {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}

	s := &Store{
		updates: make(chan updateJob),
		tiering: mgr,
		tracer:  trace.NewNoopTracerProvider().Tracer("policystore"),
	}
	s.snapshot.Store(policystore.EmptySnapshot())

	for i := 0; i < workerCount; i++ {
		go s.validationWorker()
	}
	return s
}

// WithTracer installs tracer for the Evaluate/processUpdate spans this
// store emits, replacing the no-op default. Returns s for chaining.
func (s *Store) WithTracer(tracer trace.Tracer) *Store {
	s.tracer = tracer
	return s
}

// Snapshot returns the current snapshot (lock-free: an atomic pointer
// load).
func (s *Store) Snapshot() *policystore.PolicySnapshot {
	s.reads.Add(1)
	return s.snapshot.Load()
}

// Evaluate runs every policy applicable to ctx.Resource.TypeID and combines
// their verdicts: Allow iff at least one applicable policy returns Allow.
func (s *Store) Evaluate(ctx context.Context, ec *evalctx.EvaluationContext) (decision.Decision, error) {
	_, span := s.tracer.Start(ctx, "policystore.Evaluate")
	defer span.End()

	snap := s.Snapshot()
	entries := snap.PoliciesForResource(ec.Resource.TypeID)

	if len(entries) == 0 {
		span.SetStatus(codes.Ok, "no applicable policies")
		return decision.DenyDecision().WithReason("No policies found for resource type"), nil
	}

	var matched []string
	for _, entry := range entries {
		result, err := s.tiering.Evaluate(entry.Name, ec)
		if err != nil {
			wrapped := ipeerr.Wrap(ipeerr.KindEvaluation,
				fmt.Sprintf("policy %q failed", entry.Name), err)
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, wrapped.Error())
			return decision.Decision{}, wrapped
		}
		if result {
			matched = append(matched, entry.Name)
		}
	}

	if len(matched) > 0 {
		span.SetStatus(codes.Ok, "allow")
		return decision.AllowDecision(matched...), nil
	}
	span.SetStatus(codes.Ok, "deny")
	return decision.DenyDecision().WithReason("No policies allowed access"), nil
}

// Update submits request to the worker pool and returns a channel the
// result will be delivered on exactly once.
func (s *Store) Update(request policystore.UpdateRequest) <-chan policystore.UpdateResult {
	reply := make(chan policystore.UpdateResult, 1)
	s.updates <- updateJob{request: request, reply: reply}
	return reply
}

// UpdateSync submits request and blocks for its result.
func (s *Store) UpdateSync(request policystore.UpdateRequest) policystore.UpdateResult {
	return <-s.Update(request)
}

func (s *Store) validationWorker() {
	for job := range s.updates {
		s.updateCount.Add(1)

		version, err := s.processUpdate(job.request)
		if err != nil {
			s.updateFailures.Add(1)
			job.reply <- policystore.UpdateResult{Err: err}
			continue
		}
		job.reply <- policystore.UpdateResult{Version: version}
	}
}

// processUpdate compiles (if needed), builds the new policy list, and
// atomically swaps in a freshly indexed snapshot. Compilation failures
// abort the whole update — readers only ever see the pre- or post-update
// snapshot, never a partially applied one.
func (s *Store) processUpdate(request policystore.UpdateRequest) (uint64, error) {
	_, span := s.tracer.Start(context.Background(), "policystore.processUpdate")
	defer span.End()

	current := s.snapshot.Load()
	newVersion := current.Version + 1

	var newPolicies []policystore.PolicyEntry

	switch request.Kind {
	case policystore.UpdateAddPolicy:
		entry, err := s.compilePolicy(request.Name, request.Source, request.ResourceTypes)
		if err != nil {
			return 0, err
		}
		newPolicies = append(append([]policystore.PolicyEntry(nil), current.Policies...), entry)

	case policystore.UpdateRemovePolicy:
		for _, p := range current.Policies {
			if p.Name != request.Name {
				newPolicies = append(newPolicies, p)
			}
		}

	case policystore.UpdateReplaceAll:
		newPolicies = make([]policystore.PolicyEntry, 0, len(request.Specs))
		for _, spec := range request.Specs {
			entry, err := s.compilePolicy(spec.Name, spec.Source, spec.ResourceTypes)
			if err != nil {
				return 0, err
			}
			newPolicies = append(newPolicies, entry)
		}

	default:
		return 0, ipeerr.New(ipeerr.KindInvalidInput, "unknown update request kind")
	}

	newSnapshot := policystore.NewSnapshot(newVersion, newPolicies)
	s.snapshot.Store(newSnapshot)
	return newVersion, nil
}

func (s *Store) compilePolicy(name, source string, resourceTypes []int64) (policystore.PolicyEntry, error) {
	pol, err := parser.New(source).ParsePolicy()
	if err != nil {
		return policystore.PolicyEntry{}, ipeerr.Wrap(ipeerr.KindParse,
			fmt.Sprintf("failed to parse policy %q", name), err)
	}

	cp, err := compiler.Compile(pol)
	if err != nil {
		return policystore.PolicyEntry{}, ipeerr.Wrap(ipeerr.KindCompile,
			fmt.Sprintf("failed to compile policy %q", name), err)
	}

	s.tiering.Register(cp, name)

	entry := policystore.PolicyEntry{
		Name:          name,
		Bytecode:      cp,
		ResourceTypes: resourceTypes,
	}
	if pol.Requirements.HasDenyReason {
		entry.DenyReason = pol.Requirements.DenyReason
		entry.HasDenyReason = true
	}
	return entry, nil
}

// Stats returns a point-in-time snapshot of the store's counters.
func (s *Store) Stats() policystore.StoreStatSnapshot {
	return policystore.StoreStatSnapshot{
		Reads:          s.reads.Load(),
		Updates:        s.updateCount.Load(),
		UpdateFailures: s.updateFailures.Load(),
		CurrentVersion: s.snapshot.Load().Version,
	}
}
