package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/metrics"
	"github.com/ipe-systems/ipe/internal/adapter/outbound/otelsetup"
	"github.com/ipe-systems/ipe/internal/adapter/outbound/policystore"
	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	domainpolicystore "github.com/ipe-systems/ipe/internal/domain/policystore"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

var (
	evaluateContextPath string
	evaluateMetrics     bool
)

// fixture is the JSON-friendly mirror of bytecode.Value: an
// EvaluationContext fixture file carries plain JSON scalars and arrays, not
// the tagged union the interpreter operates on, so each attribute map entry
// is decoded to an any and converted to a bytecode.Value at load time.
type fixture struct {
	Resource struct {
		TypeID     int64          `json:"type_id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"resource"`
	Action struct {
		Operation  string         `json:"operation"`
		Attributes map[string]any `json:"attributes"`
	} `json:"action"`
	Principal struct {
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"principal"`
	Metadata map[string]any `json:"metadata"`
}

func toAttributeValue(v any) (evalctx.AttributeValue, error) {
	switch t := v.(type) {
	case string:
		return evalctx.FromValue(bytecode.String(t)), nil
	case bool:
		return evalctx.FromValue(bytecode.BoolVal(t)), nil
	case float64:
		if t == float64(int64(t)) {
			return evalctx.FromValue(bytecode.Int64(int64(t))), nil
		}
		return evalctx.FromValue(bytecode.Float64(t)), nil
	case []any:
		vals := make([]bytecode.Value, len(t))
		for i, elem := range t {
			ev, err := toAttributeValue(elem)
			if err != nil {
				return evalctx.AttributeValue{}, err
			}
			vals[i] = ev.ToValue()
		}
		return evalctx.FromValue(bytecode.Array(vals)), nil
	case nil:
		return evalctx.AttributeValue{}, fmt.Errorf("null attribute values are not supported")
	default:
		return evalctx.AttributeValue{}, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

func toAttributeMap(m map[string]any) (map[string]evalctx.AttributeValue, error) {
	out := make(map[string]evalctx.AttributeValue, len(m))
	for k, v := range m {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func loadFixture(path string) (*evalctx.EvaluationContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context fixture: %w", err)
	}

	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid context fixture: %w", err)
	}

	resAttrs, err := toAttributeMap(f.Resource.Attributes)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	actAttrs, err := toAttributeMap(f.Action.Attributes)
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}
	principalAttrs, err := toAttributeMap(f.Principal.Attributes)
	if err != nil {
		return nil, fmt.Errorf("principal: %w", err)
	}
	metaAttrs, err := toAttributeMap(f.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	resource := evalctx.Resource{TypeID: f.Resource.TypeID, Attributes: resAttrs}
	action := evalctx.Action{Operation: f.Action.Operation, Attributes: actAttrs}
	request := evalctx.Request{
		Principal: evalctx.Principal{ID: f.Principal.ID, Attributes: principalAttrs},
		Metadata:  metaAttrs,
	}

	return evalctx.New(resource, action, request), nil
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [policy-file]",
	Short: "Evaluate a compiled policy against a JSON context fixture",
	Long: `Parse and compile a policy source file, register it with an
interpreter-backed tiering manager, and evaluate it against the
Resource/Action/Principal/Metadata attributes in the --context fixture.

Approval and relationship lookups are not available from this command;
a policy whose conditions call has_approval or a relationship predicate
fails to compile, since the compiler rejects function calls.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if evaluateContextPath == "" {
			return fmt.Errorf("--context is required")
		}

		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read policy file: %w", err)
		}

		pol, err := parser.New(string(source)).ParsePolicy()
		if err != nil {
			return fmt.Errorf("parse error: %w", err)
		}

		ec, err := loadFixture(evaluateContextPath)
		if err != nil {
			return err
		}

		mgr := newTieringManager(newInterpreter())
		store := policystore.New(mgr, cfg.Store.WorkerCount)

		var m *metrics.Metrics
		if evaluateMetrics {
			providers, err := otelsetup.Setup(cmd.Context(), "ipectl-evaluate")
			if err != nil {
				return fmt.Errorf("otel setup failed: %w", err)
			}
			defer func() { _ = providers.Shutdown(cmd.Context()) }()
			store.WithTracer(providers.Tracer("ipectl/policystore"))

			reg := prometheus.NewRegistry()
			m = metrics.New(reg)
			defer printMetrics(reg)
		}

		result := store.UpdateSync(domainpolicystore.AddPolicy(pol.Name, string(source), []int64{ec.Resource.TypeID}))
		if !result.Success() {
			return fmt.Errorf("failed to load policy: %w", result.Err)
		}

		start := time.Now()
		decision, err := store.Evaluate(cmd.Context(), ec)
		elapsed := time.Since(start)
		if err != nil {
			return fmt.Errorf("evaluation error: %w", err)
		}

		if m != nil {
			m.RecordEvaluation(decision.IsAllow(), elapsed.Seconds())
			m.ObserveStore(store.Stats())
			m.ObserveTiering(mgr.Snapshots())
		}

		if decision.IsAllow() {
			fmt.Println("ALLOW")
		} else {
			fmt.Println("DENY")
		}
		if decision.HasReason {
			fmt.Printf("reason:  %s\n", decision.Reason)
		}
		if len(decision.MatchedPolicies) > 0 {
			fmt.Printf("matched: %v\n", decision.MatchedPolicies)
		}

		return nil
	},
}

// printMetrics gathers reg's registered series and writes them to stderr in
// Prometheus text exposition format, the same wire format a promhttp handler
// would serve — this command has no HTTP surface of its own (§6, no network
// protocol), so the registry is dumped directly instead.
func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics gather failed: %v\n", err)
		return
	}
	enc := expfmt.NewEncoder(os.Stderr, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			fmt.Fprintf(os.Stderr, "metrics encode failed: %v\n", err)
			return
		}
	}
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateContextPath, "context", "", "path to a JSON context fixture (required)")
	evaluateCmd.Flags().BoolVar(&evaluateMetrics, "metrics", false, "install an OTel tracer on the store and print Prometheus metrics to stderr after evaluating")
	rootCmd.AddCommand(evaluateCmd)
}
