// Package approval defines the Approval record and the Scope/TTL types
// shared with internal/domain/relationship, grounded on
// original_source/crates/ipe-core/src/approval.rs.
package approval

import (
	"fmt"
	"strings"
	"time"
)

// ScopeKind discriminates the Scope variants.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeTenant
	ScopeEnvironment
	ScopeTenantEnvironment
	ScopeCustom
)

// Scope isolates approval/relationship records by tenant and/or
// environment; it is the exact shape of the original's enum, collapsed
// into a single Go struct.
type Scope struct {
	Kind        ScopeKind
	Tenant      string
	Environment string
	CustomParts []string
}

// GlobalScope is the default, all-tenants scope.
var GlobalScope = Scope{Kind: ScopeGlobal}

// TenantScope builds a Tenant-scoped Scope.
func TenantScope(tenant string) Scope { return Scope{Kind: ScopeTenant, Tenant: tenant} }

// EnvironmentScope builds an Environment-scoped Scope.
func EnvironmentScope(env string) Scope { return Scope{Kind: ScopeEnvironment, Environment: env} }

// TenantEnvironmentScope builds a combined Tenant+Environment Scope.
func TenantEnvironmentScope(tenant, env string) Scope {
	return Scope{Kind: ScopeTenantEnvironment, Tenant: tenant, Environment: env}
}

// CustomScope builds a hierarchical custom Scope.
func CustomScope(parts ...string) Scope {
	return Scope{Kind: ScopeCustom, CustomParts: parts}
}

// Encode renders the scope into its storage-key segment, matching
// Scope::encode in the original source byte-for-byte.
func (s Scope) Encode() string {
	switch s.Kind {
	case ScopeGlobal:
		return "global"
	case ScopeTenant:
		return fmt.Sprintf("tenant:%s", s.Tenant)
	case ScopeEnvironment:
		return fmt.Sprintf("env:%s", s.Environment)
	case ScopeTenantEnvironment:
		return fmt.Sprintf("tenant:%s:env:%s", s.Tenant, s.Environment)
	case ScopeCustom:
		return fmt.Sprintf("custom:%s", strings.Join(s.CustomParts, ":"))
	default:
		return "global"
	}
}

// TTLConfig bounds how long an Approval or Relationship's TTL may be set,
// and whether TTL enforcement applies at all.
type TTLConfig struct {
	DefaultTTL  time.Duration
	HasDefault  bool
	MinTTL      time.Duration
	MaxTTL      time.Duration
	EnforceTTL  bool
}

// DefaultTTLConfig mirrors TTLConfig::default(): no default TTL, a 60s
// floor, a 1-year ceiling, enforcement on.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		MinTTL:     60 * time.Second,
		MaxTTL:     365 * 24 * time.Hour,
		EnforceTTL: true,
	}
}

// TemporaryTTLConfig mirrors TTLConfig::temporary(): 1h default, 60s floor,
// 24h ceiling.
func TemporaryTTLConfig() TTLConfig {
	return TTLConfig{
		DefaultTTL: time.Hour, HasDefault: true,
		MinTTL: 60 * time.Second, MaxTTL: 24 * time.Hour, EnforceTTL: true,
	}
}

// ShortLivedTTLConfig mirrors TTLConfig::short_lived(): 1 day default.
func ShortLivedTTLConfig() TTLConfig {
	return TTLConfig{
		DefaultTTL: 24 * time.Hour, HasDefault: true,
		MinTTL: time.Hour, MaxTTL: 7 * 24 * time.Hour, EnforceTTL: true,
	}
}

// LongLivedTTLConfig mirrors TTLConfig::long_lived(): 30 day default.
func LongLivedTTLConfig() TTLConfig {
	return TTLConfig{
		DefaultTTL: 30 * 24 * time.Hour, HasDefault: true,
		MinTTL: 24 * time.Hour, MaxTTL: 365 * 24 * time.Hour, EnforceTTL: true,
	}
}

// Approval records authorization explicitly granted by a privileged
// identity for one (resource, action) pair.
type Approval struct {
	Identity   string
	Resource   string
	Action     string
	GrantedBy  string
	GrantedAt  time.Time
	ExpiresAt  time.Time
	HasExpiry  bool
	Metadata   map[string]string
	Scope      Scope
	TTLSeconds int64
	HasTTL     bool
}

// New builds an Approval granted now, in the Global scope, with no expiry.
func New(identity, resource, action, grantedBy string) Approval {
	return Approval{
		Identity:  identity,
		Resource:  resource,
		Action:    action,
		GrantedBy: grantedBy,
		GrantedAt: time.Now(),
		Scope:     GlobalScope,
		Metadata:  make(map[string]string),
	}
}

// WithScope returns a copy of a scoped to scope.
func (a Approval) WithScope(scope Scope) Approval {
	a.Scope = scope
	return a
}

// WithTTL returns a copy of a with a TTL (and derived ExpiresAt) attached.
func (a Approval) WithTTL(ttl time.Duration) Approval {
	a.TTLSeconds = int64(ttl.Seconds())
	a.HasTTL = true
	a.ExpiresAt = time.Now().Add(ttl)
	a.HasExpiry = true
	return a
}

// WithExpiration returns a copy of a expiring `in` from now.
func (a Approval) WithExpiration(in time.Duration) Approval {
	a.ExpiresAt = time.Now().Add(in)
	a.HasExpiry = true
	return a
}

// WithMetadata returns a copy of a with key/value merged into Metadata.
func (a Approval) WithMetadata(key, value string) Approval {
	m := make(map[string]string, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		m[k] = v
	}
	m[key] = value
	a.Metadata = m
	return a
}

// IsExpired reports whether a has an expiry and it has passed.
func (a Approval) IsExpired() bool {
	return a.HasExpiry && !time.Now().Before(a.ExpiresAt)
}

// Key renders the storage key this approval is addressed by:
// "approvals:{scope}:{identity}:{resource}:{action}" (spec.md §6).
func (a Approval) Key() string {
	return EncodeKey(a.Scope, a.Identity, a.Resource, a.Action)
}

// EncodeKey builds the direct-lookup storage key without requiring a full
// Approval value, for read paths that only have the lookup tuple.
func EncodeKey(scope Scope, identity, resource, action string) string {
	return fmt.Sprintf("approvals:%s:%s:%s:%s", scope.Encode(), identity, resource, action)
}

// Prefix renders the key prefix covering every approval granted to
// identity in scope, for set-membership prefix scans.
func Prefix(scope Scope, identity string) string {
	return fmt.Sprintf("approvals:%s:%s:", scope.Encode(), identity)
}
