// Package storage defines the persistence boundary spec §6 names
// (Storage trait) plus a concrete bbolt-backed implementation.
//
// Grounded on go.etcd.io/bbolt, the teacher's only embedded-storage
// dependency (used there for Gemini-Web conversation caches in
// internal/provider/gemini-web/state.go); here it backs the full table
// set spec §6 lists instead of one cache bucket.
package storage

import "time"

// Provider is one configured upstream provider row.
type Provider struct {
	ID       int64
	Name     string
	Kind     string
	Settings map[string]string
}

// Credential is one persisted credential row (the durable counterpart of
// credential.Entry, which is the in-memory/runtime view).
type Credential struct {
	ID         int64
	ProviderID int64
	Attributes map[string]string
	Metadata   map[string]any
	Weight     int
}

// AdminCredentialInput is the upsert payload spec §3.3/§6 names
// (AdminCredentialInput), carrying only the fields an admin caller may
// set directly.
type AdminCredentialInput struct {
	ID         int64 // 0 means insert
	ProviderID int64
	Attributes map[string]string
	Metadata   map[string]any
	Weight     int
}

// CredentialDisallow is one persisted disallow row, the durable
// counterpart of credential.DisallowEntry.
type CredentialDisallow struct {
	CredentialID int64
	Scope        string // encoded "all" | "model:<name>" | "capability:<name>"
	Level        string // "cooldown" | "dead"
	Until        time.Time
	Reason       string
}

// DownstreamTrafficEvent records one inbound request/response pair.
type DownstreamTrafficEvent struct {
	Timestamp      time.Time
	Method         string
	Path           string
	Query          string
	RequestHeaders map[string]string
	RequestBody    []byte
	ResponseStatus int
	ResponseHeaders map[string]string
	ResponseBody   []byte
	Cancelled      bool
}

// UpstreamTrafficEvent records one outbound attempt.
type UpstreamTrafficEvent struct {
	Timestamp    time.Time
	CredentialID int64
	Provider     string
	Model        string
	Attempt      int
	Status       int
	InputTokens  int64
	OutputTokens int64
	Error        string
}

// TrafficUsage is the aggregate spec §6's get_upstream_usage returns.
type TrafficUsage struct {
	InputTokens  int64
	OutputTokens int64
	RequestCount int64
}

// Store is the persistence boundary spec §6 names ("Storage" collaborator
// interface): list_providers, list_credentials, upsert_credential,
// upsert_provider, insert_downstream, insert_upstream,
// get_upstream_usage, ensure_admin_user, sync — all present verbatim.
type Store interface {
	ListProviders() ([]Provider, error)
	ListCredentials() ([]Credential, error)
	UpsertCredential(input AdminCredentialInput) (Credential, error)
	UpsertProvider(p Provider) (Provider, error)
	InsertDownstream(event DownstreamTrafficEvent) error
	InsertUpstream(event UpstreamTrafficEvent) error
	GetUpstreamUsage(credentialID int64, model string, start, end time.Time) (TrafficUsage, error)
	// EnsureAdminUser creates the admin user/api-key row if absent,
	// hashing key with bcrypt before it ever reaches storage.
	EnsureAdminUser(key string) error
	Sync() error
	Close() error
}
