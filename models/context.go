package models

// Context is a named, access-controlled view of a Record Store, selected by
// community string (v1/v2c) or contextName (v3).
type Context struct {
	Name string

	// StoreRef names the Record Store backing this context (see
	// pkg/agentsim/store.Registry).
	StoreRef string

	// AllowedUsers restricts which v3 usernames (or, for v1/v2c, community
	// strings) may query this context. Empty means unrestricted.
	AllowedUsers []string

	// DeniedOIDPatterns is a list of OID prefixes. Varbinds under any of
	// these become NoAccess on Get/Set and are skipped on walks.
	DeniedOIDPatterns []OID

	// OIDOverrides is consulted before the underlying Record Store for an
	// exact OID match. The Simulation Engine's state-machine transitions
	// write here. Guarded by the Context Resolver's per-context mutex (see
	// pkg/agentsim/context).
	OIDOverrides map[string]Record
}

// CommunityMapping binds a v1/v2c community string to a context name.
type CommunityMapping struct {
	Community string
	Context   string
}
