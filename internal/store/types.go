package store

import "time"

// InboxState is the subscriber lifecycle state named in spec §4.F.
type InboxState string

const (
	InboxSubscribed InboxState = "subscribed"
	InboxFailed     InboxState = "failed"
)

// Inbox is a subscribed (or failing) federated instance. domain is the
// natural primary key; at most one row exists per domain.
type Inbox struct {
	Domain       string
	Actor        string
	InboxURL     string
	FollowID     string
	Software     string
	State        InboxState
	FailCount    int
	FirstFailure *time.Time
	Created      time.Time
}

type DomainBan struct {
	Domain  string
	Reason  string
	Note    string
	Created time.Time
}

type SoftwareBan struct {
	Name    string
	Reason  string
	Note    string
	Created time.Time
}

type WhitelistEntry struct {
	Domain  string
	Created time.Time
}

type User struct {
	Username string
	Hash     string
	Handle   string
	Created  time.Time
}

type Token struct {
	Token    string
	Username string
	Created  time.Time
}

// ValueType tags a ConfigKV/CacheRow value so readers can decode without a
// per-call schema, per the anti-reflection design note.
type ValueType string

const (
	ValueString ValueType = "str"
	ValueInt    ValueType = "int"
	ValueBool   ValueType = "bool"
	ValueJSON   ValueType = "json"
)

type ConfigEntry struct {
	Key   string
	Value string
	Type  ValueType
}

type CacheRow struct {
	Namespace string
	Key       string
	Value     string
	Type      ValueType
	Updated   time.Time
}

// PendingRequest is a Follow awaiting admin approval (approval-required
// flow, §4.E/§4.F). Promoted to an Inbox on accept, dropped on reject/Undo.
type PendingRequest struct {
	Domain   string
	Actor    string
	InboxURL string
	FollowID string
	Created  time.Time
}

// Recognized ConfigKV keys (§6 DB-stored admin config).
const (
	ConfigName             = "name"
	ConfigNote             = "note"
	ConfigTheme            = "theme"
	ConfigLogLevel         = "log-level"
	ConfigWhitelistEnabled = "whitelist-enabled"
	ConfigApprovalRequired = "approval-required"
	ConfigSchemaVersion    = "schema-version"
	ConfigPrivateKey       = "private-key"
	ConfigPrivateKeyID     = "private-key-id"
)
