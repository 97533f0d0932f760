package accountclient

import "context"

// Identity is the stable opaque key correlating a cached record to
// exactly one remote account object for its lifetime. On the system bus
// it is the account's object path; it is never reused for a different
// account.
type Identity string

// AccountType mirrors the remote service's account type enumeration.
type AccountType int32

const (
	StandardAccount      AccountType = 0
	AdministratorAccount AccountType = 1
)

// Account is a value snapshot of one remote account object's properties.
type Account struct {
	Identity       Identity
	UID            uint64
	Username       string
	RealName       string
	Email          string
	IconFile       string
	AccountType    AccountType
	AutomaticLogin bool

	// SystemAccount marks non-interactive accounts. The cache never
	// admits these.
	SystemAccount bool
}

// EventKind discriminates the change notifications delivered by the
// accounts service.
type EventKind int

const (
	AccountAdded EventKind = iota
	AccountRemoved
	AccountChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountAdded:
		return "added"
	case AccountRemoved:
		return "removed"
	case AccountChanged:
		return "changed"
	}
	return "unknown"
}

// Event is one change notification from the accounts service.
type Event struct {
	Kind     EventKind
	Identity Identity
}

// Client provides call/reply access to the system accounts service plus
// a subscription feed of change notifications. Calls resolve to
// success or failure before returning; implementations apply a bounded
// timeout when the context carries no deadline.
type Client interface {
	// ListAccounts returns the identities of all accounts the service
	// currently knows, including non-interactive ones.
	ListAccounts(ctx context.Context) ([]Identity, error)

	// GetAccount fetches a snapshot of one account's properties.
	GetAccount(ctx context.Context, id Identity) (Account, error)

	SetUsername(ctx context.Context, id Identity, username string) error
	SetRealName(ctx context.Context, id Identity, realName string) error
	SetEmail(ctx context.Context, id Identity, email string) error
	SetAdministrator(ctx context.Context, id Identity, admin bool) error
	SetAutoLogin(ctx context.Context, id Identity, enabled bool) error

	// SetPassword forwards an already-crypted credential payload. The
	// client stores nothing.
	SetPassword(ctx context.Context, id Identity, crypted, hint string) error

	// CreateAccount creates a new account and returns its identity.
	CreateAccount(ctx context.Context, username, realName string, accountType AccountType) (Identity, error)

	// DeleteAccount removes an account, optionally keeping its files.
	DeleteAccount(ctx context.Context, id Identity, keepFiles bool) error

	// CacheUser and UncacheUser register and evict an account's cached
	// credentials with the service.
	CacheUser(ctx context.Context, username string) error
	UncacheUser(ctx context.Context, username string) error

	// Events returns the notification feed. The channel is open from
	// client construction, so events racing an initial ListAccounts
	// scan are buffered rather than lost.
	Events() <-chan Event

	Close() error
}
