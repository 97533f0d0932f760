package accountclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName      = "org.freedesktop.Accounts"
	managerPath  = "/org/freedesktop/Accounts"
	managerIface = "org.freedesktop.Accounts"
	userIface    = "org.freedesktop.Accounts.User"
)

// DefaultCallTimeout bounds calls whose context carries no deadline, so
// a stuck service cannot tie up the caller forever.
const DefaultCallTimeout = 25 * time.Second

// BusClient implements Client against the accounts service on the
// system bus. Signal matches are installed at construction time, before
// any account listing, so notifications racing an initial scan are
// buffered on the event channel rather than lost.
type BusClient struct {
	conn    *dbus.Conn
	manager dbus.BusObject
	timeout time.Duration

	signals chan *dbus.Signal
	events  chan Event
	done    chan struct{}
}

type BusOption func(*BusClient)

// WithCallTimeout overrides the default per-call timeout applied when
// the caller's context has no deadline.
func WithCallTimeout(d time.Duration) BusOption {
	return func(c *BusClient) {
		c.timeout = d
	}
}

// NewBusClient connects to the system bus and subscribes to account
// change notifications.
func NewBusClient(opts ...BusOption) (*BusClient, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	client, err := NewBusClientWithConn(conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// NewBusClientWithConn wraps an existing bus connection. The client
// takes ownership of the connection and closes it on Close.
func NewBusClientWithConn(conn *dbus.Conn, opts ...BusOption) (*BusClient, error) {
	c := &BusClient{
		conn:    conn,
		manager: conn.Object(busName, managerPath),
		timeout: DefaultCallTimeout,
		signals: make(chan *dbus.Signal, 64),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(managerIface), dbus.WithMatchMember("UserAdded")},
		{dbus.WithMatchInterface(managerIface), dbus.WithMatchMember("UserDeleted")},
		{dbus.WithMatchInterface(userIface), dbus.WithMatchMember("Changed")},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			return nil, err
		}
	}

	conn.Signal(c.signals)
	go c.translateSignals()

	return c, nil
}

// translateSignals turns raw bus signals into Events until the signal
// channel is drained after Close.
func (c *BusClient) translateSignals() {
	defer close(c.events)
	for sig := range c.signals {
		ev, ok := eventFromSignal(sig)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// eventFromSignal maps one bus signal to an Event. Membership signals
// carry the account path in the body; per-account change signals carry
// it as the emitting object path.
func eventFromSignal(sig *dbus.Signal) (Event, bool) {
	switch sig.Name {
	case managerIface + ".UserAdded", managerIface + ".UserDeleted":
		if len(sig.Body) != 1 {
			return Event{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return Event{}, false
		}
		kind := AccountAdded
		if sig.Name == managerIface+".UserDeleted" {
			kind = AccountRemoved
		}
		return Event{Kind: kind, Identity: Identity(path)}, true
	case userIface + ".Changed":
		return Event{Kind: AccountChanged, Identity: Identity(sig.Path)}, true
	}
	return Event{}, false
}

func (c *BusClient) Events() <-chan Event {
	return c.events
}

func (c *BusClient) Close() error {
	close(c.done)
	c.conn.RemoveSignal(c.signals)
	close(c.signals)
	return c.conn.Close()
}

// callContext applies the default timeout when the caller provided no
// deadline of its own.
func (c *BusClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *BusClient) ListAccounts(ctx context.Context) ([]Identity, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var paths []dbus.ObjectPath
	err := c.manager.CallWithContext(ctx, managerIface+".ListCachedUsers", 0).Store(&paths)
	if err != nil {
		return nil, err
	}

	ids := make([]Identity, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, Identity(p))
	}
	return ids, nil
}

func (c *BusClient) GetAccount(ctx context.Context, id Identity) (Account, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	obj := c.conn.Object(busName, dbus.ObjectPath(id))
	var props map[string]dbus.Variant
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.GetAll", 0, userIface).Store(&props)
	if err != nil {
		return Account{}, err
	}

	return accountFromProps(id, props), nil
}

// accountFromProps decodes the service's property bag into an Account.
// Missing or mistyped properties decode to zero values; the service
// owns the schema and partial bags show up only on foreign
// implementations.
func accountFromProps(id Identity, props map[string]dbus.Variant) Account {
	return Account{
		Identity:       id,
		UID:            propUint64(props, "Uid"),
		Username:       propString(props, "UserName"),
		RealName:       propString(props, "RealName"),
		Email:          propString(props, "Email"),
		IconFile:       propString(props, "IconFile"),
		AccountType:    AccountType(propInt32(props, "AccountType")),
		AutomaticLogin: propBool(props, "AutomaticLogin"),
		SystemAccount:  propBool(props, "SystemAccount"),
	}
}

func propString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func propBool(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

func propUint64(props map[string]dbus.Variant, key string) uint64 {
	if v, ok := props[key]; ok {
		switch n := v.Value().(type) {
		case uint64:
			return n
		case uint32:
			return uint64(n)
		}
	}
	return 0
}

func propInt32(props map[string]dbus.Variant, key string) int32 {
	if v, ok := props[key]; ok {
		if n, ok := v.Value().(int32); ok {
			return n
		}
	}
	return 0
}

// callUser invokes a method on one account object.
func (c *BusClient) callUser(ctx context.Context, id Identity, method string, args ...interface{}) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	obj := c.conn.Object(busName, dbus.ObjectPath(id))
	call := obj.CallWithContext(ctx, userIface+"."+method, 0, args...)
	if call.Err != nil {
		slog.Debug("account call failed", "method", method, "identity", string(id), "error", call.Err)
	}
	return call.Err
}

func (c *BusClient) SetUsername(ctx context.Context, id Identity, username string) error {
	return c.callUser(ctx, id, "SetUserName", username)
}

func (c *BusClient) SetRealName(ctx context.Context, id Identity, realName string) error {
	return c.callUser(ctx, id, "SetRealName", realName)
}

func (c *BusClient) SetEmail(ctx context.Context, id Identity, email string) error {
	return c.callUser(ctx, id, "SetEmail", email)
}

func (c *BusClient) SetAdministrator(ctx context.Context, id Identity, admin bool) error {
	accountType := StandardAccount
	if admin {
		accountType = AdministratorAccount
	}
	return c.callUser(ctx, id, "SetAccountType", int32(accountType))
}

func (c *BusClient) SetAutoLogin(ctx context.Context, id Identity, enabled bool) error {
	return c.callUser(ctx, id, "SetAutomaticLogin", enabled)
}

func (c *BusClient) SetPassword(ctx context.Context, id Identity, crypted, hint string) error {
	return c.callUser(ctx, id, "SetPassword", crypted, hint)
}

func (c *BusClient) CreateAccount(ctx context.Context, username, realName string, accountType AccountType) (Identity, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var path dbus.ObjectPath
	err := c.manager.CallWithContext(ctx, managerIface+".CreateUser", 0, username, realName, int32(accountType)).Store(&path)
	if err != nil {
		return "", err
	}
	return Identity(path), nil
}

func (c *BusClient) DeleteAccount(ctx context.Context, id Identity, keepFiles bool) error {
	acc, err := c.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	// The service takes a remove-files flag, the reverse of the
	// caller-facing keep-files contract.
	call := c.manager.CallWithContext(ctx, managerIface+".DeleteUser", 0, int64(acc.UID), !keepFiles)
	return call.Err
}

func (c *BusClient) CacheUser(ctx context.Context, username string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	// CacheUser returns the account's object path; callers that need it
	// will see the account through the added notification instead.
	var path dbus.ObjectPath
	return c.manager.CallWithContext(ctx, managerIface+".CacheUser", 0, username).Store(&path)
}

func (c *BusClient) UncacheUser(ctx context.Context, username string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	return c.manager.CallWithContext(ctx, managerIface+".UncacheUser", 0, username).Err
}

var _ Client = (*BusClient)(nil)
