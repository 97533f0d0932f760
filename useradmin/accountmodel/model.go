package accountmodel

import (
	"context"
	"os"
	"sync"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/useradminops/useradmin/logger"
	"github.com/useradminops/useradmin/useradmin/accountclient"
	"github.com/useradminops/useradmin/useradmin/sessionmanager"
)

// DraftIdentity is the sentinel identity of the permanent draft row.
// It has no backing record and never appears in the records map.
const DraftIdentity accountclient.Identity = "new-user"

// Placeholder values the draft row answers for its display fields.
const (
	DraftDisplayName = "New User"
	DraftIconName    = "list-add-user"
)

// Model is an ordered, row-addressable cache of the accounts known to
// the remote accounts service. Row 0 holds the caller's own account,
// the last row is the permanent draft used to stage a new account, and
// everything in between mirrors the service. The model reconciles
// itself against the service's change notifications; see Run.
//
// All row state is guarded by one mutex, so readers never observe a
// partially applied notification: row count and per-row data move
// together.
type Model struct {
	mu sync.RWMutex

	client accountclient.Client
	log    logger.Logger
	ownUID uint64

	order   []accountclient.Identity
	records map[accountclient.Identity]*Record
	logged  map[accountclient.Identity]bool
	draft   map[Field]interface{}

	onRowsInserted func(row int)
	onRowsRemoved  func(row int)
	onDataChanged  func(row int)
}

type Option func(*Model)

// WithLogger replaces the model's default stderr logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Model) {
		m.log = log
	}
}

// WithOwnUID overrides the uid considered "the caller's own account",
// which is pinned to row 0. Defaults to the process's uid.
func WithOwnUID(uid uint64) Option {
	return func(m *Model) {
		m.ownUID = uid
	}
}

// OnRowsInserted registers the row-inserted callback.
func OnRowsInserted(fn func(row int)) Option {
	return func(m *Model) {
		m.onRowsInserted = fn
	}
}

// OnRowsRemoved registers the row-removed callback.
func OnRowsRemoved(fn func(row int)) Option {
	return func(m *Model) {
		m.onRowsRemoved = fn
	}
}

// OnDataChanged registers the per-row data-changed callback.
func OnDataChanged(fn func(row int)) Option {
	return func(m *Model) {
		m.onDataChanged = fn
	}
}

// New loads the current account set from the service and appends the
// draft row. The client's notification feed is already live at this
// point, so an account added while the initial scan runs is picked up
// by Run through the idempotent add path.
func New(ctx context.Context, client accountclient.Client, opts ...Option) (*Model, error) {
	m := &Model{
		client:  client,
		log:     logger.New(),
		ownUID:  uint64(os.Getuid()),
		records: make(map[accountclient.Identity]*Record),
		logged:  make(map[accountclient.Identity]bool),
		draft:   make(map[Field]interface{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	ids, err := client.ListAccounts(ctx)
	if err != nil {
		return nil, &RemoteError{Op: "list accounts", Err: err}
	}

	for _, id := range ids {
		acc, err := client.GetAccount(ctx, id)
		if err != nil {
			m.log.Warn("cannot load account", "identity", string(id), "error", err)
			continue
		}
		if acc.SystemAccount {
			continue
		}

		rec := recordFromAccount(acc, m.ownUID)
		pos := len(m.order)
		if rec.Own {
			pos = 0
		}
		m.insertLocked(pos, rec)
	}

	m.order = append(m.order, DraftIdentity)
	return m, nil
}

// insertLocked places a record at the given row. Callers hold the
// write lock (or, during New, exclusive ownership).
func (m *Model) insertLocked(pos int, rec *Record) {
	m.order = append(m.order, "")
	copy(m.order[pos+1:], m.order[pos:])
	m.order[pos] = rec.Identity

	m.records[rec.Identity] = rec
	m.logged[rec.Identity] = false
}

// removeLocked drops an identity from all three maps and the order.
// Returns the row it occupied, or -1.
func (m *Model) removeLocked(id accountclient.Identity) int {
	row := m.rowOfLocked(id)
	if row < 0 {
		return -1
	}
	m.order = append(m.order[:row], m.order[row+1:]...)
	delete(m.records, id)
	delete(m.logged, id)
	return row
}

func (m *Model) rowOfLocked(id accountclient.Identity) int {
	for i, cur := range m.order {
		if cur == id {
			return i
		}
	}
	return -1
}

// RowCount returns the number of rows: one per cached account plus the
// permanent draft row.
func (m *Model) RowCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// DraftRow returns the index of the draft row, always the last one.
func (m *Model) DraftRow() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order) - 1
}

// Identity returns the identity behind a row. The draft row answers
// DraftIdentity.
func (m *Model) Identity(row int) (accountclient.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if row < 0 || row >= len(m.order) {
		return "", false
	}
	return m.order[row], true
}

// RowForIdentity locates the row mirroring an identity. Only real
// accounts are addressable this way; the draft sentinel has no record
// behind it and answers ErrUnknownIdentity like any other identity the
// cache does not hold.
func (m *Model) RowForIdentity(id accountclient.Identity) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, known := m.records[id]; !known {
		return -1, ErrUnknownIdentity
	}
	return m.rowOfLocked(id), nil
}

// RowForUsername locates a real account row by login name, or -1.
func (m *Model) RowForUsername(username string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, id := range m.order {
		if rec := m.records[id]; rec != nil && rec.Username == username {
			return i
		}
	}
	return -1
}

// Usernames returns the login names of all cached accounts.
func (m *Model) Usernames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.records))
	for _, id := range m.order {
		if rec := m.records[id]; rec != nil {
			names = append(names, rec.Username)
		}
	}
	return names
}

// Data answers a field for a row. Read access is total: an out-of-range
// row or an unanswerable field yields nil, never a failure. The draft
// row answers only its placeholder display fields.
func (m *Model) Data(row int, field Field) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if row < 0 || row >= len(m.order) {
		return nil
	}

	id := m.order[row]
	rec := m.records[id]
	if rec == nil {
		return draftData(field)
	}

	switch field {
	case FieldUsername:
		return rec.Username
	case FieldRealName:
		return rec.RealName
	case FieldEmail:
		return rec.Email
	case FieldAdministrator:
		return rec.Administrator
	case FieldAutomaticLogin:
		return rec.AutomaticLogin
	case FieldFace:
		return rec.FaceFile
	case FieldFriendlyName:
		return rec.FriendlyName()
	case FieldLogged:
		return m.logged[id]
	case FieldCreated:
		return rec.Created
	}
	return nil
}

func draftData(field Field) interface{} {
	switch field {
	case FieldFriendlyName:
		return DraftDisplayName
	case FieldFace:
		return DraftIconName
	case FieldCreated:
		return false
	}
	return nil
}

// SetData writes one field of one row. For real rows the remote call
// runs first and the local mirror is updated only on success; the
// round trip may suspend the caller for its duration. Draft-row writes
// accumulate until the staged set is complete, then create the account.
func (m *Model) SetData(ctx context.Context, row int, field Field, value interface{}) error {
	m.mu.RLock()
	if row < 0 || row >= len(m.order) {
		m.mu.RUnlock()
		return ErrInvalidRow
	}
	id := m.order[row]
	isDraft := m.records[id] == nil
	m.mu.RUnlock()

	if isDraft {
		return m.setDraftData(ctx, field, value)
	}

	switch field {
	case FieldUsername:
		username, ok := stringValue(value)
		if !ok {
			return ErrValueType
		}
		if err := m.client.SetUsername(ctx, id, username); err != nil {
			return &RemoteError{Op: "set username", Err: err}
		}
		m.commitString(id, field, username)

	case FieldRealName:
		realName, ok := stringValue(value)
		if !ok {
			return ErrValueType
		}
		if err := m.client.SetRealName(ctx, id, realName); err != nil {
			return &RemoteError{Op: "set real name", Err: err}
		}
		m.recacheCredentials(ctx, id)
		m.commitString(id, field, realName)

	case FieldEmail:
		email, ok := stringValue(value)
		if !ok {
			return ErrValueType
		}
		if err := m.client.SetEmail(ctx, id, email); err != nil {
			return &RemoteError{Op: "set email", Err: err}
		}
		m.commitString(id, field, email)

	case FieldAdministrator:
		admin, ok := boolValue(value)
		if !ok {
			return ErrValueType
		}
		if err := m.client.SetAdministrator(ctx, id, admin); err != nil {
			return &RemoteError{Op: "set administrator", Err: err}
		}
		m.commitBool(id, field, admin)

	case FieldAutomaticLogin:
		enabled, ok := boolValue(value)
		if !ok {
			return ErrValueType
		}
		if err := m.client.SetAutoLogin(ctx, id, enabled); err != nil {
			return &RemoteError{Op: "set automatic login", Err: err}
		}
		m.commitBool(id, field, enabled)

	case FieldPassword:
		cred, ok := value.(Credential)
		if !ok {
			return ErrValueType
		}
		if err := m.client.SetPassword(ctx, id, cred.Crypted, cred.Hint); err != nil {
			return &RemoteError{Op: "set password", Err: err}
		}
		// Nothing cached; the next change notification is enough.
		m.notifyChangedByIdentity(id)

	case FieldFace:
		// The avatar file is placed by an external collaborator; the
		// model only records the path and announces the change. The
		// canonical path replaces it on the next remote refresh.
		path, ok := stringValue(value)
		if !ok {
			return ErrValueType
		}
		m.commitString(id, field, path)

	case FieldLogged:
		active, ok := boolValue(value)
		if !ok {
			return ErrValueType
		}
		m.mu.Lock()
		if _, known := m.records[id]; known {
			m.logged[id] = active
		}
		m.mu.Unlock()
		m.notifyChangedByIdentity(id)

	default:
		return ErrReadOnlyField
	}

	return nil
}

// recacheCredentials evicts and re-registers an account's cached
// credentials after a rename. Both steps are best-effort: the rename
// already succeeded and stands regardless.
func (m *Model) recacheCredentials(ctx context.Context, id accountclient.Identity) {
	m.mu.RLock()
	rec := m.records[id]
	m.mu.RUnlock()
	if rec == nil {
		return
	}

	log := m.log.With("username", rec.Username)
	if err := m.client.UncacheUser(ctx, rec.Username); err != nil {
		log.Warn("uncache after rename failed", "error", err)
		return
	}
	if err := m.client.CacheUser(ctx, rec.Username); err != nil {
		log.Warn("recache after rename failed", "error", err)
	}
}

// commitString updates one string field of the local mirror after a
// successful remote call. The record may have been removed by a racing
// notification; then there is nothing to update.
func (m *Model) commitString(id accountclient.Identity, field Field, value string) {
	m.mu.Lock()
	rec := m.records[id]
	if rec != nil {
		switch field {
		case FieldUsername:
			rec.Username = value
		case FieldRealName:
			rec.RealName = value
		case FieldEmail:
			rec.Email = value
		case FieldFace:
			rec.FaceFile = value
		}
	}
	m.mu.Unlock()
	if rec != nil {
		m.notifyChangedByIdentity(id)
	}
}

func (m *Model) commitBool(id accountclient.Identity, field Field, value bool) {
	m.mu.Lock()
	rec := m.records[id]
	if rec != nil {
		switch field {
		case FieldAdministrator:
			rec.Administrator = value
		case FieldAutomaticLogin:
			rec.AutomaticLogin = value
		}
	}
	m.mu.Unlock()
	if rec != nil {
		m.notifyChangedByIdentity(id)
	}
}

// setDraftData accumulates a staged field for the account being
// drafted. Once username, real name, email and both flags are present,
// a single create call goes out; auto-login and email are applied to
// the new account afterwards, best-effort. On a failed creation the
// staged set survives for retry.
func (m *Model) setDraftData(ctx context.Context, field Field, value interface{}) error {
	m.mu.Lock()
	switch field {
	case FieldUsername, FieldRealName, FieldEmail:
		s, ok := stringValue(value)
		if !ok {
			m.mu.Unlock()
			return ErrValueType
		}
		m.draft[field] = s
	case FieldAdministrator, FieldAutomaticLogin:
		b, ok := boolValue(value)
		if !ok {
			m.mu.Unlock()
			return ErrValueType
		}
		m.draft[field] = b
	default:
		m.mu.Unlock()
		return ErrInvalidRow
	}

	for _, f := range draftFields {
		if _, staged := m.draft[f]; !staged {
			m.mu.Unlock()
			return nil
		}
	}

	username := m.draft[FieldUsername].(string)
	realName := m.draft[FieldRealName].(string)
	email := m.draft[FieldEmail].(string)
	admin := m.draft[FieldAdministrator].(bool)
	autoLogin := m.draft[FieldAutomaticLogin].(bool)
	m.mu.Unlock()

	accountType := accountclient.StandardAccount
	if admin {
		accountType = accountclient.AdministratorAccount
	}

	id, err := m.client.CreateAccount(ctx, username, realName, accountType)
	if err != nil {
		return &RemoteError{Op: "create account", Err: err}
	}

	// The account exists from here on; these are not rolled back.
	var errs *multierror.Error
	if err := m.client.SetAutoLogin(ctx, id, autoLogin); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.client.SetEmail(ctx, id, email); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		m.log.Warn("post-creation setup incomplete", "identity", string(id), "error", err)
	}

	m.mu.Lock()
	m.draft = make(map[Field]interface{})
	m.mu.Unlock()

	// The new account's row appears through its added notification.
	return nil
}

// DraftFieldCount returns how many draft fields are currently staged.
func (m *Model) DraftFieldCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.draft)
}

// RemoveAccount deletes a real account through the service. The draft
// row and the caller's own account are rejected before any remote call.
// On success the row itself goes away when the service's removal
// notification arrives, keeping one structural path for row removal.
func (m *Model) RemoveAccount(ctx context.Context, row int, keepFiles bool) error {
	m.mu.RLock()
	if row < 0 || row >= len(m.order) {
		m.mu.RUnlock()
		return ErrInvalidRow
	}
	id := m.order[row]
	rec := m.records[id]
	m.mu.RUnlock()

	if rec == nil || rec.Own {
		return ErrInvalidRow
	}

	if err := m.client.DeleteAccount(ctx, id, keepFiles); err != nil {
		return &RemoteError{Op: "delete account", Err: err}
	}
	return nil
}

func (m *Model) notifyRowsInserted(row int) {
	if m.onRowsInserted != nil {
		m.onRowsInserted(row)
	}
}

func (m *Model) notifyRowsRemoved(row int) {
	if m.onRowsRemoved != nil {
		m.onRowsRemoved(row)
	}
}

func (m *Model) notifyDataChanged(row int) {
	if m.onDataChanged != nil {
		m.onDataChanged(row)
	}
}

func (m *Model) notifyChangedByIdentity(id accountclient.Identity) {
	row, err := m.RowForIdentity(id)
	if err == nil {
		m.notifyDataChanged(row)
	}
}

// Run pumps service notifications and session status changes into the
// model until ctx is done or both feeds close. A nil session channel
// is allowed.
func (m *Model) Run(ctx context.Context, sessions <-chan sessionmanager.Event) {
	events := m.client.Events()
	for events != nil || sessions != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.Apply(ctx, ev)
		case sev, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			m.SessionChanged(sev.UID, sev.Active)
		}
	}
}

// Apply reconciles one service notification into the cache.
func (m *Model) Apply(ctx context.Context, ev accountclient.Event) {
	switch ev.Kind {
	case accountclient.AccountAdded:
		m.applyAdded(ctx, ev.Identity)
	case accountclient.AccountRemoved:
		m.applyRemoved(ev.Identity)
	case accountclient.AccountChanged:
		m.applyChanged(ctx, ev.Identity)
	}
}

func (m *Model) applyAdded(ctx context.Context, id accountclient.Identity) {
	log := m.log.With("identity", string(id))

	m.mu.RLock()
	_, present := m.records[id]
	m.mu.RUnlock()
	if present {
		// Redelivery, or an account already seen by the initial scan.
		log.Debug("account already cached")
		return
	}

	acc, err := m.client.GetAccount(ctx, id)
	if err != nil {
		log.Warn("cannot load added account", "error", err)
		return
	}
	if acc.SystemAccount {
		return
	}

	m.mu.Lock()
	if _, present := m.records[id]; present {
		m.mu.Unlock()
		return
	}
	row := len(m.order) - 1 // before the draft sentinel
	m.insertLocked(row, recordFromAccount(acc, m.ownUID))
	m.mu.Unlock()

	m.notifyRowsInserted(row)
}

func (m *Model) applyRemoved(id accountclient.Identity) {
	m.mu.Lock()
	if _, present := m.records[id]; !present {
		m.mu.Unlock()
		m.log.Warn("removal for unknown account", "identity", string(id))
		return
	}
	row := m.removeLocked(id)
	m.mu.Unlock()

	m.notifyRowsRemoved(row)
}

func (m *Model) applyChanged(ctx context.Context, id accountclient.Identity) {
	log := m.log.With("identity", string(id))

	m.mu.RLock()
	_, present := m.records[id]
	m.mu.RUnlock()
	if !present {
		log.Debug("change for unknown account")
		return
	}

	acc, err := m.client.GetAccount(ctx, id)
	if err != nil {
		log.Warn("cannot refresh account", "error", err)
		return
	}

	m.mu.Lock()
	row := -1
	if rec := m.records[id]; rec != nil {
		*rec = *recordFromAccount(acc, m.ownUID)
		row = m.rowOfLocked(id)
	}
	m.mu.Unlock()

	if row >= 0 {
		m.notifyDataChanged(row)
	}
}

// SessionChanged merges one session status event. The uid resolves to
// an identity by linear scan; an unmatched uid is dropped silently, as
// the account may have just been removed.
func (m *Model) SessionChanged(uid uint64, active bool) {
	m.mu.Lock()
	row := -1
	for i, id := range m.order {
		rec := m.records[id]
		if rec != nil && rec.UID == uid {
			m.logged[id] = active
			row = i
			break
		}
	}
	m.mu.Unlock()

	if row >= 0 {
		m.notifyDataChanged(row)
	}
}
