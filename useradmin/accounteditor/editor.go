package accounteditor

import (
	"context"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/useradminops/useradmin/useradmin/accountmodel"
)

// Input is one candidate set of field edits, typically the current
// contents of an account form.
type Input struct {
	Username       string
	RealName       string
	Email          string
	Administrator  bool
	AutomaticLogin bool
}

// Editor stages validated, changed field values against one model row
// until an explicit Save flushes them. Reviewing is purely local and
// idempotent: the same input always produces the same staged set and
// never touches the remote service.
type Editor struct {
	model *accountmodel.Model
	row   int

	staged map[accountmodel.Field]interface{}
	issues map[accountmodel.Field]error
	input  Input

	lookupUser func(username string) bool
}

type Option func(*Editor)

// WithUserLookup replaces the duplicate-username check. The default
// consults the model's cached login names; hosts usually wire a passwd
// database lookup instead.
func WithUserLookup(fn func(username string) bool) Option {
	return func(e *Editor) {
		e.lookupUser = fn
	}
}

func New(model *accountmodel.Model, opts ...Option) *Editor {
	e := &Editor{
		model:  model,
		row:    -1,
		staged: make(map[accountmodel.Field]interface{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lookupUser == nil {
		e.lookupUser = e.modelLookup
	}
	return e
}

func (e *Editor) modelLookup(username string) bool {
	for _, name := range e.model.Usernames() {
		if name == username {
			return true
		}
	}
	return false
}

// SetRow points the editor at a different row, dropping anything
// staged for the previous one. Re-selecting the current row is a
// no-op.
func (e *Editor) SetRow(row int) {
	if row == e.row {
		return
	}
	e.row = row
	e.staged = make(map[accountmodel.Field]interface{})
	e.issues = nil
	e.input = Input{}
}

func (e *Editor) Row() int {
	return e.row
}

func (e *Editor) committedString(field accountmodel.Field) string {
	s, _ := e.model.Data(e.row, field).(string)
	return s
}

func (e *Editor) committedBool(field accountmodel.Field) bool {
	b, _ := e.model.Data(e.row, field).(bool)
	return b
}

// Review recomputes the staged set from the candidate input: fields
// that differ from the committed values and pass validation are
// staged, the rest are dropped. Diagnostics land in Issues. An invalid
// email is staged anyway; only name and username problems block
// staging. Returns whether anything is staged.
func (e *Editor) Review(input Input) bool {
	staged := make(map[accountmodel.Field]interface{})
	issues := make(map[accountmodel.Field]error)

	name := CleanName(input.RealName)
	if name != e.committedString(accountmodel.FieldRealName) {
		if err := ValidateName(name); err != nil {
			issues[accountmodel.FieldRealName] = err
		} else {
			staged[accountmodel.FieldRealName] = name
		}
	}

	username := CleanUsername(input.Username)
	if username != e.committedString(accountmodel.FieldUsername) {
		if err := ValidateUsername(username, e.lookupUser); err != nil {
			issues[accountmodel.FieldUsername] = err
		} else {
			staged[accountmodel.FieldUsername] = username
		}
	}

	email := CleanEmail(input.Email)
	if email != e.committedString(accountmodel.FieldEmail) && email != "" {
		if err := ValidateEmail(email); err != nil {
			issues[accountmodel.FieldEmail] = err
		}
		staged[accountmodel.FieldEmail] = email
	}

	if input.Administrator != e.committedBool(accountmodel.FieldAdministrator) {
		staged[accountmodel.FieldAdministrator] = input.Administrator
	}
	if input.AutomaticLogin != e.committedBool(accountmodel.FieldAutomaticLogin) {
		staged[accountmodel.FieldAutomaticLogin] = input.AutomaticLogin
	}

	// Password and avatar staging is sticky across reviews.
	if v, ok := e.staged[accountmodel.FieldPassword]; ok {
		staged[accountmodel.FieldPassword] = v
	}
	if v, ok := e.staged[accountmodel.FieldFace]; ok {
		staged[accountmodel.FieldFace] = v
	}

	e.staged = staged
	e.issues = issues
	e.input = Input{
		Username:       username,
		RealName:       name,
		Email:          email,
		Administrator:  input.Administrator,
		AutomaticLogin: input.AutomaticLogin,
	}
	return len(staged) > 0
}

// Issue returns the diagnostic recorded for a field by the last
// Review, or nil.
func (e *Editor) Issue(field accountmodel.Field) error {
	return e.issues[field]
}

// Staged returns a copy of the staged set.
func (e *Editor) Staged() map[accountmodel.Field]interface{} {
	out := make(map[accountmodel.Field]interface{}, len(e.staged))
	for f, v := range e.staged {
		out[f] = v
	}
	return out
}

// StagePassword records an already-crypted credential for the next
// Save. The editor never sees the cleartext.
func (e *Editor) StagePassword(crypted, hint string) {
	e.staged[accountmodel.FieldPassword] = accountmodel.Credential{Crypted: crypted, Hint: hint}
}

// StageFace records the path of an avatar file an external collaborator
// has already placed.
func (e *Editor) StageFace(path string) {
	e.staged[accountmodel.FieldFace] = path
}

// ClearFace stages the removal of the custom avatar.
func (e *Editor) ClearFace() {
	e.staged[accountmodel.FieldFace] = ""
}

// saveOrder fixes the flush sequence so save behavior is deterministic.
var saveOrder = [...]accountmodel.Field{
	accountmodel.FieldUsername,
	accountmodel.FieldRealName,
	accountmodel.FieldEmail,
	accountmodel.FieldAdministrator,
	accountmodel.FieldAutomaticLogin,
	accountmodel.FieldPassword,
	accountmodel.FieldFace,
}

// Save flushes through the model. For a real account only the staged
// fields are written, each as its own remote call; fields the service
// rejects are collected and returned, the rest stay committed. For the
// draft row the whole reviewed field set is pushed so the creation
// protocol sees all five required fields. Nothing happens when the
// staged set is empty.
func (e *Editor) Save(ctx context.Context) ([]accountmodel.Field, error) {
	if len(e.staged) == 0 {
		return nil, nil
	}

	values := e.Staged()
	if e.row == e.model.DraftRow() {
		values = map[accountmodel.Field]interface{}{
			accountmodel.FieldUsername:       e.input.Username,
			accountmodel.FieldRealName:       e.input.RealName,
			accountmodel.FieldEmail:          e.input.Email,
			accountmodel.FieldAdministrator:  e.input.Administrator,
			accountmodel.FieldAutomaticLogin: e.input.AutomaticLogin,
		}
	}

	var failed []accountmodel.Field
	var errs *multierror.Error
	for _, field := range saveOrder {
		value, ok := values[field]
		if !ok {
			continue
		}
		if err := e.model.SetData(ctx, e.row, field, value); err != nil {
			failed = append(failed, field)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	e.staged = make(map[accountmodel.Field]interface{})
	return failed, errs.ErrorOrNil()
}
