package accountmodel

// Field tags the per-row attributes exposed through the row contract.
// The remote object's dynamic role dispatch is replaced by this
// explicit enumeration with a typed accessor and mutator per tag.
type Field int

const (
	FieldUsername Field = iota
	FieldRealName
	FieldEmail
	FieldAdministrator
	FieldAutomaticLogin
	FieldPassword
	FieldFace
	FieldFriendlyName
	FieldLogged
	FieldCreated
)

func (f Field) String() string {
	switch f {
	case FieldUsername:
		return "username"
	case FieldRealName:
		return "realname"
	case FieldEmail:
		return "email"
	case FieldAdministrator:
		return "administrator"
	case FieldAutomaticLogin:
		return "autologin"
	case FieldPassword:
		return "password"
	case FieldFace:
		return "face"
	case FieldFriendlyName:
		return "friendlyname"
	case FieldLogged:
		return "logged"
	case FieldCreated:
		return "created"
	}
	return "unknown"
}

// draftFields is the minimum staged set that triggers account creation.
var draftFields = [...]Field{
	FieldUsername,
	FieldRealName,
	FieldEmail,
	FieldAdministrator,
	FieldAutomaticLogin,
}

// Credential is the opaque payload forwarded verbatim on a password
// change. The model keeps no copy after a successful call.
type Credential struct {
	Crypted string
	Hint    string
}

func stringValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func boolValue(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
