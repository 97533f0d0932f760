package accountmodel

import "github.com/useradminops/useradmin/useradmin/accountclient"

// Record is the value mirror of one remote account, refreshed wholesale
// whenever the service reports a change.
type Record struct {
	Identity       accountclient.Identity
	UID            uint64
	Username       string
	RealName       string
	Email          string
	Administrator  bool
	AutomaticLogin bool
	FaceFile       string

	// Created is true once the account exists remotely; it is false
	// only for the draft row, which has no Record at all.
	Created bool

	// Own marks the account matching the process's effective user. It
	// is pinned to row 0 and never deletable.
	Own bool
}

func recordFromAccount(acc accountclient.Account, ownUID uint64) *Record {
	return &Record{
		Identity:       acc.Identity,
		UID:            acc.UID,
		Username:       acc.Username,
		RealName:       acc.RealName,
		Email:          acc.Email,
		Administrator:  acc.AccountType == accountclient.AdministratorAccount,
		AutomaticLogin: acc.AutomaticLogin,
		FaceFile:       acc.IconFile,
		Created:        true,
		Own:            acc.UID == ownUID,
	}
}

// FriendlyName is the display name, falling back to the login name for
// accounts without a real name.
func (r *Record) FriendlyName() string {
	if r.RealName != "" {
		return r.RealName
	}
	return r.Username
}
