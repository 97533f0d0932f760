package accountclient

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestAccountFromProps(t *testing.T) {
	props := map[string]dbus.Variant{
		"Uid":            dbus.MakeVariant(uint64(1000)),
		"UserName":       dbus.MakeVariant("jdoe"),
		"RealName":       dbus.MakeVariant("John Doe"),
		"Email":          dbus.MakeVariant("jdoe@example.com"),
		"IconFile":       dbus.MakeVariant("/var/lib/AccountsService/icons/jdoe"),
		"AccountType":    dbus.MakeVariant(int32(1)),
		"AutomaticLogin": dbus.MakeVariant(true),
		"SystemAccount":  dbus.MakeVariant(false),
	}

	acc := accountFromProps("/org/freedesktop/Accounts/User1000", props)

	assert.Equal(t, Identity("/org/freedesktop/Accounts/User1000"), acc.Identity)
	assert.Equal(t, uint64(1000), acc.UID)
	assert.Equal(t, "jdoe", acc.Username)
	assert.Equal(t, "John Doe", acc.RealName)
	assert.Equal(t, "jdoe@example.com", acc.Email)
	assert.Equal(t, AdministratorAccount, acc.AccountType)
	assert.True(t, acc.AutomaticLogin)
	assert.False(t, acc.SystemAccount)
}

func TestAccountFromPropsPartialBag(t *testing.T) {
	props := map[string]dbus.Variant{
		"UserName": dbus.MakeVariant("svc"),
		// A foreign implementation may type Uid as uint32.
		"Uid": dbus.MakeVariant(uint32(999)),
	}

	acc := accountFromProps("/org/freedesktop/Accounts/User999", props)

	assert.Equal(t, "svc", acc.Username)
	assert.Equal(t, uint64(999), acc.UID)
	assert.Equal(t, StandardAccount, acc.AccountType)
	assert.Empty(t, acc.Email)
}

func TestEventFromSignal(t *testing.T) {
	tests := []struct {
		name   string
		signal *dbus.Signal
		want   Event
		ok     bool
	}{
		{
			name: "user added",
			signal: &dbus.Signal{
				Name: "org.freedesktop.Accounts.UserAdded",
				Body: []interface{}{dbus.ObjectPath("/org/freedesktop/Accounts/User1001")},
			},
			want: Event{Kind: AccountAdded, Identity: "/org/freedesktop/Accounts/User1001"},
			ok:   true,
		},
		{
			name: "user deleted",
			signal: &dbus.Signal{
				Name: "org.freedesktop.Accounts.UserDeleted",
				Body: []interface{}{dbus.ObjectPath("/org/freedesktop/Accounts/User1001")},
			},
			want: Event{Kind: AccountRemoved, Identity: "/org/freedesktop/Accounts/User1001"},
			ok:   true,
		},
		{
			name: "per-account change",
			signal: &dbus.Signal{
				Name: "org.freedesktop.Accounts.User.Changed",
				Path: "/org/freedesktop/Accounts/User1000",
			},
			want: Event{Kind: AccountChanged, Identity: "/org/freedesktop/Accounts/User1000"},
			ok:   true,
		},
		{
			name: "unrelated signal",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.NameOwnerChanged",
				Body: []interface{}{"a", "b", "c"},
			},
			ok: false,
		},
		{
			name: "malformed body",
			signal: &dbus.Signal{
				Name: "org.freedesktop.Accounts.UserAdded",
				Body: []interface{}{"not-a-path", 2},
			},
			ok: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := eventFromSignal(tc.signal)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, ev)
			}
		})
	}
}
