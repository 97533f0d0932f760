package sessionmanager

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func newTestWatcher() *LogindWatcher {
	return &LogindWatcher{
		sessionUID: make(map[dbus.ObjectPath]uint64),
		sessions:   make(map[uint64]int),
	}
}

func TestSessionCountCollapsesToOneStatus(t *testing.T) {
	w := newTestWatcher()

	ev, changed := w.sessionOpened("/org/freedesktop/login1/session/_1", 1000)
	assert.True(t, changed)
	assert.Equal(t, Event{UID: 1000, Active: true}, ev)

	// A second session for the same user does not flip status.
	_, changed = w.sessionOpened("/org/freedesktop/login1/session/_2", 1000)
	assert.False(t, changed)

	_, changed = w.sessionClosed("/org/freedesktop/login1/session/_1")
	assert.False(t, changed)

	ev, changed = w.sessionClosed("/org/freedesktop/login1/session/_2")
	assert.True(t, changed)
	assert.Equal(t, Event{UID: 1000, Active: false}, ev)
}

func TestSessionOpenedIsIdempotentPerPath(t *testing.T) {
	w := newTestWatcher()

	_, changed := w.sessionOpened("/org/freedesktop/login1/session/_1", 1000)
	assert.True(t, changed)

	// Redelivery of the same session must not double-count.
	_, changed = w.sessionOpened("/org/freedesktop/login1/session/_1", 1000)
	assert.False(t, changed)

	_, changed = w.sessionClosed("/org/freedesktop/login1/session/_1")
	assert.True(t, changed)
}

func TestSessionClosedUnknownPathIsDropped(t *testing.T) {
	w := newTestWatcher()

	_, changed := w.sessionClosed("/org/freedesktop/login1/session/_9")
	assert.False(t, changed)
}

func TestStoreSessionPath(t *testing.T) {
	var path dbus.ObjectPath

	ok := storeSessionPath(&dbus.Signal{
		Name: "org.freedesktop.login1.Manager.SessionNew",
		Body: []interface{}{"_31", dbus.ObjectPath("/org/freedesktop/login1/session/_31")},
	}, &path)
	assert.True(t, ok)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/login1/session/_31"), path)

	ok = storeSessionPath(&dbus.Signal{Body: []interface{}{"_31"}}, &path)
	assert.False(t, ok)
}
