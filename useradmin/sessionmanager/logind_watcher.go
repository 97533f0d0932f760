package sessionmanager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	logindName         = "org.freedesktop.login1"
	logindPath         = "/org/freedesktop/login1"
	logindManagerIface = "org.freedesktop.login1.Manager"
	logindSessionIface = "org.freedesktop.login1.Session"
)

// LogindWatcher tracks login sessions through the login manager on the
// system bus. A user is reported Active while at least one of their
// sessions exists; the watcher collapses multiple concurrent sessions
// into a single logged-in status.
type LogindWatcher struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	events  chan Event
	done    chan struct{}

	mu         sync.Mutex
	sessionUID map[dbus.ObjectPath]uint64
	sessions   map[uint64]int
}

// NewLogindWatcher connects to the system bus, subscribes to session
// lifecycle signals and seeds the feed with the currently active users.
func NewLogindWatcher(ctx context.Context) (*LogindWatcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	w, err := NewLogindWatcherWithConn(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

// NewLogindWatcherWithConn wraps an existing bus connection. The
// watcher takes ownership of the connection.
func NewLogindWatcherWithConn(ctx context.Context, conn *dbus.Conn) (*LogindWatcher, error) {
	w := &LogindWatcher{
		conn:       conn,
		signals:    make(chan *dbus.Signal, 64),
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		sessionUID: make(map[dbus.ObjectPath]uint64),
		sessions:   make(map[uint64]int),
	}

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(logindManagerIface), dbus.WithMatchMember("SessionNew")},
		{dbus.WithMatchInterface(logindManagerIface), dbus.WithMatchMember("SessionRemoved")},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			return nil, err
		}
	}
	conn.Signal(w.signals)

	seed, err := w.listSessions(ctx)
	if err != nil {
		return nil, err
	}

	go w.run(seed)
	return w, nil
}

type sessionEntry struct {
	path dbus.ObjectPath
	uid  uint64
}

// listSessions snapshots the sessions that existed before the watcher
// subscribed.
func (w *LogindWatcher) listSessions(ctx context.Context) ([]sessionEntry, error) {
	var listed []struct {
		ID   string
		UID  uint32
		User string
		Seat string
		Path dbus.ObjectPath
	}
	obj := w.conn.Object(logindName, logindPath)
	err := obj.CallWithContext(ctx, logindManagerIface+".ListSessions", 0).Store(&listed)
	if err != nil {
		return nil, err
	}

	entries := make([]sessionEntry, 0, len(listed))
	for _, s := range listed {
		entries = append(entries, sessionEntry{path: s.Path, uid: uint64(s.UID)})
	}
	return entries, nil
}

func (w *LogindWatcher) run(seed []sessionEntry) {
	defer close(w.events)

	for _, s := range seed {
		if ev, changed := w.sessionOpened(s.path, s.uid); changed {
			if !w.emit(ev) {
				return
			}
		}
	}

	for sig := range w.signals {
		var path dbus.ObjectPath
		switch sig.Name {
		case logindManagerIface + ".SessionNew":
			if !storeSessionPath(sig, &path) {
				continue
			}
			uid, err := w.sessionOwner(path)
			if err != nil {
				slog.Debug("cannot resolve session owner", "session", string(path), "error", err)
				continue
			}
			if ev, changed := w.sessionOpened(path, uid); changed {
				if !w.emit(ev) {
					return
				}
			}
		case logindManagerIface + ".SessionRemoved":
			if !storeSessionPath(sig, &path) {
				continue
			}
			if ev, changed := w.sessionClosed(path); changed {
				if !w.emit(ev) {
					return
				}
			}
		}
	}
}

// storeSessionPath extracts the session object path from a SessionNew
// or SessionRemoved signal body (session id, object path).
func storeSessionPath(sig *dbus.Signal, path *dbus.ObjectPath) bool {
	if len(sig.Body) != 2 {
		return false
	}
	p, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok {
		return false
	}
	*path = p
	return true
}

// sessionOwner resolves the owning uid of a session object.
func (w *LogindWatcher) sessionOwner(path dbus.ObjectPath) (uint64, error) {
	obj := w.conn.Object(logindName, path)
	v, err := obj.GetProperty(logindSessionIface + ".User")
	if err != nil {
		return 0, err
	}

	var owner struct {
		UID  uint32
		Path dbus.ObjectPath
	}
	if err := dbus.Store([]interface{}{v.Value()}, &owner); err != nil {
		return 0, err
	}
	return uint64(owner.UID), nil
}

// sessionOpened records a session and reports whether the owner's
// logged-in status flipped.
func (w *LogindWatcher) sessionOpened(path dbus.ObjectPath, uid uint64) (Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, known := w.sessionUID[path]; known {
		return Event{}, false
	}
	w.sessionUID[path] = uid
	w.sessions[uid]++
	return Event{UID: uid, Active: true}, w.sessions[uid] == 1
}

// sessionClosed drops a session and reports whether the owner's last
// session went away.
func (w *LogindWatcher) sessionClosed(path dbus.ObjectPath) (Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	uid, known := w.sessionUID[path]
	if !known {
		return Event{}, false
	}
	delete(w.sessionUID, path)
	w.sessions[uid]--
	if w.sessions[uid] > 0 {
		return Event{}, false
	}
	delete(w.sessions, uid)
	return Event{UID: uid, Active: false}, true
}

func (w *LogindWatcher) emit(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

func (w *LogindWatcher) Events() <-chan Event {
	return w.events
}

func (w *LogindWatcher) Close() error {
	close(w.done)
	w.conn.RemoveSignal(w.signals)
	close(w.signals)
	return w.conn.Close()
}

var _ Watcher = (*LogindWatcher)(nil)
