package launch

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	systemdService = "org.freedesktop.systemd1"
	systemdPath    = "/org/freedesktop/systemd1"
	systemdManager = "org.freedesktop.systemd1.Manager"
)

type unitProperty struct {
	Name  string
	Value dbus.Variant
}

type auxUnit struct {
	Name  string
	Props []unitProperty
}

// SystemdScoper creates transient scopes through the user's systemd instance
type SystemdScoper struct {
	conn *dbus.Conn
}

// NewSystemdScoper connects to the session bus
func NewSystemdScoper() (*SystemdScoper, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &SystemdScoper{conn: conn}, nil
}

// MoveToScope starts a transient scope unit holding pid
func (s *SystemdScoper) MoveToScope(ctx context.Context, appID string, pid int) error {
	unit := ScopeName(appID, pid)
	props := []unitProperty{
		{Name: "PIDs", Value: dbus.MakeVariant([]uint32{uint32(pid)})},
		{Name: "CollectMode", Value: dbus.MakeVariant("inactive-or-failed")},
	}

	var job dbus.ObjectPath
	obj := s.conn.Object(systemdService, dbus.ObjectPath(systemdPath))
	err := obj.CallWithContext(ctx, systemdManager+".StartTransientUnit", 0, unit, "fail", props, []auxUnit{}).Store(&job)
	if err != nil {
		return fmt.Errorf("failed to start scope %s: %w", unit, err)
	}
	return nil
}

// Close disconnects from the bus
func (s *SystemdScoper) Close() error {
	return s.conn.Close()
}

// ScopeName returns the unit name for an app's scope, escaping characters
// systemd does not allow in unit names
func ScopeName(appID string, pid int) string {
	if appID == "" {
		appID = "unknown"
	}
	var b strings.Builder
	for _, r := range appID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("app-%s-%d.scope", b.String(), pid)
}
