package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	propertiesInterface = "org.freedesktop.DBus.Properties"

	// confirmInterval and confirmAttempts bound the wait for the Connected
	// property after Device1.Connect returns.
	confirmInterval = 250 * time.Millisecond
	confirmAttempts = 8

	errInProgress   = "org.bluez.Error.InProgress"
	errAlreadyExist = "org.bluez.Error.AlreadyExists"
	errUnknownObj   = "org.freedesktop.DBus.Error.UnknownObject"
)

// Logger defines the logging interface used by the Adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Adapter is one local BlueZ adapter on a private system bus connection.
type Adapter struct {
	conn   *dbus.Conn
	name   string
	path   dbus.ObjectPath
	logger Logger
}

// Open connects to the system bus and checks that the adapter exists and
// is powered.
func Open(name string) (*Adapter, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect to system bus: %v", ErrAdapterUnavailable, err)
	}

	a := &Adapter{
		conn:   conn,
		name:   name,
		path:   adapterPath(name),
		logger: noopLogger{},
	}

	powered, err := a.property(a.path, adapterInterface, "Powered")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrAdapterUnavailable, name, err)
	}
	if on, _ := powered.Value().(bool); !on {
		conn.Close()
		return nil, fmt.Errorf("%w: %s is powered off", ErrAdapterUnavailable, name)
	}
	return a, nil
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.logger = logger
}

// Name returns the adapter name, e.g. "hci0".
func (a *Adapter) Name() string {
	return a.name
}

// Close closes the bus connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

// Devices returns every device BlueZ knows on this adapter.
func (a *Adapter) Devices(ctx context.Context) ([]Device, error) {
	var objects managedObjects
	root := a.conn.Object(busName, "/")
	if err := root.CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("list managed objects: %w", err)
	}
	return devicesFromObjects(a.name, objects), nil
}

// Discover runs discovery for d or until ctx is done, then returns the
// devices that are in range and not paired.
func (a *Adapter) Discover(ctx context.Context, d time.Duration) ([]Device, error) {
	obj := a.conn.Object(busName, a.path)
	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("auto")}
	if err := obj.CallWithContext(ctx, adapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		a.logger.Debug("discovery filter rejected", "adapter", a.name, "error", err)
	}

	if err := obj.CallWithContext(ctx, adapterInterface+".StartDiscovery", 0).Err; err != nil {
		if !isDBusError(err, errInProgress) {
			return nil, fmt.Errorf("start discovery: %w", err)
		}
		a.logger.Debug("discovery already running", "adapter", a.name)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	// StopDiscovery must run even after ctx is cancelled.
	if err := obj.Call(adapterInterface+".StopDiscovery", 0).Err; err != nil {
		a.logger.Debug("stop discovery failed", "adapter", a.name, "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := a.Devices(ctx)
	if err != nil {
		return nil, err
	}
	found := make([]Device, 0, len(all))
	for _, dev := range all {
		if !dev.Paired {
			found = append(found, dev)
		}
	}
	return found, nil
}

// Connect pairs and trusts the device if needed, connects it and waits for
// BlueZ to confirm the connection.
func (a *Adapter) Connect(ctx context.Context, address string) error {
	path, err := a.device(address)
	if err != nil {
		return err
	}
	obj := a.conn.Object(busName, path)

	paired, err := a.boolProperty(path, "Paired")
	if err != nil {
		return fmt.Errorf("read paired state of %s: %w", address, err)
	}
	if !paired {
		if err := obj.CallWithContext(ctx, deviceInterface+".Pair", 0).Err; err != nil && !isDBusError(err, errAlreadyExist) {
			return fmt.Errorf("pair %s: %w", address, err)
		}
		a.logger.Info("device paired", "adapter", a.name, "address", address)
	}
	if err := obj.CallWithContext(ctx, propertiesInterface+".Set", 0, deviceInterface, "Trusted", dbus.MakeVariant(true)).Err; err != nil {
		a.logger.Warn("could not trust device", "address", address, "error", err)
	}

	if err := obj.CallWithContext(ctx, deviceInterface+".Connect", 0).Err; err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}

	for range confirmAttempts {
		if connected, err := a.boolProperty(path, "Connected"); err == nil && connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(confirmInterval):
		}
	}
	return fmt.Errorf("%w: %s", ErrNotConfirmed, address)
}

// Disconnect disconnects every profile of the device.
func (a *Adapter) Disconnect(ctx context.Context, address string) error {
	path, err := a.device(address)
	if err != nil {
		return err
	}
	if err := a.conn.Object(busName, path).CallWithContext(ctx, deviceInterface+".Disconnect", 0).Err; err != nil {
		return fmt.Errorf("disconnect %s: %w", address, err)
	}
	return nil
}

// Remove unpairs the device and deletes it from BlueZ.
func (a *Adapter) Remove(ctx context.Context, address string) error {
	path, err := a.device(address)
	if err != nil {
		return err
	}
	if err := a.conn.Object(busName, a.path).CallWithContext(ctx, adapterInterface+".RemoveDevice", 0, path).Err; err != nil {
		return fmt.Errorf("remove %s: %w", address, err)
	}
	return nil
}

// device validates address and checks that BlueZ has an object for it.
func (a *Adapter) device(address string) (dbus.ObjectPath, error) {
	if err := ValidateAddress(address); err != nil {
		return "", err
	}
	path := devicePath(a.name, address)
	if _, err := a.property(path, deviceInterface, "Address"); err != nil {
		if isDBusError(err, errUnknownObj) {
			return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
		}
		return "", fmt.Errorf("look up %s: %w", address, err)
	}
	return path, nil
}

func (a *Adapter) property(path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	return a.conn.Object(busName, path).GetProperty(iface + "." + name)
}

func (a *Adapter) boolProperty(path dbus.ObjectPath, name string) (bool, error) {
	v, err := a.property(path, deviceInterface, name)
	if err != nil {
		return false, err
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s has unexpected type %T", name, v.Value())
	}
	return b, nil
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == name
	}
	return strings.Contains(err.Error(), name)
}
