package bluez

import (
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

// BlueZ D-Bus names.
const (
	busName           = "org.bluez"
	adapterInterface  = "org.bluez.Adapter1"
	deviceInterface   = "org.bluez.Device1"
	objectManager     = "org.freedesktop.DBus.ObjectManager"
	objectPathPrefix  = "/org/bluez/"
	devicePathElement = "dev_"
)

// Device is one device known to the adapter.
type Device struct {
	Address   string
	Name      string
	Paired    bool
	Connected bool
}

// managedObjects is the GetManagedObjects reply.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func adapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath(objectPathPrefix + adapter)
}

// devicePath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func devicePath(adapter, address string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s%s/%s%s",
		objectPathPrefix, adapter, devicePathElement, strings.ReplaceAll(strings.ToUpper(address), ":", "_")))
}

// addressFromPath is the inverse of devicePath. It returns "" for paths
// that are not device objects of adapter.
func addressFromPath(adapter string, path dbus.ObjectPath) string {
	rest, ok := strings.CutPrefix(string(path), objectPathPrefix+adapter+"/"+devicePathElement)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return strings.ReplaceAll(rest, "_", ":")
}

// devicesFromObjects extracts the Device1 objects of one adapter, sorted by
// address. Devices without a name use their address as name.
func devicesFromObjects(adapter string, objects managedObjects) []Device {
	var out []Device
	for path, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		addr := addressFromPath(adapter, path)
		if addr == "" {
			continue
		}
		if a, ok := variantValue[string](props, "Address"); ok && a != "" {
			addr = a
		}

		name, _ := variantValue[string](props, "Alias")
		if name == "" {
			name, _ = variantValue[string](props, "Name")
		}
		if name == "" {
			name = addr
		}
		paired, _ := variantValue[bool](props, "Paired")
		connected, _ := variantValue[bool](props, "Connected")

		out = append(out, Device{
			Address:   addr,
			Name:      name,
			Paired:    paired,
			Connected: connected,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func variantValue[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, false
	}
	return val, true
}

// ValidateAddress checks the XX:XX:XX:XX:XX:XX form of a device address.
func ValidateAddress(address string) error {
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for _, part := range parts {
		if len(part) != 2 {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		for _, c := range part {
			if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')) {
				return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
			}
		}
	}
	return nil
}
