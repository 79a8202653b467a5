// Package bluez drives a local Bluetooth adapter through the BlueZ D-Bus API.
//
// It covers what a site satellite needs: listing known devices, running a
// bounded discovery, and connecting, disconnecting and removing devices.
// Connecting an unpaired device pairs and trusts it first.
//
// Object paths follow BlueZ: the adapter is /org/bluez/{name} and each
// device is /org/bluez/{name}/dev_AA_BB_CC_DD_EE_FF.
//
// Usage:
//
//	adapter, err := bluez.Open("hci0")
//	if err != nil {
//	    return err
//	}
//	defer adapter.Close()
//
//	found, err := adapter.Discover(ctx, 25*time.Second)
package bluez
