// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/Thermoquad/gaiastat/pkg/link"
)

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"

	resolvePollInterval = 200 * time.Millisecond
)

// Classes that never run over RFCOMM. Keeping them out of the records stops
// the channel heuristic from picking an audio profile.
var l2capOnlyClasses = []uuid.UUID{
	link.BluetoothUUID(0x110A), // A2DP source
	link.BluetoothUUID(0x110B), // A2DP sink
	link.BluetoothUUID(0x110C), // AVRCP target
	link.BluetoothUUID(0x110D), // A2DP
	link.BluetoothUUID(0x110E), // AVRCP
	link.BluetoothUUID(0x110F), // AVRCP controller
	link.BluetoothUUID(0x1200), // PnP information
}

var pathCounter uint64

// Host talks to bluetoothd over the system bus
type Host struct {
	opts Options
	bus  *dbus.Conn

	mu       sync.Mutex
	closed   bool
	paths    map[string]dbus.ObjectPath // address -> Device1 path
	classes  map[string][]uuid.UUID     // address -> Device1.UUIDs
	profiles map[uuid.UUID]*profile
	cleanup  []func()
}

// New connects to the system bus
func New(opts Options) (*Host, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	h := &Host{
		opts:     opts,
		bus:      bus,
		paths:    make(map[string]dbus.ObjectPath),
		classes:  make(map[string][]uuid.UUID),
		profiles: make(map[uuid.UUID]*profile),
	}
	h.cleanup = append(h.cleanup, func() { h.bus.Close() })
	return h, nil
}

// Close unregisters profiles and closes the bus. Safe to call more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cleanup := h.cleanup
	h.cleanup = nil
	h.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	return nil
}

func (h *Host) managedObjects(ctx context.Context) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := h.bus.Object(bluezService, dbus.ObjectPath("/"))
	call := obj.CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func (h *Host) onAdapter(path dbus.ObjectPath) bool {
	if h.opts.Adapter == "" {
		return true
	}
	return strings.HasPrefix(string(path), "/org/bluez/"+h.opts.Adapter+"/")
}

// PairedDevices lists Device1 objects with Paired set, sorted by address
func (h *Host) PairedDevices(ctx context.Context) ([]link.Device, error) {
	objs, err := h.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var devices []link.Device
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok || !h.onAdapter(path) {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}

		dev := deviceFromProps(path, props)
		h.paths[dev.Address] = path
		h.classes[dev.Address] = parseUUIDs(stringSlice(props["UUIDs"]))
		devices = append(devices, dev)
	}

	slices.SortFunc(devices, func(a, b link.Device) int {
		return strings.Compare(a.Address, b.Address)
	})
	return devices, nil
}

func deviceFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) link.Device {
	address, _ := props["Address"].Value().(string)
	if address == "" {
		address = AddressFromPath(string(path))
	}
	name, _ := props["Alias"].Value().(string)
	if name == "" {
		name, _ = props["Name"].Value().(string)
	}
	connected, _ := props["Connected"].Value().(bool)
	return link.Device{Address: address, Name: name, Connected: connected}
}

func stringSlice(v dbus.Variant) []string {
	s, _ := v.Value().([]string)
	return s
}

// CachedServices builds one record per advertised service class
func (h *Host) CachedServices(dev link.Device) []link.ServiceRecord {
	h.mu.Lock()
	classes := h.classes[dev.Address]
	h.mu.Unlock()

	if h.opts.Channel != 0 {
		if len(classes) == 0 {
			classes = []uuid.UUID{link.ClassSerialPort}
		}
		return []link.ServiceRecord{{Channel: h.opts.Channel, Classes: classes}}
	}

	var records []link.ServiceRecord
	for _, class := range classes {
		if slices.Contains(l2capOnlyClasses, class) {
			continue
		}
		records = append(records, link.ServiceRecord{Channel: ProfileChannel, Classes: []uuid.UUID{class}})
	}
	return records
}

// QueryServices connects the device if needed and waits for BlueZ to
// finish service discovery, then reloads the advertised classes
func (h *Host) QueryServices(ctx context.Context, dev link.Device) error {
	path, err := h.devicePath(ctx, dev)
	if err != nil {
		return err
	}
	obj := h.bus.Object(bluezService, path)

	resolved, err := h.boolProperty(ctx, obj, "ServicesResolved")
	if err != nil {
		return err
	}
	if !resolved {
		call := obj.CallWithContext(ctx, deviceIface+".Connect", 0)
		if call.Err != nil && !isDBusError(call.Err, "org.bluez.Error.AlreadyConnected") {
			return fmt.Errorf("bluez: connect %s: %w", dev.Address, call.Err)
		}

		ticker := time.NewTicker(resolvePollInterval)
		defer ticker.Stop()
		for !resolved {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			if resolved, err = h.boolProperty(ctx, obj, "ServicesResolved"); err != nil {
				return err
			}
		}
	}

	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, "UUIDs").Store(&v); err != nil {
		return fmt.Errorf("bluez: read UUIDs: %w", err)
	}
	h.mu.Lock()
	h.classes[dev.Address] = parseUUIDs(stringSlice(v))
	h.mu.Unlock()
	return nil
}

func (h *Host) boolProperty(ctx context.Context, obj dbus.BusObject, name string) (bool, error) {
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, name).Store(&v); err != nil {
		return false, fmt.Errorf("bluez: read %s: %w", name, err)
	}
	b, _ := v.Value().(bool)
	return b, nil
}

func (h *Host) devicePath(ctx context.Context, dev link.Device) (dbus.ObjectPath, error) {
	h.mu.Lock()
	path, ok := h.paths[dev.Address]
	h.mu.Unlock()
	if ok {
		return path, nil
	}
	if _, err := h.PairedDevices(ctx); err != nil {
		return "", err
	}
	h.mu.Lock()
	path, ok = h.paths[dev.Address]
	h.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("bluez: device %s is not paired", dev.Address)
	}
	return path, nil
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
	return false
}

// Open connects the RFCOMM channel. ProfileChannel goes through Profile1,
// anything else is dialed directly.
func (h *Host) Open(ctx context.Context, dev link.Device, ch link.Channel) (link.Conn, error) {
	if ch.ID != ProfileChannel {
		return dialRFCOMM(ctx, dev.Address, ch.ID)
	}

	path, err := h.devicePath(ctx, dev)
	if err != nil {
		return nil, err
	}
	prof, err := h.ensureProfile(ch.Class)
	if err != nil {
		return nil, err
	}

	waiter := prof.arm()
	defer prof.disarm(waiter)

	obj := h.bus.Object(bluezService, path)
	class := strings.ToLower(ch.Class.String())
	call := obj.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, class)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: ConnectProfile %s: %w", class, call.Err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case fd := <-waiter:
		return link.NewConn(os.NewFile(uintptr(fd), "rfcomm:"+dev.Address)), nil
	}
}

// ensureProfile registers a client Profile1 for class once per Host
func (h *Host) ensureProfile(class uuid.UUID) (*profile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("bluez: host closed")
	}
	if p, ok := h.profiles[class]; ok {
		return p, nil
	}

	p := &profile{}
	id := atomic.AddUint64(&pathCounter, 1)
	path := dbus.ObjectPath("/org/thermoquad/gaiastat/profile" + strconv.FormatUint(id, 10))
	if err := h.bus.Export(p, path, profileIface); err != nil {
		return nil, fmt.Errorf("bluez: export profile: %w", err)
	}

	pm := h.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	opts := map[string]dbus.Variant{
		"Role":                  dbus.MakeVariant("client"),
		"AutoConnect":           dbus.MakeVariant(false),
		"RequireAuthentication": dbus.MakeVariant(false),
	}
	class16 := strings.ToLower(class.String())
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, class16, opts); call.Err != nil {
		_ = h.bus.Export(nil, path, profileIface)
		return nil, fmt.Errorf("bluez: RegisterProfile %s: %w", class16, call.Err)
	}

	h.cleanup = append(h.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err
		_ = h.bus.Export(nil, path, profileIface)
		p.release()
	})
	h.profiles[class] = p
	return p, nil
}

// profile implements org.bluez.Profile1 and forwards the socket of the next
// NewConnection to the armed waiter
type profile struct {
	mu     sync.Mutex
	waiter chan int
}

func (p *profile) arm() chan int {
	w := make(chan int, 1)
	p.mu.Lock()
	p.waiter = w
	p.mu.Unlock()
	return w
}

// disarm drops w and closes any socket that arrived after the caller gave up
func (p *profile) disarm(w chan int) {
	p.mu.Lock()
	if p.waiter == w {
		p.waiter = nil
	}
	p.mu.Unlock()
	select {
	case fd := <-w:
		_ = unix.Close(fd)
	default:
	}
}

func (p *profile) release() {
	p.mu.Lock()
	p.waiter = nil
	p.mu.Unlock()
}

func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	w := p.waiter
	p.waiter = nil
	p.mu.Unlock()

	if w == nil {
		_ = unix.Close(int(fd))
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no pending connect"}}
	}
	w <- int(fd)
	return nil
}

func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

func (p *profile) Release() *dbus.Error { return nil }

// dialRFCOMM connects an RFCOMM socket to address:channel. On cancel the
// socket is closed once the pending connect returns.
func dialRFCOMM(ctx context.Context, address string, channel uint8) (link.Conn, error) {
	bdaddr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("bluez: rfcomm socket: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: bdaddr, Channel: channel})
	}()

	select {
	case <-ctx.Done():
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		go func() {
			<-done
			_ = unix.Close(fd)
		}()
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("bluez: rfcomm connect %s channel %d: %w", address, channel, err)
		}
	}

	return link.NewConn(os.NewFile(uintptr(fd), "rfcomm:"+address)), nil
}
