package site

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
)

// DefaultHereToken is the room slot value meaning "the requesting site".
const DefaultHereToken = "hier"

// persistTimeout bounds a single snapshot write.
const persistTimeout = 2 * time.Second

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry is the cached state of one site.
//
// roomName is written with both Store.mu and entry.mu held, so either lock
// is enough to read it. Everything else is guarded by entry.mu.
type entry struct {
	mu        sync.Mutex
	siteID    string
	roomName  *string
	available []Device
	paired    map[string]struct{}
	connected map[string]struct{}
	synonyms  naming.Table
	resolver  *naming.Resolver
	updatedAt time.Time
	version   uint64

	persistMu sync.Mutex
	persisted uint64
}

// Store is the per-site device state cache.
//
// The store lock guards the site map and the room index; each site has its
// own lock, so operations on different sites never wait on each other's
// device data. Snapshot writes to the optional Repository happen outside the
// site lock and are ordered per site.
//
// All public methods are thread-safe.
type Store struct {
	mu        sync.RWMutex
	sites     map[string]*entry
	rooms     map[string]string // room name -> owning site
	global    *naming.Resolver
	hereToken string

	repo     Repository
	logger   Logger
	onChange func(State)
}

// NewStore creates an empty store. The global resolver supplies synonyms
// for every site; per-site tables from site info are layered on top.
func NewStore(global *naming.Resolver) *Store {
	return &Store{
		sites:     make(map[string]*entry),
		rooms:     make(map[string]string),
		global:    global,
		hereToken: DefaultHereToken,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRepository enables snapshot persistence after every mutation.
func (s *Store) SetRepository(repo Repository) {
	s.repo = repo
}

// SetHereToken overrides the room slot value that means "this site".
func (s *Store) SetHereToken(token string) {
	if token != "" {
		s.hereToken = token
	}
}

// SetOnChange registers a callback invoked with a snapshot after each
// mutation. It is called without any store lock held.
func (s *Store) SetOnChange(fn func(State)) {
	s.onChange = fn
}

// LoadFromRepository replaces the cache with the snapshots stored in the
// repository. This should be called on startup, before any bus traffic.
func (s *Store) LoadFromRepository(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	states, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading site snapshots: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sites = make(map[string]*entry, len(states))
	s.rooms = make(map[string]string)
	sort.Slice(states, func(i, j int) bool { return states[i].SiteID < states[j].SiteID })

	for _, st := range states {
		e := s.newEntry(st.SiteID)
		s.sites[st.SiteID] = e
		e.available = normalizeDevices(st.Available)
		e.paired = toSet(st.Paired)
		e.connected = toSet(st.Connected)
		if st.Synonyms != nil {
			e.synonyms = st.Synonyms
			e.resolver = s.global.Merge(st.Synonyms)
		}
		e.updatedAt = st.UpdatedAt
		e.clamp()
		if st.RoomName != nil {
			s.claimRoomLocked(e, *st.RoomName)
		}
	}

	s.logger.Info("site cache loaded", "count", len(states))
	return nil
}

// UpsertSite merges a patch into the site's state, creating the site on
// first write. Paired and Connected are clamped so the subset invariants
// hold; the Paired and Connected flags of patch devices are ignored.
func (s *Store) UpsertSite(siteID string, p Patch) {
	s.mu.Lock()
	e := s.entryLocked(siteID)
	e.mu.Lock()
	if p.RoomName != nil {
		s.claimRoomLocked(e, *p.RoomName)
	} else if p.ClearRoom {
		s.releaseRoomLocked(e)
	}
	s.mu.Unlock()

	if p.Available != nil {
		e.available = normalizeDevices(p.Available)
	}
	if p.Paired != nil {
		e.paired = toSet(p.Paired)
	}
	if p.Connected != nil {
		e.connected = toSet(p.Connected)
	}
	if p.Synonyms != nil {
		e.synonyms = p.Synonyms
		e.resolver = s.global.Merge(p.Synonyms)
		for _, c := range p.Synonyms.Conflicts() {
			s.logger.Warn("ambiguous synonym in site info, first match wins",
				"site_id", siteID, "synonym", c.Spoken, "raw_names", c.Raws)
		}
	}
	if dropped := e.clamp(); dropped > 0 {
		s.logger.Debug("dropped addresses outside available devices", "site_id", siteID, "count", dropped)
	}

	snap, version := e.touch()
	e.mu.Unlock()

	s.commit(e, snap, version)
}

// ResolveSite maps an optional room slot to a site ID.
//
// A nil room, the here token, or the requesting site's own room name return
// siteID. Any other room is looked up in the global room index; an unknown
// room yields a *RoomNotConfiguredError.
func (s *Store) ResolveSite(siteID string, room *string) (string, error) {
	if room == nil {
		return siteID, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if *room == s.hereToken {
		return siteID, nil
	}
	if e, ok := s.sites[siteID]; ok && e.roomName != nil && *e.roomName == *room {
		return siteID, nil
	}
	if owner, ok := s.rooms[*room]; ok {
		return owner, nil
	}
	return "", &RoomNotConfiguredError{Room: *room}
}

// RoomOwner returns the site that owns a room name.
func (s *Store) RoomOwner(room string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.rooms[room]
	return owner, ok
}

// Has reports whether the site has reported any state.
func (s *Store) Has(siteID string) bool {
	_, ok := s.get(siteID)
	return ok
}

// Site returns a snapshot of one site.
func (s *Store) Site(siteID string) (State, bool) {
	e, ok := s.get(siteID)
	if !ok {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), true
}

// Sites returns snapshots of all sites ordered by site ID.
func (s *Store) Sites() []State {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sites))
	for _, e := range s.sites {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]State, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// Resolver returns the name resolver used for a site.
func (s *Store) Resolver(siteID string) *naming.Resolver {
	e, ok := s.get(siteID)
	if !ok {
		return s.global
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver
}

// DiscoverableDevices returns the available devices that are not paired,
// in availability order.
func (s *Store) DiscoverableDevices(siteID string) []Device {
	return s.filter(siteID, func(e *entry, d Device) bool {
		_, paired := e.paired[d.Address]
		return !paired
	})
}

// PairedDevices returns the paired devices in availability order.
func (s *Store) PairedDevices(siteID string) []Device {
	return s.filter(siteID, func(e *entry, d Device) bool {
		_, paired := e.paired[d.Address]
		return paired
	})
}

// ConnectedDevices returns the connected devices in availability order.
func (s *Store) ConnectedDevices(siteID string) []Device {
	return s.filter(siteID, func(e *entry, d Device) bool {
		_, connected := e.connected[d.Address]
		return connected
	})
}

// AddressFromName resolves a spoken or raw device name to an address.
// When several devices share the resolved raw name the first available one
// wins.
func (s *Store) AddressFromName(siteID, name string) (string, error) {
	e, ok := s.get(siteID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	raw := e.resolver.ResolveToRaw(name)
	for _, d := range e.available {
		if d.Name == raw {
			return d.Address, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDevice, name)
}

// NameFromAddress returns the spoken name of an available device.
func (s *Store) NameFromAddress(siteID, address string) (string, bool) {
	e, ok := s.get(siteID)
	if !ok {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range e.available {
		if d.Address == address {
			return e.resolver.ResolveToSpoken(d.Name), true
		}
	}
	return "", false
}

// SpokenNames maps devices to their spoken names using the site's resolver.
func (s *Store) SpokenNames(siteID string, devices []Device) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return s.Resolver(siteID).ListSpoken(names)
}

// SetDiscoverable applies a scan result: the unpaired part of the available
// devices is replaced wholesale by devices, paired devices are kept. It
// returns the resulting discoverable devices.
func (s *Store) SetDiscoverable(siteID string, devices []Device) []Device {
	var out []Device
	s.mutate(siteID, true, func(e *entry) error {
		kept := make([]Device, 0, len(e.available)+len(devices))
		seen := make(map[string]struct{}, len(e.available)+len(devices))
		for _, d := range e.available {
			if _, paired := e.paired[d.Address]; paired {
				kept = append(kept, d)
				seen[d.Address] = struct{}{}
			}
		}
		for _, d := range normalizeDevices(devices) {
			if _, dup := seen[d.Address]; dup {
				continue
			}
			seen[d.Address] = struct{}{}
			kept = append(kept, d)
			out = append(out, d)
		}
		e.available = kept
		return nil
	})
	return out
}

// MarkConnected records a successful connect. Connecting implies pairing.
func (s *Store) MarkConnected(siteID, address string) error {
	_, err := s.mutate(siteID, false, func(e *entry) error {
		if !e.hasDevice(address) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
		}
		e.paired[address] = struct{}{}
		e.connected[address] = struct{}{}
		return nil
	})
	return err
}

// MarkDisconnected records a successful disconnect.
func (s *Store) MarkDisconnected(siteID, address string) error {
	_, err := s.mutate(siteID, false, func(e *entry) error {
		if !e.hasDevice(address) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
		}
		delete(e.connected, address)
		return nil
	})
	return err
}

// Forget records a successful remove: the device leaves the available,
// paired and connected sets.
func (s *Store) Forget(siteID, address string) error {
	_, err := s.mutate(siteID, false, func(e *entry) error {
		if !e.hasDevice(address) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
		}
		kept := e.available[:0:0]
		for _, d := range e.available {
			if d.Address != address {
				kept = append(kept, d)
			}
		}
		e.available = kept
		delete(e.paired, address)
		delete(e.connected, address)
		return nil
	})
	return err
}

// mutate runs fn under the site lock, then persists and publishes the new
// snapshot. With create unset a missing site yields ErrSiteNotFound.
func (s *Store) mutate(siteID string, create bool, fn func(e *entry) error) (State, error) {
	var e *entry
	if create {
		s.mu.Lock()
		e = s.entryLocked(siteID)
		s.mu.Unlock()
	} else {
		var ok bool
		if e, ok = s.get(siteID); !ok {
			return State{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
		}
	}

	e.mu.Lock()
	if err := fn(e); err != nil {
		e.mu.Unlock()
		return State{}, err
	}
	e.clamp()
	snap, version := e.touch()
	e.mu.Unlock()

	s.commit(e, snap, version)
	return snap, nil
}

// commit persists a snapshot unless a newer one was already written, then
// fires the change callback.
func (s *Store) commit(e *entry, snap State, version uint64) {
	if s.repo != nil {
		e.persistMu.Lock()
		if version > e.persisted {
			e.persisted = version
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			if err := s.repo.Save(ctx, snap); err != nil {
				s.logger.Error("failed to persist site snapshot", "site_id", snap.SiteID, "error", err)
			}
			cancel()
		}
		e.persistMu.Unlock()
	}

	if s.onChange != nil {
		s.onChange(snap)
	}
}

func (s *Store) filter(siteID string, keep func(e *entry, d Device) bool) []Device {
	e, ok := s.get(siteID)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Device
	for _, d := range e.available {
		if keep(e, d) {
			out = append(out, e.flagged(d))
		}
	}
	return out
}

func (s *Store) get(siteID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sites[siteID]
	return e, ok
}

// entryLocked returns the entry for siteID, creating it. Caller holds s.mu.
func (s *Store) entryLocked(siteID string) *entry {
	e, ok := s.sites[siteID]
	if !ok {
		e = s.newEntry(siteID)
		s.sites[siteID] = e
		s.logger.Info("site registered", "site_id", siteID)
	}
	return e
}

func (s *Store) newEntry(siteID string) *entry {
	return &entry{
		siteID:    siteID,
		paired:    make(map[string]struct{}),
		connected: make(map[string]struct{}),
		resolver:  s.global,
	}
}

// claimRoomLocked moves e to room in the room index. The first site to
// claim a room keeps it; a conflicting claim is logged and ignored for
// lookups by other sites. Caller holds s.mu and e.mu.
func (s *Store) claimRoomLocked(e *entry, room string) {
	old := e.roomName
	e.roomName = &room

	if old != nil && *old != room && s.rooms[*old] == e.siteID {
		delete(s.rooms, *old)
		s.reassignRoomLocked(*old)
	}
	if room == "" {
		return
	}
	if owner, ok := s.rooms[room]; ok && owner != e.siteID {
		s.logger.Warn("room name already claimed by another site",
			"room", room, "site_id", e.siteID, "owner", owner)
		return
	}
	s.rooms[room] = e.siteID
}

// releaseRoomLocked removes e's room name and hands its claim on. Caller
// holds s.mu and e.mu.
func (s *Store) releaseRoomLocked(e *entry) {
	old := e.roomName
	e.roomName = nil
	if old == nil {
		return
	}
	if s.rooms[*old] == e.siteID {
		delete(s.rooms, *old)
		s.reassignRoomLocked(*old)
	}
	s.logger.Info("site released its room", "site_id", e.siteID, "room", *old)
}

// reassignRoomLocked hands a released room to the remaining site with the
// lowest ID that still carries that room name.
func (s *Store) reassignRoomLocked(room string) {
	var next string
	for id, e := range s.sites {
		if e.roomName != nil && *e.roomName == room && (next == "" || id < next) {
			next = id
		}
	}
	if next != "" {
		s.rooms[room] = next
	}
}

func (e *entry) hasDevice(address string) bool {
	for _, d := range e.available {
		if d.Address == address {
			return true
		}
	}
	return false
}

// clamp enforces paired ⊆ available and connected ⊆ paired, returning the
// number of dropped addresses.
func (e *entry) clamp() int {
	known := make(map[string]struct{}, len(e.available))
	for _, d := range e.available {
		known[d.Address] = struct{}{}
	}
	dropped := 0
	for addr := range e.paired {
		if _, ok := known[addr]; !ok {
			delete(e.paired, addr)
			dropped++
		}
	}
	for addr := range e.connected {
		if _, ok := e.paired[addr]; !ok {
			delete(e.connected, addr)
			dropped++
		}
	}
	return dropped
}

// touch bumps the version and returns a snapshot. Caller holds e.mu.
func (e *entry) touch() (State, uint64) {
	e.version++
	e.updatedAt = time.Now().UTC()
	return e.snapshot(), e.version
}

func (e *entry) flagged(d Device) Device {
	_, d.Paired = e.paired[d.Address]
	_, d.Connected = e.connected[d.Address]
	return d
}

// snapshot builds a State sharing no memory with e. Caller holds e.mu.
func (e *entry) snapshot() State {
	st := State{
		SiteID:    e.siteID,
		Available: make([]Device, 0, len(e.available)),
		Paired:    []string{},
		Connected: []string{},
		Synonyms:  e.synonyms,
		UpdatedAt: e.updatedAt,
	}
	if e.roomName != nil {
		st.RoomName = StringPtr(*e.roomName)
	}
	for _, d := range e.available {
		d = e.flagged(d)
		st.Available = append(st.Available, d)
		if d.Paired {
			st.Paired = append(st.Paired, d.Address)
		}
		if d.Connected {
			st.Connected = append(st.Connected, d.Address)
		}
	}
	return st.DeepCopy()
}

// normalizeDevices drops devices without an address, removes duplicate
// addresses keeping the first, and clears the state flags.
func normalizeDevices(in []Device) []Device {
	out := make([]Device, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, d := range in {
		if d.Address == "" {
			continue
		}
		if _, dup := seen[d.Address]; dup {
			continue
		}
		seen[d.Address] = struct{}{}
		out = append(out, Device{Address: d.Address, Name: d.Name})
	}
	return out
}

func toSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}
