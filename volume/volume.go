// Package volume implements the driver-wide volume registry and the
// two-tier locking model (§5): a single API-wide lock serializes
// operations that touch the registry itself (mount/unmount/lookup),
// while each mounted Volume carries its own recursive lock so independent
// volumes never block each other and a single call stack can safely
// re-enter its own volume's critical section.
package volume

import (
	"sync"

	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/fat"
	"github.com/segger-go/emfile/sectorbuffer"
)

// Volume is one mounted FAT file system: its allocation table state, a
// recursive per-volume lock, and the identity the driver registry uses to
// find it again.
type Volume struct {
	Name  string
	ID    sectorbuffer.VolumeID
	Table *fat.Table
	Root  fat.DirCursor

	ctrl     sync.Mutex      // guards lockedBy/depth below
	sem      chan struct{}   // 1-buffered; held while the volume is locked
	lockedBy int64           // goroutine-local reentrancy tag; 0 means unlocked
	depth    int
}

// lock acquires the volume's recursive lock. Because Go has no notion of
// the calling goroutine's identity exposed to libraries, reentrancy is
// tracked via an explicit token the caller passes back in through a
// context-like handle (Session) rather than inspecting runtime internals.
// The actual exclusion is a 1-buffered channel rather than sync.Mutex,
// since a plain Mutex isn't safe to re-lock from the holder itself.
func (v *Volume) lock(token int64) {
	v.ctrl.Lock()
	if v.depth > 0 && v.lockedBy == token {
		v.depth++
		v.ctrl.Unlock()
		return
	}
	v.ctrl.Unlock()

	v.sem <- struct{}{}

	v.ctrl.Lock()
	v.lockedBy = token
	v.depth = 1
	v.ctrl.Unlock()
}

func (v *Volume) unlock() {
	v.ctrl.Lock()
	v.depth--
	release := v.depth <= 0
	if release {
		v.lockedBy = 0
		v.depth = 0
	}
	v.ctrl.Unlock()

	if release {
		<-v.sem
	}
}

// Session is a lease on a Volume's recursive lock, scoped to one logical
// operation (which may itself call other Volume methods reentrantly).
type Session struct {
	vol   *Volume
	token int64
}

func (s *Session) Volume() *Volume { return s.vol }
func (s *Session) Close()          { s.vol.unlock() }

// Registry is the API-wide set of mounted volumes, guarded by a single
// lock so Mount/Unmount/Lookup never race against each other, distinct
// from any individual Volume's own lock.
type Registry struct {
	mu      sync.Mutex
	volumes map[string]*Volume
	nextID  sectorbuffer.VolumeID
	nextTok int64
}

func NewRegistry() *Registry {
	return &Registry{volumes: map[string]*Volume{}, nextID: 1}
}

// Mount registers a volume under name, backed by an already-prepared
// fat.Table (the caller is responsible for having parsed its BPB and
// opened its physical device beforehand — the registry only owns the
// name -> Volume mapping and locking, not device bring-up).
func (r *Registry) Mount(name string, table *fat.Table, root fat.DirCursor) (*Volume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.volumes[name]; exists {
		return nil, emerrors.Newf(emerrors.InvalidUsage, "volume %q is already mounted", name)
	}

	v := &Volume{Name: name, ID: r.nextID, Table: table, Root: root, sem: make(chan struct{}, 1)}
	table.VolID = v.ID
	r.nextID++
	r.volumes[name] = v
	return v, nil
}

// Unmount removes name from the registry. The caller must ensure no
// Session on that volume is still open.
func (r *Registry) Unmount(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.volumes[name]; !exists {
		return emerrors.Newf(emerrors.VolumeNotFound, "volume %q is not mounted", name)
	}
	delete(r.volumes, name)
	return nil
}

// Lookup finds a mounted volume by name.
func (r *Registry) Lookup(name string) (*Volume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.volumes[name]
	if !exists {
		return nil, emerrors.Newf(emerrors.VolumeNotFound, "volume %q is not mounted", name)
	}
	return v, nil
}

// Begin opens a reentrant session on v, under a freshly minted token
// unique to this call stack's root. Nested operations on the same Volume
// within the same logical call should reuse the Session rather than call
// Begin again, since each Begin mints a new, non-reentrant token.
func (r *Registry) Begin(v *Volume) *Session {
	r.mu.Lock()
	r.nextTok++
	tok := r.nextTok
	r.mu.Unlock()

	v.lock(tok)
	return &Session{vol: v, token: tok}
}

// Reenter re-acquires v's lock using an already-open Session's token,
// satisfying the recursive-lock contract for code that receives only a
// *Volume (not the originating Session) but runs nested inside the same
// logical operation.
func (s *Session) Reenter() *Session {
	s.vol.lock(s.token)
	return &Session{vol: s.vol, token: s.token}
}

// Names returns the currently mounted volume names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.volumes))
	for n := range r.volumes {
		names = append(names, n)
	}
	return names
}
