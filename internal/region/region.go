// Package region implements the shared record region: a fixed-capacity byte
// buffer partitioned into record.Size slots, guarded by a single mutex.
//
// Region Memory Layout:
//
//	<<<< offset 0
//	slot 0      [record.Size]byte
//	slot 1      [record.Size]byte
//	...
//	slot n-1    [record.Size]byte
//	remainder   size % record.Size bytes, never read or written
//
// A slot whose bytes are all zero is empty and is left out of scans.
package region

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zerolethanh/netspy/internal/record"
)

// DefaultSize is the capacity used when no size is configured.
const DefaultSize = 1024

var (
	ErrRegionTooSmall = errors.New("netspy: region smaller than one slot")
	ErrSlotOutOfRange = errors.New("netspy: slot index out of range")
	ErrNoFreeSlot     = errors.New("netspy: no free slot")
	ErrSizeMismatch   = errors.New("netspy: region size mismatch")
	ErrSlotNotOwned   = errors.New("netspy: slot not owned by writer")
)

// Observer is notified after each write and scan, outside the lock.
type Observer interface {
	ObserveWrite(slot int)
	ObserveScan(records int, elapsed time.Duration)
}

// Option configures a Region.
type Option func(*Region)

// WithObserver attaches o to the region.
func WithObserver(o Observer) Option {
	return func(r *Region) {
		r.observer = o
	}
}

// Region owns the shared byte buffer. All access goes through its methods.
type Region struct {
	key   uint32
	slots int

	mu     sync.Mutex
	buf    []byte
	owners map[string]int // producer owner -> slot
	taken  []bool

	observer Observer

	// midWrite runs while a slot is half written; tests use it to widen the
	// window a torn read would need.
	midWrite func()
}

// New allocates a zeroed region of size bytes identified by key.
func New(key uint32, size int, opts ...Option) (*Region, error) {
	if size < record.Size {
		return nil, fmt.Errorf("%w: %d bytes", ErrRegionTooSmall, size)
	}
	r := &Region{
		key:    key,
		slots:  size / record.Size,
		buf:    make([]byte, size),
		owners: make(map[string]int),
	}
	r.taken = make([]bool, r.slots)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Key returns the key the region was created with.
func (r *Region) Key() uint32 {
	return r.key
}

// Size returns the region capacity in bytes, including any unused remainder.
func (r *Region) Size() int {
	return len(r.buf)
}

// Slots returns the number of usable slots.
func (r *Region) Slots() int {
	return r.slots
}

func (r *Region) checkSlot(slot int) error {
	if slot < 0 || slot >= r.slots {
		return fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, slot, r.slots)
	}
	return nil
}

// Write encodes rec into slot, replacing its previous contents. Slots handed
// out by Acquire can only be written through WriteAs. Scans never observe a
// partially written slot.
func (r *Region) Write(slot int, rec record.UserRecord) error {
	if err := r.checkSlot(slot); err != nil {
		return err
	}
	b := record.Encode(rec)

	r.mu.Lock()
	if r.taken[slot] {
		r.mu.Unlock()
		return fmt.Errorf("%w: slot %d is assigned", ErrSlotNotOwned, slot)
	}
	r.writeLocked(slot, &b)
	r.mu.Unlock()

	r.observeWrite(slot)
	return nil
}

// WriteAs encodes rec into the slot currently assigned to owner. It fails
// with ErrSlotNotOwned once owner has been released.
func (r *Region) WriteAs(owner string, rec record.UserRecord) error {
	b := record.Encode(rec)

	r.mu.Lock()
	slot, ok := r.owners[owner]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q holds no slot", ErrSlotNotOwned, owner)
	}
	r.writeLocked(slot, &b)
	r.mu.Unlock()

	r.observeWrite(slot)
	return nil
}

// writeLocked copies b into slot. r.mu must be held.
func (r *Region) writeLocked(slot int, b *[record.Size]byte) {
	off := slot * record.Size
	dst := r.buf[off : off+record.Size]
	n := copy(dst[:record.Size/2], b[:record.Size/2])
	if r.midWrite != nil {
		r.midWrite()
	}
	copy(dst[n:], b[n:])
}

func (r *Region) observeWrite(slot int) {
	if r.observer != nil {
		r.observer.ObserveWrite(slot)
	}
}

// Clear zeroes slot so that scans skip it.
func (r *Region) Clear(slot int) error {
	if err := r.checkSlot(slot); err != nil {
		return err
	}
	r.mu.Lock()
	clear(r.buf[slot*record.Size : (slot+1)*record.Size])
	r.mu.Unlock()
	return nil
}

// Scan decodes every slot in ascending order and returns the non-empty ones.
// Its cost is linear in the region size.
func (r *Region) Scan() []record.UserRecord {
	start := time.Now()

	r.mu.Lock()
	out := make([]record.UserRecord, 0, r.slots)
	for i := 0; i < r.slots; i++ {
		b := r.buf[i*record.Size : (i+1)*record.Size]
		if record.IsZero(b) {
			continue
		}
		rec, err := record.Decode(b)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.ObserveScan(len(out), time.Since(start))
	}
	return out
}

// ReadAllRecords is the read entry point for renderers. It blocks only for
// the lock and the decode of the region.
func (r *Region) ReadAllRecords() []record.UserRecord {
	return r.Scan()
}

// SlotBytes returns a copy of the raw bytes of slot.
func (r *Region) SlotBytes(slot int) ([]byte, error) {
	if err := r.checkSlot(slot); err != nil {
		return nil, err
	}
	out := make([]byte, record.Size)
	r.mu.Lock()
	copy(out, r.buf[slot*record.Size:])
	r.mu.Unlock()
	return out, nil
}

// Acquire returns the slot assigned to owner, assigning the lowest free slot
// on first use. An owner keeps its slot until Release.
func (r *Region) Acquire(owner string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.owners[owner]; ok {
		return slot, nil
	}
	for slot, taken := range r.taken {
		if !taken {
			r.taken[slot] = true
			r.owners[owner] = slot
			return slot, nil
		}
	}
	return -1, fmt.Errorf("%w: %d slots in use", ErrNoFreeSlot, r.slots)
}

// Release frees the slot held by owner and zeroes it. Unknown owners are
// ignored.
func (r *Region) Release(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.owners[owner]
	if !ok {
		return
	}
	delete(r.owners, owner)
	r.taken[slot] = false
	clear(r.buf[slot*record.Size : (slot+1)*record.Size])
}
