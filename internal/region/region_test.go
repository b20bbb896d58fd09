package region

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerolethanh/netspy/internal/record"
)

func newRegion(t *testing.T, size int, opts ...Option) *Region {
	t.Helper()
	r, err := New(0x0000DEAD, size, opts...)
	require.NoError(t, err)
	return r
}

func TestNewRegion(t *testing.T) {
	r := newRegion(t, DefaultSize)
	assert.Equal(t, 14, r.Slots())
	assert.Equal(t, 1024, r.Size())
	assert.Equal(t, uint32(0xDEAD), r.Key())

	_, err := New(1, record.Size-1)
	assert.ErrorIs(t, err, ErrRegionTooSmall)

	r = newRegion(t, record.Size)
	assert.Equal(t, 1, r.Slots())
}

func TestScanEmptyRegion(t *testing.T) {
	r := newRegion(t, DefaultSize)
	assert.Empty(t, r.Scan())
	assert.Empty(t, r.ReadAllRecords())
}

func TestScanSlotOrder(t *testing.T) {
	r := newRegion(t, DefaultSize)
	require.NoError(t, r.Write(5, record.New("carol", "scp", 3, 3)))
	require.NoError(t, r.Write(1, record.New("bob", "curl", 2, 2)))
	require.NoError(t, r.Write(13, record.New("dave", "wget", 4, 4)))

	got := r.Scan()
	require.Len(t, got, 3)
	assert.Equal(t, "bob", got[0].UsernameString())
	assert.Equal(t, "carol", got[1].UsernameString())
	assert.Equal(t, "dave", got[2].UsernameString())
}

func TestWriteOutOfRange(t *testing.T) {
	r := newRegion(t, 2*record.Size)
	assert.ErrorIs(t, r.Write(-1, record.UserRecord{}), ErrSlotOutOfRange)
	assert.ErrorIs(t, r.Write(2, record.UserRecord{}), ErrSlotOutOfRange)
	assert.ErrorIs(t, r.Clear(2), ErrSlotOutOfRange)
	_, err := r.SlotBytes(7)
	assert.ErrorIs(t, err, ErrSlotOutOfRange)
}

func TestTrailingPartialSlotIgnored(t *testing.T) {
	r := newRegion(t, DefaultSize)
	for i := 14 * record.Size; i < len(r.buf); i++ {
		r.buf[i] = 0xff
	}
	assert.Empty(t, r.Scan())
}

func TestSlotIsolation(t *testing.T) {
	r := newRegion(t, 3*record.Size)
	other := record.New("bob", "rsync", 7, 8)
	require.NoError(t, r.Write(1, other))
	require.NoError(t, r.Write(2, other))
	before1, _ := r.SlotBytes(1)
	before2, _ := r.SlotBytes(2)

	require.NoError(t, r.Write(0, record.New("0123456789012345678901234567890123", "x", 9, 9)))
	require.NoError(t, r.Write(0, record.New("alice", "ssh", 1, 1)))

	after1, _ := r.SlotBytes(1)
	after2, _ := r.SlotBytes(2)
	assert.Equal(t, before1, after1)
	assert.Equal(t, before2, after2)

	got := r.Scan()
	require.Len(t, got, 3)
	assert.Equal(t, other, got[1])
	assert.Equal(t, other, got[2])
}

func TestWriteOverwrites(t *testing.T) {
	r := newRegion(t, 2*record.Size)
	require.NoError(t, r.Write(0, record.New("a-very-long-username", "long-command", 1, 1)))
	require.NoError(t, r.Write(0, record.New("b", "c", 2, 2)))

	got := r.Scan()
	require.Len(t, got, 1)
	assert.Equal(t, record.New("b", "c", 2, 2), got[0])
}

func TestClear(t *testing.T) {
	r := newRegion(t, 2*record.Size)
	require.NoError(t, r.Write(1, record.New("bob", "ssh", 1, 1)))
	require.NoError(t, r.Clear(1))
	assert.Empty(t, r.Scan())
}

func TestAcquireRelease(t *testing.T) {
	r := newRegion(t, 3*record.Size)

	a, err := r.Acquire("alice")
	require.NoError(t, err)
	b, err := r.Acquire("bob")
	require.NoError(t, err)
	c, err := r.Acquire("carol")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{a, b, c})

	again, err := r.Acquire("alice")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	_, err = r.Acquire("dave")
	assert.ErrorIs(t, err, ErrNoFreeSlot)

	require.NoError(t, r.WriteAs("bob", record.New("bob", "ssh", 1, 1)))
	r.Release("bob")
	r.Release("nobody")
	raw, _ := r.SlotBytes(b)
	assert.True(t, record.IsZero(raw))

	d, err := r.Acquire("dave")
	require.NoError(t, err)
	assert.Equal(t, b, d)
}

func TestWriteRespectsOwnership(t *testing.T) {
	r := newRegion(t, 2*record.Size)

	slot, err := r.Acquire("alice")
	require.NoError(t, err)
	require.NoError(t, r.WriteAs("alice", record.New("alice", "ssh", 1, 1)))

	assert.ErrorIs(t, r.Write(slot, record.New("mallory", "nc", 9, 9)), ErrSlotNotOwned)
	assert.ErrorIs(t, r.WriteAs("bob", record.New("bob", "scp", 2, 2)), ErrSlotNotOwned)
	require.NoError(t, r.Write(1, record.New("carol", "curl", 3, 3)))

	got := r.Scan()
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].UsernameString())
	assert.Equal(t, "carol", got[1].UsernameString())
}

func TestReleasedOwnerCannotWrite(t *testing.T) {
	r := newRegion(t, 2*record.Size)

	a, err := r.Acquire("a")
	require.NoError(t, err)
	r.Release("a")
	b, err := r.Acquire("b")
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.NoError(t, r.WriteAs("b", record.New("bob", "scp", 1, 1)))
	assert.ErrorIs(t, r.WriteAs("a", record.New("alice", "ssh", 2, 2)), ErrSlotNotOwned)

	got := r.Scan()
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].UsernameString())
}

type countingObserver struct {
	mu      sync.Mutex
	writes  []int
	scans   int
	records int
}

func (o *countingObserver) ObserveWrite(slot int) {
	o.mu.Lock()
	o.writes = append(o.writes, slot)
	o.mu.Unlock()
}

func (o *countingObserver) ObserveScan(records int, _ time.Duration) {
	o.mu.Lock()
	o.scans++
	o.records = records
	o.mu.Unlock()
}

func TestObserver(t *testing.T) {
	o := &countingObserver{}
	r := newRegion(t, DefaultSize, WithObserver(o))
	require.NoError(t, r.Write(3, record.New("x", "y", 1, 1)))
	require.Error(t, r.Write(99, record.New("x", "y", 1, 1)))
	r.Scan()

	assert.Equal(t, []int{3}, o.writes)
	assert.Equal(t, 1, o.scans)
	assert.Equal(t, 1, o.records)
}

// stamp builds a record whose every field is derived from seq, so a record
// mixing bytes from two different writes is detectable.
func stamp(writer, seq int) record.UserRecord {
	v := byte(1 + seq%250)
	var rec record.UserRecord
	for i := range rec.Username {
		rec.Username[i] = v
		rec.Command[i] = byte(writer + 1)
	}
	rec.DownloadSpeed = float32(v)
	rec.UploadSpeed = float32(writer + 1)
	return rec
}

func consistent(rec record.UserRecord) error {
	v := rec.Username[0]
	w := rec.Command[0]
	for i := range rec.Username {
		if rec.Username[i] != v || rec.Command[i] != w {
			return fmt.Errorf("torn name fields: %v / %v", rec.Username, rec.Command)
		}
	}
	if rec.DownloadSpeed != float32(v) || rec.UploadSpeed != float32(w) {
		return fmt.Errorf("torn speeds: %v %v for %d/%d", rec.DownloadSpeed, rec.UploadSpeed, v, w)
	}
	return nil
}

func TestConcurrentWriteScanNoTornReads(t *testing.T) {
	const (
		writers = 8
		readers = 4
		rounds  = 500
	)
	r := newRegion(t, DefaultSize)
	r.midWrite = func() {
		runtime.Gosched()
		time.Sleep(time.Microsecond)
	}

	var (
		wg   sync.WaitGroup
		done = make(chan struct{})
		errs = make(chan error, readers)
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for seq := 0; seq < rounds; seq++ {
				if err := r.Write(w, stamp(w, seq)); err != nil {
					panic(err)
				}
			}
		}(w)
	}

	var rg sync.WaitGroup
	for i := 0; i < readers; i++ {
		rg.Add(1)
		go func() {
			defer rg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, rec := range r.Scan() {
					if err := consistent(rec); err != nil {
						errs <- err
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	rg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	got := r.Scan()
	require.Len(t, got, writers)
	for w, rec := range got {
		assert.Equal(t, stamp(w, rounds-1), rec)
	}
}

func TestConcurrentAcquireDistinct(t *testing.T) {
	r := newRegion(t, DefaultSize)
	slots := make([]int, r.Slots())
	var wg sync.WaitGroup
	for i := range slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, err := r.Acquire(fmt.Sprintf("producer-%d", i))
			if err != nil {
				panic(err)
			}
			slots[i] = slot
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, s := range slots {
		assert.False(t, seen[s], "slot %d assigned twice", s)
		seen[s] = true
	}
	_, err := r.Acquire("one-too-many")
	assert.ErrorIs(t, err, ErrNoFreeSlot)
}
