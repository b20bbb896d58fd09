// Package producer writes user activity records into a region.
package producer

import (
	"go.uber.org/zap"

	"github.com/zerolethanh/netspy/internal/record"
	"github.com/zerolethanh/netspy/internal/region"
)

// Writer is the part of a region a producer needs.
type Writer interface {
	Write(slot int, rec record.UserRecord) error
}

// Publisher commits records to one slot of a region. It is safe for
// concurrent use.
type Publisher struct {
	slot    int
	write   func(rec record.UserRecord) error
	release func()
	log     *zap.Logger
}

// NewPublisher returns a publisher bound to slot. A lone producer uses slot 0.
// Slots assigned to an owner through Register are refused.
func NewPublisher(w Writer, slot int, log *zap.Logger) *Publisher {
	return &Publisher{
		slot: slot,
		write: func(rec record.UserRecord) error {
			return w.Write(slot, rec)
		},
		release: func() {},
		log:     log.With(zap.Int("slot", slot)),
	}
}

// Register acquires a slot for owner and returns a publisher bound to it.
// The same owner always gets the same slot back. Writes go through the
// owner's assignment, so once the slot is released they fail instead of
// landing on another producer's record.
func Register(r *region.Region, owner string, log *zap.Logger) (*Publisher, error) {
	slot, err := r.Acquire(owner)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		slot: slot,
		write: func(rec record.UserRecord) error {
			return r.WriteAs(owner, rec)
		},
		release: func() {
			r.Release(owner)
		},
		log: log.With(zap.Int("slot", slot), zap.String("owner", owner)),
	}, nil
}

// Slot returns the slot the publisher writes to.
func (p *Publisher) Slot() int {
	return p.slot
}

// Close frees a registered publisher's slot and clears its record. Later
// publishes are dropped.
func (p *Publisher) Close() {
	p.release()
}

// Publish stores one activity record. Names longer than record.NameSize bytes
// are cut silently.
func (p *Publisher) Publish(username, command string, download, upload float32) {
	rec := record.New(username, command, download, upload)
	if err := p.write(rec); err != nil {
		p.log.Error("publish failed", zap.String("username", username), zap.Error(err))
		return
	}
	p.log.Debug("published",
		zap.String("username", rec.UsernameString()),
		zap.String("command", rec.CommandString()),
		zap.Float32("download_kbps", download),
		zap.Float32("upload_kbps", upload),
	)
}
