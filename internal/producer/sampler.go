package producer

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Sample is one reading of the host's network activity.
type Sample struct {
	Username  string
	Command   string
	BytesRecv uint64
	BytesSent uint64
	At        time.Time // when the counters were read
}

// Sampler publishes this host's network activity on a fixed interval.
type Sampler struct {
	pub      *Publisher
	interval time.Duration
	log      *zap.Logger
	collect  func(ctx context.Context) (Sample, error)

	prev   Sample
	primed bool
}

// NewSampler returns a sampler reading host counters through gopsutil.
func NewSampler(pub *Publisher, interval time.Duration, log *zap.Logger) *Sampler {
	return &Sampler{
		pub:      pub,
		interval: interval,
		log:      log,
		collect:  collectHost,
	}
}

// Run samples until ctx is done. The first reading only sets the baseline.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.step(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

func (s *Sampler) step(ctx context.Context) {
	cur, err := s.collect(ctx)
	if err != nil {
		s.log.Warn("sampling host activity failed", zap.Error(err))
		return
	}
	if s.primed {
		secs := cur.At.Sub(s.prev.At).Seconds()
		s.pub.Publish(cur.Username, cur.Command,
			rate(s.prev.BytesRecv, cur.BytesRecv, secs),
			rate(s.prev.BytesSent, cur.BytesSent, secs),
		)
	}
	s.prev = cur
	s.primed = true
}

// rate converts a byte counter delta to KB/s. A counter that went backwards
// was reset and yields zero.
func rate(prev, cur uint64, secs float64) float32 {
	if cur < prev || secs <= 0 {
		return 0
	}
	return float32(float64(cur-prev) / 1024 / secs)
}

func collectHost(ctx context.Context) (Sample, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return Sample{}, err
	}
	s := Sample{At: time.Now()}
	if len(counters) > 0 {
		s.BytesRecv = counters[0].BytesRecv
		s.BytesSent = counters[0].BytesSent
	}
	s.Username = activeUser(ctx)
	s.Command = busiestCommand(ctx, s.Username)
	return s, nil
}

// activeUser returns the first logged-in user, falling back to $USER.
func activeUser(ctx context.Context) string {
	if users, err := host.UsersWithContext(ctx); err == nil && len(users) > 0 && users[0].User != "" {
		return users[0].User
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// busiestCommand returns the name of the username's process holding the most
// remote inet connections.
func busiestCommand(ctx context.Context, username string) string {
	connections, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return "-"
	}

	perPid := make(map[int32]int)
	for _, conn := range connections {
		if conn.Status == "LISTEN" || conn.Status == "NONE" || conn.Pid == 0 || len(conn.Raddr.IP) == 0 || conn.Raddr.IP == "127.0.0.1" || conn.Raddr.IP == "::1" {
			continue
		}
		perPid[conn.Pid]++
	}

	best, bestCount := "-", 0
	for pid, count := range perPid {
		if count <= bestCount {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		if owner, err := p.UsernameWithContext(ctx); err != nil || owner != username {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		best, bestCount = name, count
	}
	return best
}
