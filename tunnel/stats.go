package tunnel

import (
	"go.uber.org/atomic"
)

// Stats 是身份无关的累计计数. 只有数量和字节数, 没有任何对端信息.
type Stats struct {
	ActiveTunnels atomic.Int32
	TotalTunnels  atomic.Int64
	BytesUp       atomic.Int64
	BytesDown     atomic.Int64
}

func (s *Stats) tunnelStarted() {
	s.ActiveTunnels.Inc()
	s.TotalTunnels.Inc()
}

func (s *Stats) tunnelClosed(up, down int64) {
	s.ActiveTunnels.Dec()
	s.BytesUp.Add(up)
	s.BytesDown.Add(down)
}
