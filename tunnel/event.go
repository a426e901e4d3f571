package tunnel

import (
	"github.com/e1732a364fed/tunnel_simple/utils"
	"go.uber.org/zap"
)

// Event 是核心对外发出的抽象生命周期信号.
// 事件永远不携带目标的域名、ip或端口; 接到事件的外部协作者
// 也因此没有机会把身份信息重新引入持久化输出.
type Event string

const (
	EventHandshakeOK      Event = "handshake_ok"
	EventHandshakeFailed  Event = "handshake_failed"
	EventTunnelOpened     Event = "tunnel_opened"
	EventTunnelClosed     Event = "tunnel_closed"
	EventResolutionFailed Event = "resolution_failed"
)

// Reason 是粗粒度的原因类别, 够排错用, 但不够指认任何目标.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonDone             Reason = "done"
	ReasonMalformedControl Reason = "malformed_control"
	ReasonResolveFailed    Reason = "resolve_failed"
	ReasonLeakDetected     Reason = "leak_detected"
	ReasonConnectFailed    Reason = "connect_failed"
	ReasonBusy             Reason = "busy"
	ReasonStreamError      Reason = "stream_error"
)

type EventSink func(e Event, detail Reason)

type callbacks struct {
	sinks []EventSink
}

func (cs *callbacks) AddEventSink(f EventSink) {
	cs.sinks = append(cs.sinks, f)
}

func (cs *callbacks) emit(e Event, detail Reason) {
	for _, f := range cs.sinks {
		f(e, detail)
	}
}

// LogEventSink 把事件写入日志, 只含事件名与原因类别.
func LogEventSink(e Event, detail Reason) {
	if ce := utils.CanLogInfo(string(e)); ce != nil {
		if detail != ReasonNone {
			ce.Write(zap.String("reason", string(detail)))
		} else {
			ce.Write()
		}
	}
}
