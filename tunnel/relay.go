package tunnel

import (
	"net"
	"sync"
	"time"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ConnState 是 RelayConn 的显式状态. 状态迁移只能走 legalNext 表,
// 用表而不是散落的flag, 使非法迁移不可表示.
type ConnState byte

const (
	StateAwaitingHandshake ConnState = iota
	StateAwaitingControl
	StateResolving
	StateConnecting
	StateRelaying
	StateClosing
	StateClosed
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateAwaitingControl:
		return "awaiting_control"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateRelaying:
		return "relaying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "error"
	}
}

var legalNext = map[ConnState][]ConnState{
	StateAwaitingHandshake: {StateAwaitingControl, StateError},
	StateAwaitingControl:   {StateResolving, StateError},
	StateResolving:         {StateConnecting, StateError},
	StateConnecting:        {StateRelaying, StateError},
	StateRelaying:          {StateClosing, StateError},
	StateClosing:           {StateClosed},
	StateError:             {StateClosed},
}

// RelayConn 把一条客户端侧的加密流和一个出站socket配成一对,
// 两者生命期互相绑定: 关掉任何一个都会连带关掉另一个.
//
// 注意这里没有、也不能有目标的域名字段: 出站连接建立后
// 只剩下不透明的连接句柄.
type RelayConn struct {
	id    uint32
	state ConnState

	wlc net.Conn //client-facing stream
	wrc net.Conn //destination-facing socket

	mutex sync.Mutex
}

func (rc *RelayConn) transit(to ConnState) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	for _, next := range legalNext[rc.state] {
		if next == to {
			rc.state = to
			return true
		}
	}

	if ce := utils.CanLogWarn("illegal relay state transition"); ce != nil {
		ce.Write(zap.String("from", rc.state.String()), zap.String("to", to.String()))
	}
	return false
}

func (rc *RelayConn) State() ConnState {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	return rc.state
}

func (rc *RelayConn) closeBoth() {
	if rc.wlc != nil {
		rc.wlc.Close()
	}
	if rc.wrc != nil {
		rc.wrc.Close()
	}
}

// RelayConf 是中继端消费的配置, 构建后不再变更.
type RelayConf struct {
	MaxTunnelCount int //并发隧道上限, <=0 时取 DefaultMaxTunnelCount

	ControlReadTimeout time.Duration
	ResolveTimeout     time.Duration
	ConnectTimeout     time.Duration
	LingerTimeout      time.Duration
}

func (c *RelayConf) fillDefaults() {
	if c.MaxTunnelCount <= 0 {
		c.MaxTunnelCount = DefaultMaxTunnelCount
	}
	if c.ControlReadTimeout <= 0 {
		c.ControlReadTimeout = DefaultControlReadTimeout
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = DefaultResolveTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LingerTimeout <= 0 {
		c.LingerTimeout = DefaultLingerTimeout
	}
}

// Relay 终结来自客户端的加密传输, 读取唯一一条控制消息, 建立出站连接,
// 然后在两者之间盲转发.
type Relay struct {
	callbacks
	Stats

	conf     RelayConf
	server   transportLayer.Server
	resolver *netLayer.Resolver

	//出站拨号入口, 测试中可替换
	DialFunc func(addr netLayer.Addr, timeout time.Duration) (net.Conn, error)

	sem chan struct{} //admission control

	connMutex sync.Mutex
	conns     map[uint32]*RelayConn
	nextID    uint32

	closer  interface{ Close() error }
	stopped atomic.Bool
}

func NewRelay(server transportLayer.Server, resolver *netLayer.Resolver, conf RelayConf) *Relay {
	conf.fillDefaults()
	resolver.Timeout = conf.ResolveTimeout

	return &Relay{
		conf:     conf,
		server:   server,
		resolver: resolver,
		DialFunc: func(addr netLayer.Addr, timeout time.Duration) (net.Conn, error) {
			return addr.DialWithTimeout(timeout)
		},
		sem:   make(chan struct{}, conf.MaxTunnelCount),
		conns: make(map[uint32]*RelayConn),
	}
}

//non-blocking
func (r *Relay) Start() error {
	newStreamChan, closer, err := r.server.StartListen()
	if err != nil {
		return utils.ErrInErr{ErrDesc: "relay failed to listen", ErrDetail: err}
	}
	r.closer = closer

	go func() {
		for stream := range newStreamChan {
			go r.handleStream(stream)
		}
	}()

	return nil
}

func (r *Relay) Stop() {
	r.stopped.Store(true)
	r.server.Stop()
	if r.closer != nil {
		r.closer.Close()
	}

	r.connMutex.Lock()
	for _, rc := range r.conns {
		rc.closeBoth()
	}
	r.connMutex.Unlock()
}

func (r *Relay) registerConn(rc *RelayConn) {
	r.connMutex.Lock()
	r.nextID++
	rc.id = r.nextID
	r.conns[rc.id] = rc
	r.connMutex.Unlock()
}

func (r *Relay) unregisterConn(rc *RelayConn) {
	r.connMutex.Lock()
	delete(r.conns, rc.id)
	r.connMutex.Unlock()
}

// ConnCount 返回当前在册的连接数.
func (r *Relay) ConnCount() int {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()
	return len(r.conns)
}

//阻塞, 每条流一个goroutine; 一个缓慢或恶意的对端不会影响其他连接.
func (r *Relay) handleStream(wlc net.Conn) {
	//Stop之后chan里可能还残留着已接受的流, 直接关掉
	if r.stopped.Load() {
		wlc.Close()
		return
	}

	//流能从 transportLayer 产出, 说明加密握手已经完成
	rc := &RelayConn{state: StateAwaitingHandshake, wlc: wlc}
	rc.transit(StateAwaitingControl)
	r.emit(EventHandshakeOK, ReasonNone)

	//admission control: 到达上限时不排队, 直接回 busy
	select {
	case r.sem <- struct{}{}:
	default:
		WriteAck(wlc, AckBusy)
		rc.transit(StateError)
		r.closeWithError(rc, ReasonBusy)
		return
	}
	defer func() { <-r.sem }()

	r.registerConn(rc)
	defer r.unregisterConn(rc)

	//AwaitingControl: 恰好读取一条 TunnelRequest
	wlc.SetReadDeadline(time.Now().Add(r.conf.ControlReadTimeout))
	req, err := ReadRequest(wlc)
	wlc.SetReadDeadline(time.Time{})
	if err != nil {
		//残缺控制消息直接进Error, 不尝试解析或出站
		WriteAck(wlc, AckRejected)
		rc.transit(StateError)
		r.closeWithError(rc, ReasonMalformedControl)
		return
	}

	//Resolving
	rc.transit(StateResolving)
	target, err := r.resolver.ResolveHere(req.Target)
	if err != nil {
		//对客户端只回generic失败; 事件里只有模式, 没有被查询的名字
		WriteAck(wlc, AckResolveFailed)
		rc.transit(StateError)
		r.emit(EventResolutionFailed, Reason(req.Mode.String()))
		r.closeWithError(rc, ReasonResolveFailed)
		return
	}

	//Connecting
	rc.transit(StateConnecting)
	wrc, err := r.DialFunc(target, r.conf.ConnectTimeout)
	if err != nil {
		WriteAck(wlc, AckConnectFailed)
		rc.transit(StateError)
		r.closeWithError(rc, ReasonConnectFailed)
		return
	}
	rc.wrc = wrc

	if err = WriteAck(wlc, AckOK); err != nil {
		rc.transit(StateError)
		r.closeWithError(rc, ReasonStreamError)
		return
	}

	//Relaying: 从这里开始, 本中继只是一根管道.
	rc.transit(StateRelaying)
	r.tunnelStarted()
	r.emit(EventTunnelOpened, ReasonNone)

	up, down := netLayer.RelayPipe(wlc, wrc, r.conf.LingerTimeout)

	rc.transit(StateClosing)
	rc.transit(StateClosed)
	r.tunnelClosed(up, down)
	r.emit(EventTunnelClosed, ReasonDone)
}

//Error状态的统一出口: 释放双方资源并收束到 Closed.
func (r *Relay) closeWithError(rc *RelayConn, reason Reason) {
	rc.closeBoth()
	rc.transit(StateClosed)
	r.emit(EventTunnelClosed, reason)
}
