package tunnel

import (
	"net"
	"sync"
	"time"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
)

// ClientConf 在启动时构建一次, 之后不可变.
type ClientConf struct {
	RelayAddr string //中继地址, host:port
	Variant   string //transport变体名: ssh / tls / quic

	Mode   netLayer.ResolveMode
	Policy netLayer.DnsPolicy

	Host            string
	Token           string
	Insecure        bool
	UtlsFingerprint string

	AckTimeout time.Duration
}

// Client 驱动握手与CONNECT请求, 把得到的字节流作为不透明的双工通道
// 交给调用方. 除单次在途请求外, Client 不保存任何目标身份状态.
type Client struct {
	callbacks

	conf     ClientConf
	tclient  transportLayer.Client
	resolver *netLayer.Resolver

	sessMutex sync.Mutex
	sess      transportLayer.Session
}

func NewClient(conf ClientConf) (*Client, error) {
	creator, err := transportLayer.GetCreator(conf.Variant)
	if err != nil {
		return nil, err
	}

	addr, err := netLayer.NewAddrByHostPort(conf.RelayAddr)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "bad relay address", ErrDetail: err}
	}
	if conf.Variant == "quic" {
		addr.Network = "udp"
	}

	tclient, err := creator.NewClientFromConf(&transportLayer.Conf{
		Addr:            addr,
		Host:            conf.Host,
		Token:           conf.Token,
		Insecure:        conf.Insecure,
		UtlsFingerprint: conf.UtlsFingerprint,
	})
	if err != nil {
		return nil, err
	}

	resolver, err := netLayer.NewResolver("", conf.Policy)
	if err != nil {
		return nil, err
	}

	if conf.AckTimeout <= 0 {
		conf.AckTimeout = DefaultControlReadTimeout
	}

	return &Client{
		conf:     conf,
		tclient:  tclient,
		resolver: resolver,
	}, nil
}

// 复用已有的加密会话, 没有或已失效时重新握手.
func (c *Client) getStream() (net.Conn, error) {
	c.sessMutex.Lock()
	defer c.sessMutex.Unlock()

	if c.sess != nil {
		stream, err := c.sess.OpenStream()
		if err == nil {
			return stream, nil
		}
		//会话已死, 丢弃后重拨
		c.sess.Close()
		c.sess = nil
	}

	sess, err := c.tclient.DialSession()
	if err != nil {
		c.emit(EventHandshakeFailed, ReasonNone)
		return nil, err
	}
	c.emit(EventHandshakeOK, ReasonNone)
	c.sess = sess

	return sess.OpenStream()
}

// OpenTunnel 打开一条到 target 的隧道, 返回不透明的双工字节通道.
//
// Mode 为 ResolveRemote 时, 域名随控制消息进入加密信道, 本函数保证
// 不触发任何本地解析; Mode 为 ResolveLocal 而 Policy 承诺 remote-only 时,
// 返回 netLayer.ErrDNSLeak 并拒绝继续 (fail closed).
func (c *Client) OpenTunnel(target netLayer.Addr) (net.Conn, error) {
	addr, err := c.resolver.ResolveForDial(target, c.conf.Mode)
	if err != nil {
		if err == netLayer.ErrDNSLeak {
			c.emit(EventResolutionFailed, ReasonLeakDetected)
		}
		return nil, err
	}

	stream, err := c.getStream()
	if err != nil {
		return nil, err
	}

	if err = WriteRequest(stream, TunnelRequest{Target: addr, Mode: c.conf.Mode}); err != nil {
		stream.Close()
		return nil, utils.ErrInErr{ErrDesc: "failed to send control message", ErrDetail: err}
	}

	stream.SetReadDeadline(time.Now().Add(c.conf.AckTimeout))
	ack, err := ReadAck(stream)
	stream.SetReadDeadline(time.Time{})
	if err != nil {
		stream.Close()
		return nil, utils.ErrInErr{ErrDesc: "failed to read control ack", ErrDetail: err}
	}

	if ackErr := AckToErr(ack); ackErr != nil {
		stream.Close()
		return nil, ackErr
	}

	return stream, nil
}

func (c *Client) Close() error {
	c.sessMutex.Lock()
	defer c.sessMutex.Unlock()

	if c.sess != nil {
		err := c.sess.Close()
		c.sess = nil
		return err
	}
	return nil
}
