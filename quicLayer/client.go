package quicLayer

import (
	"crypto/tls"
	"net"

	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	"github.com/lucas-clemente/quic-go"
)

type Client struct {
	serverAddrStr string
	tlsConf       tls.Config
}

func NewClient(conf *transportLayer.Conf) *Client {
	host := conf.Host
	if host == "" {
		host = conf.Addr.HostStr()
	}

	return &Client{
		serverAddrStr: conf.Addr.String(),
		tlsConf: tls.Config{
			InsecureSkipVerify: conf.Insecure,
			ServerName:         host,
			NextProtos:         AlpnList,
		},
	}
}

func (*Client) Name() string { return Name }

// DialSession 拨号一个新的 quic.Connection. tls握手失败立即返回, 不重试.
func (c *Client) DialSession() (transportLayer.Session, error) {
	conn, err := quic.DialAddr(c.serverAddrStr, &c.tlsConf, &common_DialConfig)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "failed in quic handshake", ErrDetail: transportLayer.ErrHandshakeFailed}
	}

	return &session{
		state: &connState{Connection: conn, id: utils.GenerateUUID()},
	}, nil
}

type session struct {
	state *connState
}

func (s *session) OpenStream() (net.Conn, error) {
	if !isActive(s.state.Connection) {
		return nil, transportLayer.ErrSessionClosed
	}

	stream, err := s.state.OpenStream()
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "quic open stream failed", ErrDetail: transportLayer.ErrSessionClosed, Data: s.state.idStr()}
	}

	return &StreamConn{
		Stream:           stream,
		laddr:            s.state.LocalAddr(),
		raddr:            s.state.RemoteAddr(),
		relatedConnState: s.state,
	}, nil
}

func (s *session) Close() error {
	return s.state.CloseWithError(0, "")
}
