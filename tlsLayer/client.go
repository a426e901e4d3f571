package tlsLayer

import (
	"crypto/tls"
	"net"
	"strings"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	utls "github.com/refraction-networking/utls"
	"github.com/xtaci/smux"
)

type Client struct {
	addr netLayer.Addr

	tlsConfig  *tls.Config
	uTlsConfig utls.Config
	useUtls    bool

	utlsFingerprint utls.ClientHelloID
}

func NewClient(conf *transportLayer.Conf) *Client {

	c := &Client{
		addr: conf.Addr,
	}

	host := conf.Host
	if host == "" {
		host = conf.Addr.HostStr()
	}

	if conf.UtlsFingerprint != "" {
		c.useUtls = true
		c.uTlsConfig = utls.Config{
			ServerName:         host,
			InsecureSkipVerify: conf.Insecure,
		}

		switch strings.ToLower(conf.UtlsFingerprint) {
		case "chrome":
			fallthrough
		default:
			c.utlsFingerprint = utls.HelloChrome_Auto
		case "firefox":
			c.utlsFingerprint = utls.HelloFirefox_Auto
		case "ios":
			c.utlsFingerprint = utls.HelloIOS_Auto
		case "safari":
			c.utlsFingerprint = utls.HelloSafari_Auto
		case "golang":
			c.utlsFingerprint = utls.HelloGolang
		case "android":
			c.utlsFingerprint = utls.HelloAndroid_11_OkHttp
		case "edge":
			c.utlsFingerprint = utls.HelloEdge_Auto
		case "random":
			c.utlsFingerprint = utls.HelloRandomized
		}

	} else {
		if conf.TlsConf != nil {
			c.tlsConfig = conf.TlsConf
		} else {
			c.tlsConfig = &tls.Config{
				ServerName:         host,
				InsecureSkipVerify: conf.Insecure,
			}
		}
	}

	return c
}

func (*Client) Name() string { return Name }

// DialSession 拨号并完成tls握手, 然后在其上建立smux会话.
// 握手失败立即返回, 不重试.
func (c *Client) DialSession() (transportLayer.Session, error) {
	underlay, err := c.addr.Dial()
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "tls dial failed", ErrDetail: err}
	}

	var tlsConn net.Conn

	if c.useUtls {
		//uTlsConfig没法使用指针，握手一次后配置会被污染，只能拷贝
		configCopy := c.uTlsConfig

		utlsConn := utls.UClient(underlay, &configCopy, c.utlsFingerprint)
		if err = utlsConn.Handshake(); err != nil {
			underlay.Close()
			return nil, utils.ErrInErr{ErrDesc: "failed in tls handshake", ErrDetail: transportLayer.ErrHandshakeFailed}
		}
		tlsConn = utlsConn
	} else {
		officialConn := tls.Client(underlay, c.tlsConfig)
		if err = officialConn.Handshake(); err != nil {
			underlay.Close()
			return nil, utils.ErrInErr{ErrDesc: "failed in tls handshake", ErrDetail: transportLayer.ErrHandshakeFailed}
		}
		tlsConn = officialConn
	}

	smuxConfig := smux.DefaultConfig()
	smuxSession, err := smux.Client(tlsConn, smuxConfig)
	if err != nil {
		tlsConn.Close()
		return nil, utils.ErrInErr{ErrDesc: "smux.Client call failed", ErrDetail: err}
	}

	return &session{smux: smuxSession, underlay: tlsConn}, nil
}

type session struct {
	smux     *smux.Session
	underlay net.Conn
}

func (s *session) OpenStream() (net.Conn, error) {
	stream, err := s.smux.OpenStream()
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "tls session open stream failed", ErrDetail: transportLayer.ErrSessionClosed}
	}
	return stream, nil
}

func (s *session) Close() error {
	s.smux.Close()
	return s.underlay.Close()
}
