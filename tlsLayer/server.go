package tlsLayer

import (
	"crypto/tls"
	"io"
	"net"

	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	"github.com/xtaci/smux"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type Server struct {
	addr      string
	tlsConfig *tls.Config

	listener net.Listener
	closed   bool
}

//若 conf.TlsConf 没给出证书，则会自动生成随机证书.
func NewServer(conf *transportLayer.Conf) (*Server, error) {

	tlsConf := conf.TlsConf
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	if len(tlsConf.Certificates) == 0 {
		tlsConf.Certificates = GenerateRandomTLSCert()
	}

	//服务端必须给出 http/1.1 等alpn, 否则容易被审查者察觉
	if !slices.Contains(tlsConf.NextProtos, "http/1.1") {
		tlsConf.NextProtos = append(tlsConf.NextProtos, "http/1.1")
	}
	if !slices.Contains(tlsConf.NextProtos, "h2") {
		tlsConf.NextProtos = append(tlsConf.NextProtos, "h2")
	}

	return &Server{
		addr:      conf.Addr.String(),
		tlsConfig: tlsConf,
	}, nil
}

func (*Server) Name() string { return Name }

func (s *Server) StartListen() (newStreamChan chan net.Conn, closer io.Closer, err error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, nil, utils.ErrInErr{ErrDesc: "tls listen failed", ErrDetail: err}
	}
	s.listener = listener

	newStreamChan = make(chan net.Conn, 10)

	go s.loopAccept(newStreamChan)

	return newStreamChan, listener, nil
}

func (s *Server) loopAccept(theChan chan net.Conn) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.closed {
				if ce := utils.CanLogErr("failed in tls accept"); ce != nil {
					ce.Write(zap.Error(err))
				}
			}
			return
		}

		go s.handshakeAndServe(conn, theChan)
	}
}

//阻塞. 握手失败只记抽象事件, 不记对端身份.
func (s *Server) handshakeAndServe(underlay net.Conn, theChan chan net.Conn) {
	tlsConn := tls.Server(underlay, s.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		if ce := utils.CanLogDebug("tls handshake failed"); ce != nil {
			ce.Write()
		}
		underlay.Close()
		return
	}

	smuxConfig := smux.DefaultConfig()
	smuxSession, err := smux.Server(tlsConn, smuxConfig)
	if err != nil {
		if ce := utils.CanLogErr("smux.Server call failed"); ce != nil {
			ce.Write(zap.Error(err))
		}
		tlsConn.Close()
		return
	}

	for {
		stream, err := smuxSession.AcceptStream()
		if err != nil {
			//会话结束或对端断开, 正常退出路径
			smuxSession.Close()
			tlsConn.Close()
			return
		}
		theChan <- stream
	}
}

func (s *Server) Stop() {
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}
