package quicLayer

import (
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/e1732a364fed/tunnel_simple/tlsLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	"github.com/lucas-clemente/quic-go"
	"go.uber.org/zap"
)

type Server struct {
	addr    string
	tlsConf *tls.Config

	listener quic.Listener
	closed   bool
}

//若 conf.TlsConf 没给出证书，则会自动生成随机证书.
func NewServer(conf *transportLayer.Conf) (*Server, error) {
	tlsConf := conf.TlsConf
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	if len(tlsConf.Certificates) == 0 {
		tlsConf.Certificates = tlsLayer.GenerateRandomTLSCert()
	}
	tlsConf.NextProtos = AlpnList

	return &Server{
		addr:    conf.Addr.String(),
		tlsConf: tlsConf,
	}, nil
}

func (*Server) Name() string { return Name }

func (s *Server) StartListen() (newStreamChan chan net.Conn, closer io.Closer, err error) {

	//自己listen udp而不是调用 quic.ListenAddr, 为以后自定义socket选项留位置.
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return nil, nil, utils.ErrInErr{ErrDesc: "failed in quic ResolveUDPAddr", ErrDetail: err}
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, nil, utils.ErrInErr{ErrDesc: "failed in quic listen udp", ErrDetail: err}
	}

	listener, err := quic.Listen(conn, s.tlsConf, &common_ListenConfig)
	if err != nil {
		conn.Close()
		return nil, nil, utils.ErrInErr{ErrDesc: "failed in quic listen", ErrDetail: err}
	}
	s.listener = listener

	newStreamChan = make(chan net.Conn, 10)

	go s.loopAccept(newStreamChan)

	return newStreamChan, listener, nil
}

//阻塞
func (s *Server) loopAccept(theChan chan net.Conn) {
	for {
		conn, err := s.listener.Accept(context.Background())
		if err != nil {
			if !s.closed {
				if ce := utils.CanLogErr("failed in quic accept"); ce != nil {
					ce.Write(zap.Error(err))
				}
			}
			return
		}

		go dealNewConn(conn, theChan)
	}
}

//阻塞
func dealNewConn(conn quic.Connection, theChan chan net.Conn) {
	state := &connState{Connection: conn, id: utils.GenerateUUID()}

	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			//只要某个连接idle时间一长，超过了idleTimeout，服务端就会出现
			// quic.IdleTimeoutError. 这不能说是错误, 而是quic的udp特性所致,
			// 所以放到debug输出中.
			if ce := utils.CanLogDebug("failed in quic stream accept"); ce != nil {
				ce.Write(zap.String("conn", state.idStr()), zap.Error(err))
			}
			break
		}
		theChan <- &StreamConn{
			Stream:           stream,
			laddr:            conn.LocalAddr(),
			raddr:            conn.RemoteAddr(),
			relatedConnState: state,
		}
	}
}

func (s *Server) Stop() {
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}
