package sshLayer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"io"
	"net"

	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

type Server struct {
	addr   string
	config *ssh.ServerConfig

	listener net.Listener
	closed   bool
}

func NewServer(conf *transportLayer.Conf) (*Server, error) {
	token := conf.Token

	config := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if subtle.ConstantTimeCompare(pass, []byte(token)) == 1 {
				return nil, nil
			}
			//这里不能返回nil err, 否则认证会被放行
			return nil, transportLayer.ErrHandshakeFailed
		},
	}

	//每次启动生成随机host key. 被动探测者看到的只是一个普通的ssh服务.
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		return nil, err
	}
	config.AddHostKey(signer)

	return &Server{
		addr:   conf.Addr.String(),
		config: config,
	}, nil
}

func (*Server) Name() string { return Name }

func (s *Server) StartListen() (newStreamChan chan net.Conn, closer io.Closer, err error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, nil, utils.ErrInErr{ErrDesc: "ssh listen failed", ErrDetail: err}
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
				if ce := utils.CanLogErr("failed in ssh accept"); ce != nil {
					ce.Write(zap.Error(err))
				}
			}
			return
		}

		go s.handshakeAndServe(conn, theChan)
	}
}

//阻塞. 认证失败或密钥交换失败只记抽象事件.
func (s *Server) handshakeAndServe(underlay net.Conn, theChan chan net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(underlay, s.config)
	if err != nil {
		if ce := utils.CanLogDebug("ssh handshake failed"); ce != nil {
			ce.Write()
		}
		underlay.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != channelType {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		ch, chReqs, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go ssh.DiscardRequests(chReqs)

		theChan <- newChannelConn(ch, sshConn.LocalAddr(), sshConn.RemoteAddr())
	}

	sshConn.Close()
}

func (s *Server) Stop() {
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}
