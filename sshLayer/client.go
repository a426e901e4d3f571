package sshLayer

import (
	"net"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
	"golang.org/x/crypto/ssh"
)

type Client struct {
	addr   netLayer.Addr
	config *ssh.ClientConfig
}

func NewClient(conf *transportLayer.Conf) *Client {
	user := conf.Host
	if user == "" {
		user = "tunnel"
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(conf.Token),
		},
		Timeout: netLayer.DefaultDialTimeout,

		// 中继端每次启动生成随机host key, 身份靠Token保证
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	return &Client{
		addr:   conf.Addr,
		config: config,
	}
}

func (*Client) Name() string { return Name }

func (c *Client) DialSession() (transportLayer.Session, error) {
	underlay, err := c.addr.Dial()
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "ssh dial failed", ErrDetail: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(underlay, c.addr.String(), c.config)
	if err != nil {
		underlay.Close()
		return nil, utils.ErrInErr{ErrDesc: "failed in ssh handshake", ErrDetail: transportLayer.ErrHandshakeFailed}
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	return &session{client: client}, nil
}

type session struct {
	client *ssh.Client
}

func (s *session) OpenStream() (net.Conn, error) {
	ch, reqs, err := s.client.OpenChannel(channelType, nil)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "ssh open channel failed", ErrDetail: transportLayer.ErrSessionClosed}
	}
	go ssh.DiscardRequests(reqs)

	return newChannelConn(ch, s.client.LocalAddr(), s.client.RemoteAddr()), nil
}

func (s *session) Close() error {
	return s.client.Close()
}
