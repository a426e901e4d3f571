/*
Package quicLayer implements the QUIC-like transport variant, 基于 quic-go.

quic 自带 tls 握手与原生多流, 一条 Session 对应一个 quic.Connection.
*/
package quicLayer

import (
	"time"

	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/lucas-clemente/quic-go"
)

const Name = "quic"

func init() {
	transportLayer.ProtocolsMap[Name] = Creator{}
}

const (
	common_maxidletimeout       = time.Second * 45
	common_HandshakeIdleTimeout = time.Second * 8
	common_ConnectionIDLength   = 12

	//一个 Connection 中 stream越多, 性能越低, 因此我们这里限制一下
	server_maxStreamCountInOneConn = 64
)

var (
	AlpnList = []string{"h3"}

	common_ListenConfig = quic.Config{
		ConnectionIDLength:    common_ConnectionIDLength,
		HandshakeIdleTimeout:  common_HandshakeIdleTimeout,
		MaxIdleTimeout:        common_maxidletimeout,
		MaxIncomingStreams:    server_maxStreamCountInOneConn,
		MaxIncomingUniStreams: -1,
		KeepAlive:             true,
	}

	common_DialConfig = quic.Config{
		ConnectionIDLength:   common_ConnectionIDLength,
		HandshakeIdleTimeout: common_HandshakeIdleTimeout,
		MaxIdleTimeout:       common_maxidletimeout,
		KeepAlive:            true,
	}
)

func isActive(c quic.Connection) bool {
	select {
	case <-c.Context().Done():
		return false
	default:
		return true
	}
}

type Creator struct{}

func (Creator) NewClientFromConf(conf *transportLayer.Conf) (transportLayer.Client, error) {
	return NewClient(conf), nil
}

func (Creator) NewServerFromConf(conf *transportLayer.Conf) (transportLayer.Server, error) {
	return NewServer(conf)
}
