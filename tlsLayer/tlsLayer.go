/*
Package tlsLayer implements the TLS-like transport variant.

一条 Session 对应一个 tcp+tls 连接, 其上用 smux 复用任意多条流, 与 quic/ssh
变体的原生多流能力对齐. 客户端可选用 utls 模拟常见浏览器的 ClientHello 指纹.
*/
package tlsLayer

import (
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
)

const Name = "tls"

func init() {
	transportLayer.ProtocolsMap[Name] = Creator{}
}

type Creator struct{}

func (Creator) NewClientFromConf(conf *transportLayer.Conf) (transportLayer.Client, error) {
	return NewClient(conf), nil
}

func (Creator) NewServerFromConf(conf *transportLayer.Conf) (transportLayer.Server, error) {
	return NewServer(conf)
}
