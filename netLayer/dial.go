package netLayer

import (
	"net"
	"time"
)

// Dial 拨号 一个已解析好的 Addr. 若 addr 未解析(还带有域名), 会退回到
// net.DialTimeout, 由系统解析器处理; 调用方若承诺了 remote-only 解析策略,
// 必须保证传入的addr已解析, 见 dns.go.
func (addr Addr) Dial() (net.Conn, error) {
	return addr.DialWithTimeout(DefaultDialTimeout)
}

func (addr Addr) DialWithTimeout(timeout time.Duration) (net.Conn, error) {
	network := addr.Network
	if network == "" {
		network = "tcp"
	}

	return net.DialTimeout(network, addr.String(), timeout)
}
