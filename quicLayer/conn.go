package quicLayer

import (
	"net"

	"github.com/e1732a364fed/tunnel_simple/utils"
	"github.com/lucas-clemente/quic-go"
)

// 对 quic.Connection 的一个包装, 附带一个本地随机id供日志标识该连接.
type connState struct {
	quic.Connection
	id [16]byte
}

func (cs *connState) idStr() string {
	return utils.UUIDToStr(cs.id[:])
}

//给 quic.Stream 添加方法使其满足 net.Conn.
// quic.Stream 唯独不支持 LocalAddr 和 RemoteAddr 方法, 因为它通过 StreamID
// 来识别连接. 不过connection是有的.
type StreamConn struct {
	quic.Stream
	laddr, raddr     net.Addr
	relatedConnState *connState
	isclosed         bool
}

func (sc *StreamConn) LocalAddr() net.Addr {
	return sc.laddr
}
func (sc *StreamConn) RemoteAddr() net.Addr {
	return sc.raddr
}

// CloseWrite 优雅地关闭发送方向 (FIN), 读方向保持可用.
// quic.Stream 的 Close 本身就只关闭发送侧, 正好用来传导半关.
func (sc *StreamConn) CloseWrite() error {
	return sc.Stream.Close()
}

//这里必须要同时调用 CancelRead 和 Close,
// 因为quic的stream是双工的, Close实际上只关闭了写方向.
func (sc *StreamConn) Close() error {
	if sc.isclosed {
		return nil
	}
	sc.isclosed = true
	sc.CancelRead(quic.StreamErrorCode(quic.ConnectionRefused))
	return sc.Stream.Close()
}
