package tunnel

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
)

// TunnelRequest 每条隧道只发送一次, 创建后不可变.
type TunnelRequest struct {
	Target netLayer.Addr
	Mode   netLayer.ResolveMode
}

// 控制消息的线上布局 (实现自选, 对外只承诺语义字段):
//
//	uint16 BE 长度 L (不含自身, 最大 MaxControlLen), 随后 L 字节:
//	  byte 版本 = 1
//	  byte 解析模式 (0 local, 1 remote)
//	  byte atyp (netLayer.AtypIP4 / AtypDomain / AtypIP6)
//	  地址  ipv4: 4字节 | ipv6: 16字节 | 域名: 1字节长度+内容
//	  uint16 BE 端口
//
// 应答是单字节 ack, 见 Ack 常量. 非零 ack 之后流会被关闭.
const (
	ControlVersion byte = 1

	// 3字节头 + 1字节域名长 + 最长255字节域名 + 2字节端口
	MaxControlLen = 3 + 1 + 255 + 2
)

const (
	AckOK byte = iota
	AckRejected
	AckResolveFailed
	AckConnectFailed
	AckBusy
)

// WriteRequest 把 req 编码为一条长度前缀的控制消息写入 w.
func WriteRequest(w io.Writer, req TunnelRequest) error {
	target := req.Target

	if target.IsEmpty() || target.Port <= 0 || target.Port > 65535 {
		return ErrMalformedControl
	}

	buf := utils.GetMTU()[:0]
	defer utils.PutBytes(buf)
	buf = append(buf, 0, 0) //长度占位
	buf = append(buf, ControlVersion, byte(req.Mode))

	switch target.AType() {
	case netLayer.AtypIP4:
		buf = append(buf, netLayer.AtypIP4)
		buf = append(buf, target.IP.To4()...)
	case netLayer.AtypIP6:
		buf = append(buf, netLayer.AtypIP6)
		buf = append(buf, target.IP.To16()...)
	case netLayer.AtypDomain:
		if len(target.Name) > 255 {
			return ErrMalformedControl
		}
		buf = append(buf, netLayer.AtypDomain, byte(len(target.Name)))
		buf = append(buf, target.Name...)
	}

	buf = append(buf, byte(target.Port>>8), byte(target.Port))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(buf)-2))

	_, err := w.Write(buf)
	return err
}

// ReadRequest 从 r 读取恰好一条控制消息. 任何残缺、超长或版本不符都返回
// ErrMalformedControl, 调用方应当直接关闭会话, 不做部分恢复.
func ReadRequest(r io.Reader) (req TunnelRequest, err error) {
	var lenBuf [2]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return req, ErrMalformedControl
	}

	l := int(binary.BigEndian.Uint16(lenBuf[:]))
	if l < 3+1+1+2 || l > MaxControlLen {
		//最短的合法消息是单字符域名: 头3字节+域名长1字节+域名1字节+端口2字节.
		// 各atyp更精确的长度校验在下面按类型进行.
		return req, ErrMalformedControl
	}

	buf := utils.GetMTU()[:l]
	defer utils.PutBytes(buf)
	if _, err = io.ReadFull(r, buf); err != nil {
		return req, ErrMalformedControl
	}

	if buf[0] != ControlVersion {
		return req, ErrMalformedControl
	}

	switch netLayer.ResolveMode(buf[1]) {
	case netLayer.ResolveLocal, netLayer.ResolveRemote:
		req.Mode = netLayer.ResolveMode(buf[1])
	default:
		return req, ErrMalformedControl
	}

	rest := buf[3:]
	switch buf[2] {
	case netLayer.AtypIP4:
		if len(rest) != 4+2 {
			return req, ErrMalformedControl
		}
		//buf来自缓冲池, 不能被返回值继续引用, 必须拷出
		req.Target.IP = append(net.IP{}, rest[:4]...)
		rest = rest[4:]
	case netLayer.AtypIP6:
		if len(rest) != 16+2 {
			return req, ErrMalformedControl
		}
		req.Target.IP = append(net.IP{}, rest[:16]...)
		rest = rest[16:]
	case netLayer.AtypDomain:
		if len(rest) < 1 {
			return req, ErrMalformedControl
		}
		nameLen := int(rest[0])
		if nameLen == 0 || len(rest) != 1+nameLen+2 {
			return req, ErrMalformedControl
		}
		req.Target.Name = string(rest[1 : 1+nameLen])
		rest = rest[1+nameLen:]
	default:
		return req, ErrMalformedControl
	}

	req.Target.Port = int(binary.BigEndian.Uint16(rest))
	if req.Target.Port == 0 {
		return req, ErrMalformedControl
	}
	req.Target.Network = "tcp"

	return req, nil
}

func WriteAck(w io.Writer, code byte) error {
	_, err := w.Write([]byte{code})
	return err
}

func ReadAck(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// AckToErr 把非零ack映射回错误.
func AckToErr(code byte) error {
	switch code {
	case AckOK:
		return nil
	case AckResolveFailed:
		return ErrResolveFailed
	case AckConnectFailed:
		return ErrConnectFailed
	case AckBusy:
		return ErrCapacityExceeded
	default:
		return ErrRejected
	}
}
