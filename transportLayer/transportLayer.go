/*
Package transportLayer abstracts the encrypted channels that carry control and
relayed bytes between client and relay.

具体的变体 (sshLayer, tlsLayer, quicLayer) 是同一能力集的可互换实现, 在各自的
init 中注册到 ProtocolsMap. 变体之间不共享任何可变的握手状态.

结构性约束: 本层的任何接口都只搬运不透明的字节流 (net.Conn), 不存在
"把隧道内字节解析成应用层结构" 的操作. 这是盲转发隐私保证的基础.
*/
package transportLayer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
)

var (
	ErrHandshakeFailed = errors.New("transport handshake failed")
	ErrSessionClosed   = errors.New("transport session closed")
)

var ProtocolsMap = make(map[string]Creator)

func PrintAllProtocolNames() {
	fmt.Printf("===============================\nSupported transport variants:\n")
	for _, v := range utils.GetMapSortedKeySlice(ProtocolsMap) {
		fmt.Print(v)
		fmt.Print("\n")
	}
}

// GetCreator 按变体名 ("ssh", "tls", "quic") 返回已注册的 Creator.
func GetCreator(name string) (Creator, error) {
	c, ok := ProtocolsMap[name]
	if !ok {
		return nil, utils.ErrInErr{ErrDesc: "unknown transport variant", Data: name}
	}
	return c, nil
}

type Creator interface {
	NewClientFromConf(conf *Conf) (Client, error)
	NewServerFromConf(conf *Conf) (Server, error)
}

// Conf 是各变体共用的配置.
type Conf struct {
	Addr netLayer.Addr //客户端的拨号地址 或 服务端的监听地址

	Host     string //tls sni / ssh user
	Token    string //预共享的认证凭据
	Insecure bool

	TlsConf *tls.Config //for quic and tls

	UtlsFingerprint string //tls变体专用, 见 tlsLayer
}

// Client 是某变体的客户端一侧. 先 DialSession 完成加密握手,
// 之后可在 Session 上开启任意多条互不影响的字节流.
type Client interface {
	Name() string

	//进行一次完整的加密握手. 认证失败或协议版本不匹配时立即失败, 不重试.
	DialSession() (Session, error)
}

// Session 拥有底层的字节通道. 同一时刻只被 创建它的 Client 或 middle端持有.
// Close 保证底层socket与加密状态在任何退出路径上都被释放.
type Session interface {
	//开启一条新的不透明双工字节流
	OpenStream() (net.Conn, error)

	Close() error
}

// Server 是某变体的监听一侧. StartListen 返回的 chan 产出 已完成加密握手的
// 流; 握手失败只以抽象事件记录, 不携带对端身份.
type Server interface {
	Name() string

	StartListen() (newStreamChan chan net.Conn, closer io.Closer, err error)

	Stop()
}
