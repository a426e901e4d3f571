package netLayer

import (
	mathrand "math/rand"
	"net"
	"runtime"
	"strconv"
	"strings"
)

// Atyp, 控制消息中使用的地址类型
const (
	AtypIP4    byte = 1
	AtypDomain byte = 2
	AtypIP6    byte = 3
)

// Addr represents an address that you want to access by tunnel.
// Either Name or IP is used exclusively. 一旦完成解析, 只有IP会被继续传递,
// Name 不会在解析完毕后被持久保存.
type Addr struct {
	Network string
	Name    string // domain name
	IP      net.IP
	Port    int
}

var (
	randPortBase int = 60000
)

func init() {
	if runtime.GOOS == "windows" {
		randPortBase = 45000 //windows在测试中发现高于五万的端口经常被占用
	}
}

//if mustValid is true, a valid port is assured.
// depth 填0 即可，用于递归。
func RandPort(mustValid bool, depth int) (p int) {
	p = mathrand.Intn(randPortBase) + 4096
	if !mustValid {
		return
	}

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.IPv4(0, 0, 0, 0),
		Port: p,
	})

	if listener != nil {
		listener.Close()
	}
	if err != nil {
		if depth < 20 {
			return RandPort(mustValid, depth+1)
		}
	}

	return
}

func RandPortStr(mustValid bool) string {
	return strconv.Itoa(RandPort(mustValid, 0))
}

func GetRandLocalAddr() string {
	return "127.0.0.1:" + RandPortStr(true)
}

//addrStr格式一般为 host:port
func NewAddr(addrStr string) (Addr, error) {
	if !strings.Contains(addrStr, ":") {
		return Addr{Name: addrStr}, nil
	}

	return NewAddrByHostPort(addrStr)
}

//hostPortStr格式 必须为 host:port
func NewAddrByHostPort(hostPortStr string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostPortStr)
	if err != nil {
		return Addr{}, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, err
	}

	a := Addr{Port: port}
	if ip := net.ParseIP(host); ip != nil {
		a.IP = ip
	} else {
		a.Name = host
	}
	return a, nil
}

// 返回 ip:port 或 host:port 的字符串
func (a Addr) String() string {
	return net.JoinHostPort(a.HostStr(), strconv.Itoa(a.Port))
}

// 优先返回ip的字符串形式, 若ip为空则返回Name
func (a Addr) HostStr() string {
	if a.IP != nil {
		return a.IP.String()
	}
	return a.Name
}

// AType returns AtypIP4, AtypIP6 or AtypDomain.
func (a Addr) AType() byte {
	if a.IP != nil {
		if a.IP.To4() != nil {
			return AtypIP4
		}
		return AtypIP6
	}
	return AtypDomain
}

func (a Addr) IsEmpty() bool {
	return a.IP == nil && a.Name == ""
}

// Resolved reports whether the address no longer requires name resolution.
func (a Addr) Resolved() bool {
	return a.IP != nil
}
