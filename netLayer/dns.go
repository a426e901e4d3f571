package netLayer

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/e1732a364fed/tunnel_simple/utils"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// ResolveMode 指定 域名解析发生在哪一端.
type ResolveMode byte

const (
	// ResolveLocal 在客户端本地解析, 解析好的ip再进入隧道. 这是客户端
	// 一个有意的信任取舍 (比如分流场景), 但域名会以DNS查询的形式
	// 离开加密信道.
	ResolveLocal ResolveMode = 0

	// ResolveRemote 时域名在加密的控制消息内travel到中继端, 由中继端
	// 在它自己的网络上解析; 客户端绝不对该域名做任何本地查询.
	ResolveRemote ResolveMode = 1
)

func (m ResolveMode) String() string {
	switch m {
	case ResolveLocal:
		return "local"
	case ResolveRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// DnsPolicy 是客户端配置承诺的解析策略.
type DnsPolicy byte

const (
	PolicyAny DnsPolicy = iota

	// PolicyRemoteOnly 承诺解析只发生在中继端. 与 ResolveLocal 同时出现
	// 即构成泄漏, Resolver 会 fail closed 而不是悄悄地本地解析.
	PolicyRemoteOnly
)

var (
	ErrDNSLeak     = errors.New("dns leak detected: local resolution attempted under remote-only policy")
	ErrDNSNotFound = errors.New("dns record not found")
	ErrRecursion   = errors.New("multiple recursion not allowed")

	// 系统解析器的错误串里会带上被查询的域名, 不能原样向上传递,
	// 统一折叠成这个不携带身份的错误.
	ErrDNSQueryFailed = errors.New("dns query failed")
)

// Resolver 决定 域名到地址 的解析在哪里发生, 并监测会把目标身份
// 泄漏到加密信道之外的解析尝试.
//
// 域名不会被缓存: 任何以域名为key的缓存都能反向恢复出目标身份,
// 与本作的威胁模型冲突, 所以干脆不做.
type Resolver struct {
	Policy  DnsPolicy
	Timeout time.Duration

	upstream *DnsConn //为nil时使用系统解析器

	// 系统解析器入口, 可在测试中替换以探测本地解析调用
	LookupIPFunc func(ctx context.Context, host string) ([]net.IP, error)
}

// upstreamAddr 可为空, 为空时中继端解析使用系统解析器;
// 非空时格式为 host:port, 会通过udp与该dns服务器通信.
func NewResolver(upstreamAddr string, policy DnsPolicy) (*Resolver, error) {
	r := &Resolver{
		Policy:  policy,
		Timeout: time.Second * 5,
		LookupIPFunc: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", host)
		},
	}

	if upstreamAddr != "" {
		raddr, err := NewAddrByHostPort(upstreamAddr)
		if err != nil {
			return nil, utils.ErrInErr{ErrDesc: "failed to parse dns upstream addr", ErrDetail: err}
		}
		raddr.Network = "udp"
		r.upstream = &DnsConn{raddr: raddr}
	}

	return r, nil
}

// ResolveForDial 是客户端侧入口. mode 为 ResolveRemote 时 不做任何本地查询,
// 原样返回 addr, 域名将在控制消息内由中继端解析; mode 为 ResolveLocal 时
// 先核对 Policy, PolicyRemoteOnly 下直接返回 ErrDNSLeak, 绝不继续解析.
func (r *Resolver) ResolveForDial(addr Addr, mode ResolveMode) (Addr, error) {
	if addr.Resolved() {
		return addr, nil
	}

	switch mode {
	case ResolveRemote:
		return addr, nil
	case ResolveLocal:
		if r.Policy == PolicyRemoteOnly {
			return Addr{}, ErrDNSLeak
		}
		return r.ResolveHere(addr)
	default:
		return Addr{}, utils.ErrWrongParameter
	}
}

// ResolveHere 在本机网络上实际执行解析, 在中继端被用于 ResolveRemote 的请求.
// 解析成功后返回的 Addr 只携带ip, 不再携带域名.
func (r *Resolver) ResolveHere(addr Addr) (Addr, error) {
	if addr.Resolved() {
		return addr, nil
	}
	if addr.Name == "" {
		return Addr{}, utils.ErrNilParameter
	}

	var ip net.IP
	var err error

	if r.upstream != nil {
		ip, err = r.queryUpstream(addr.Name)
	} else {
		ip, err = r.querySystem(addr.Name)
	}
	if err != nil {
		return Addr{}, err
	}

	//解析完毕, 域名到此为止: 返回值不保留 Name
	return Addr{
		Network: addr.Network,
		IP:      ip,
		Port:    addr.Port,
	}, nil
}

func (r *Resolver) querySystem(host string) (net.IP, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = time.Second * 5
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ips, err := r.LookupIPFunc(ctx, host)
	if err != nil {
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				return nil, ErrDNSNotFound
			}
			if de.IsTimeout {
				return nil, ErrTimeout
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrDNSQueryFailed
	}
	if len(ips) == 0 {
		return nil, ErrDNSNotFound
	}
	return ips[0], nil
}

func (r *Resolver) queryUpstream(host string) (net.IP, error) {
	fqdn := dns.Fqdn(host)

	ip, _, err := r.upstream.Query(fqdn, dns.TypeA, 0)
	if err == os.ErrNotExist || err == dns.ErrRcode {
		ip, _, err = r.upstream.Query(fqdn, dns.TypeAAAA, 0)
	}
	if err != nil {
		switch err {
		case os.ErrNotExist, dns.ErrRcode, ErrRecursion:
			return nil, ErrDNSNotFound
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return ip, nil
}

// DnsConn 维持与一个dns服务器的连接 (最好是udp这种无状态的).
type DnsConn struct {
	conn  *dns.Conn
	raddr Addr

	// 可保证同一时间仅有一个对 dns.Conn 的使用, 这样就不会造成并发时的混乱
	mutex sync.Mutex
}

func (c *DnsConn) dial() error {
	nc, err := c.raddr.Dial()
	if err != nil {
		return err
	}
	c.conn = &dns.Conn{Conn: nc}
	return nil
}

// Query 向上游查询一条记录. domain必须是 dns.Fqdn 包装过的.
// recursionCount 使用者统一填0即可, 用于内部遇到cname时防止无限递归.
//
// 成功读取回应后可能返回 os.ErrNotExist (查无此记录), dns.ErrRcode
// (Rcode 不是 success), ErrRecursion; 其它错误则是连接本身的故障.
// 注意日志里只出现rcode等抽象信息, 决不能出现被查询的域名.
func (c *DnsConn) Query(domain string, dnsType uint16, recursionCount int) (ip net.IP, ttl uint32, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn == nil {
		if err = c.dial(); err != nil {
			return
		}
	}

	m := new(dns.Msg)
	m.SetQuestion(domain, dnsType)
	client := new(dns.Client)

	r, _, err := client.ExchangeWithConn(m, c.conn)

	if r == nil {
		if ce := utils.CanLogErr("dns query read err"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return
	}

	if r.Rcode != dns.RcodeSuccess {
		if ce := utils.CanLogDebug("dns query code err"); ce != nil {
			//dns查不到的情况是很有可能的，所以还是放在debug日志里
			ce.Write(zap.Int("rcode", r.Rcode))
		}
		err = dns.ErrRcode
		return
	}

	switch dnsType {
	case dns.TypeA:
		for _, a := range r.Answer {
			if aa, ok := a.(*dns.A); ok {
				return aa.A, aa.Hdr.Ttl, nil
			}
		}
	case dns.TypeAAAA:
		for _, a := range r.Answer {
			if aa, ok := a.(*dns.AAAA); ok {
				return aa.AAAA, aa.Hdr.Ttl, nil
			}
		}
	}

	//没A和4A那就查cname在不在
	for _, a := range r.Answer {
		if aa, ok := a.(*dns.CNAME); ok {
			if recursionCount > 2 {
				//不准循环递归; 有可能两个域名cname相互指向对方
				err = ErrRecursion
				return
			}

			c.mutex.Unlock()
			ip, ttl, err = c.Query(dns.Fqdn(aa.Target), dnsType, recursionCount+1)
			c.mutex.Lock()
			return
		}
	}

	err = os.ErrNotExist
	return
}
