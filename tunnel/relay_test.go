package tunnel_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	_ "github.com/e1732a364fed/tunnel_simple/sshLayer"
	_ "github.com/e1732a364fed/tunnel_simple/tlsLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/tunnel"
)

//起一个本地echo服务作为隧道目标
func startEchoServer(t *testing.T) (netLayer.Addr, func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				io.Copy(c, c)
				c.Close()
			}(conn)
		}
	}()

	addr, err := netLayer.NewAddr(listener.Addr().String())
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	return addr, func() { listener.Close() }
}

func startRelay(t *testing.T, variant string, conf tunnel.RelayConf) (*tunnel.Relay, string, *netLayer.Resolver) {
	creator, err := transportLayer.GetCreator(variant)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	addrStr := netLayer.GetRandLocalAddr()
	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	server, err := creator.NewServerFromConf(&transportLayer.Conf{Addr: addr})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	resolver, err := netLayer.NewResolver("", netLayer.PolicyAny)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	relay := tunnel.NewRelay(server, resolver, conf)
	if err = relay.Start(); err != nil {
		t.Log(err)
		t.FailNow()
	}
	return relay, addrStr, resolver
}

func newTestClient(t *testing.T, relayAddr string) *tunnel.Client {
	client, err := tunnel.NewClient(tunnel.ClientConf{
		RelayAddr: relayAddr,
		Variant:   "tls",
		Mode:      netLayer.ResolveRemote,
		Insecure:  true,
	})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	return client
}

// 整条链路: client -> tls+smux -> relay -> echo. 目标以域名形式走remote解析,
// 验证字节原样通过, 且过程中发出的事件不含目标域名或解析出的地址的任何部分.
func TestRelay_EndToEnd(t *testing.T) {
	echoAddr, stopEcho := startEchoServer(t)
	defer stopEcho()

	relay, relayAddr, resolver := startRelay(t, "tls", tunnel.RelayConf{})
	defer relay.Stop()

	//remote模式下域名在中继端解析; 把中继端解析钉死到echo服务的ip
	resolver.LookupIPFunc = func(ctx context.Context, host string) ([]net.IP, error) {
		return []net.IP{echoAddr.IP}, nil
	}

	var recordMutex sync.Mutex
	var records []string
	relay.AddEventSink(func(e tunnel.Event, detail tunnel.Reason) {
		recordMutex.Lock()
		records = append(records, string(e)+" "+string(detail))
		recordMutex.Unlock()
	})

	client := newTestClient(t, relayAddr)
	defer client.Close()

	target := netLayer.Addr{Name: "example.test", Port: echoAddr.Port}
	stream, err := client.OpenTunnel(target)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	payload := make([]byte, 4096)
	rand.Read(payload)

	if _, err = stream.Write(payload); err != nil {
		t.Log(err)
		t.FailNow()
	}

	got := make([]byte, len(payload))
	if _, err = io.ReadFull(stream, got); err != nil {
		t.Log(err)
		t.FailNow()
	}
	if !bytes.Equal(got, payload) {
		t.Log("payload corrupted in transit")
		t.FailNow()
	}

	stream.Close()
	time.Sleep(time.Millisecond * 100)

	if relay.TotalTunnels.Load() != 1 {
		t.Log("expected 1 total tunnel, got", relay.TotalTunnels.Load())
		t.FailNow()
	}

	recordMutex.Lock()
	defer recordMutex.Unlock()
	if len(records) == 0 {
		t.Log("no events emitted")
		t.FailNow()
	}
	resolved := echoAddr.IP.String()
	for _, rec := range records {
		if strings.Contains(rec, "example.test") || strings.Contains(rec, resolved) {
			t.Log("event leaked target identity:", rec)
			t.FailNow()
		}
	}
}

// 残缺的控制消息必须让中继回 rejected 并关闭, 且不触发任何出站拨号.
func TestRelay_MalformedControl(t *testing.T) {
	relay, relayAddr, _ := startRelay(t, "tls", tunnel.RelayConf{})
	defer relay.Stop()

	var dialCount int32
	origDial := relay.DialFunc
	relay.DialFunc = func(addr netLayer.Addr, timeout time.Duration) (net.Conn, error) {
		dialCount++
		return origDial(addr, timeout)
	}

	creator, _ := transportLayer.GetCreator("tls")
	addr, _ := netLayer.NewAddrByHostPort(relayAddr)
	tclient, err := creator.NewClientFromConf(&transportLayer.Conf{Addr: addr, Insecure: true})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	sess, err := tclient.DialSession()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer sess.Close()

	stream, err := sess.OpenStream()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	//声称长度1, 连最短的合法消息都不够
	if _, err = stream.Write([]byte{0x00, 0x01, 0xff}); err != nil {
		t.Log(err)
		t.FailNow()
	}

	stream.SetReadDeadline(time.Now().Add(time.Second * 3))
	ack, err := tunnel.ReadAck(stream)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	if ack != tunnel.AckRejected {
		t.Log("expected AckRejected, got", ack)
		t.FailNow()
	}

	if dialCount != 0 {
		t.Log("relay dialed out despite malformed control")
		t.FailNow()
	}
}

// ssh变体上, 一条握手后保持沉默的流必须在控制读取超时后被回收,
// 不能永久占住在册名额与并发名额.
func TestRelay_SilentStreamReleasesSlot(t *testing.T) {
	target, stopEcho := startEchoServer(t)
	defer stopEcho()

	relay, relayAddr, _ := startRelay(t, "ssh", tunnel.RelayConf{
		MaxTunnelCount:     1,
		ControlReadTimeout: time.Millisecond * 200,
	})
	defer relay.Stop()

	creator, _ := transportLayer.GetCreator("ssh")
	addr, _ := netLayer.NewAddrByHostPort(relayAddr)
	tclient, err := creator.NewClientFromConf(&transportLayer.Conf{Addr: addr})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	sess, err := tclient.DialSession()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer sess.Close()

	//打开流之后一言不发
	if _, err = sess.OpenStream(); err != nil {
		t.Log(err)
		t.FailNow()
	}

	time.Sleep(time.Second)

	if n := relay.ConnCount(); n != 0 {
		t.Log("silent stream still registered after 5x control timeout, ConnCount =", n)
		t.FailNow()
	}

	//名额已释放, 正常的隧道必须还能建立
	client, err := tunnel.NewClient(tunnel.ClientConf{
		RelayAddr: relayAddr,
		Variant:   "ssh",
		Mode:      netLayer.ResolveRemote,
	})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer client.Close()

	stream, err := client.OpenTunnel(target)
	if err != nil {
		t.Log("tunnel after silent stream should succeed:", err)
		t.FailNow()
	}
	stream.Close()
}

// remote-only 策略下的本地解析请求必须在客户端一侧失败,
// 并以 leak_detected 事件暴露 (事件里同样不含目标身份).
func TestClient_LeakDetection(t *testing.T) {
	client, err := tunnel.NewClient(tunnel.ClientConf{
		RelayAddr: netLayer.GetRandLocalAddr(), //不会被拨号
		Variant:   "tls",
		Mode:      netLayer.ResolveLocal,
		Policy:    netLayer.PolicyRemoteOnly,
		Insecure:  true,
	})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer client.Close()

	var events []string
	client.AddEventSink(func(e tunnel.Event, detail tunnel.Reason) {
		events = append(events, string(e)+" "+string(detail))
	})

	_, err = client.OpenTunnel(netLayer.Addr{Name: "example.test", Port: 443})
	if err != netLayer.ErrDNSLeak {
		t.Log("expected ErrDNSLeak, got", err)
		t.FailNow()
	}

	found := false
	for _, ev := range events {
		if strings.Contains(ev, "example.test") {
			t.Log("event leaked target identity:", ev)
			t.FailNow()
		}
		if ev == string(tunnel.EventResolutionFailed)+" "+string(tunnel.ReasonLeakDetected) {
			found = true
		}
	}
	if !found {
		t.Log("no leak_detected event emitted, got", events)
		t.FailNow()
	}
}

// 并发上限为1时, 第二条并发隧道应被立刻拒绝, 不排队.
func TestRelay_AdmissionControl(t *testing.T) {
	target, stopEcho := startEchoServer(t)
	defer stopEcho()

	relay, relayAddr, _ := startRelay(t, "tls", tunnel.RelayConf{MaxTunnelCount: 1})
	defer relay.Stop()

	client := newTestClient(t, relayAddr)
	defer client.Close()

	first, err := client.OpenTunnel(target)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer first.Close()

	//第一条隧道还开着, 第二条必须吃到busy
	_, err = client.OpenTunnel(target)
	if err != tunnel.ErrCapacityExceeded {
		t.Log("expected ErrCapacityExceeded, got", err)
		t.FailNow()
	}

	first.Close()
	time.Sleep(time.Millisecond * 200)

	third, err := client.OpenTunnel(target)
	if err != nil {
		t.Log("tunnel after release should succeed:", err)
		t.FailNow()
	}
	third.Close()
}
