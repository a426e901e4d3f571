package tlsLayer_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/tlsLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
)

func dialAndEcho(t *testing.T, conf *transportLayer.Conf, streamChan chan net.Conn) {
	client := tlsLayer.NewClient(conf)
	sess, err := client.DialSession()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer sess.Close()

	cs, err := sess.OpenStream()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	payload := make([]byte, 4096)
	rand.Read(payload)
	go func() {
		cs.Write(payload)
	}()

	var ss net.Conn
	select {
	case ss = <-streamChan:
	case <-time.After(time.Second * 3):
		t.Log("server got no stream")
		t.FailNow()
	}

	got := make([]byte, len(payload))
	if _, err = io.ReadFull(ss, got); err != nil {
		t.Log(err)
		t.FailNow()
	}
	if !bytes.Equal(got, payload) {
		t.Log("payload corrupted")
		t.FailNow()
	}

	go func() {
		ss.Write(payload)
	}()
	if _, err = io.ReadFull(cs, got); err != nil {
		t.Log(err)
		t.FailNow()
	}
	if !bytes.Equal(got, payload) {
		t.Log("payload corrupted (downstream)")
		t.FailNow()
	}
}

func TestTls(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	server, err := tlsLayer.NewServer(&transportLayer.Conf{Addr: addr})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	streamChan, closer, err := server.StartListen()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer closer.Close()
	defer server.Stop()

	dialAndEcho(t, &transportLayer.Conf{Addr: addr, Insecure: true}, streamChan)
}

func TestTls_Utls(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, _ := netLayer.NewAddrByHostPort(addrStr)

	server, err := tlsLayer.NewServer(&transportLayer.Conf{Addr: addr})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	streamChan, closer, err := server.StartListen()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer closer.Close()
	defer server.Stop()

	//uTls模拟的ClientHello也要能和标准tls服务端完成握手
	for _, fp := range []string{"chrome", "firefox", "ios"} {
		dialAndEcho(t, &transportLayer.Conf{Addr: addr, Insecure: true, UtlsFingerprint: fp}, streamChan)
	}
}

func TestTls_MultiStreamOneSession(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, _ := netLayer.NewAddrByHostPort(addrStr)

	server, err := tlsLayer.NewServer(&transportLayer.Conf{Addr: addr})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	streamChan, closer, err := server.StartListen()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer closer.Close()
	defer server.Stop()

	client := tlsLayer.NewClient(&transportLayer.Conf{Addr: addr, Insecure: true})
	sess, err := client.DialSession()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer sess.Close()

	const streamCount = 4
	for i := 0; i < streamCount; i++ {
		cs, err := sess.OpenStream()
		if err != nil {
			t.Log(err)
			t.FailNow()
		}
		if _, err = cs.Write([]byte{byte(i)}); err != nil {
			t.Log(err)
			t.FailNow()
		}
	}

	seen := make(map[byte]bool)
	for i := 0; i < streamCount; i++ {
		select {
		case ss := <-streamChan:
			var b [1]byte
			if _, err := io.ReadFull(ss, b[:]); err != nil {
				t.Log(err)
				t.FailNow()
			}
			seen[b[0]] = true
		case <-time.After(time.Second * 3):
			t.Log("missing streams, got", len(seen))
			t.FailNow()
		}
	}
	if len(seen) != streamCount {
		t.Log("duplicate or lost streams", seen)
		t.FailNow()
	}
}
