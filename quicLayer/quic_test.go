package quicLayer_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/quicLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
)

func TestQuic(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	addr.Network = "udp"

	server, err := quicLayer.NewServer(&transportLayer.Conf{Addr: addr})
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

	client := quicLayer.NewClient(&transportLayer.Conf{Addr: addr, Insecure: true})
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

	//quic的流在对端写入首字节前不会被Accept, 先写再收
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

	//半关: CloseWrite 发送FIN, 对端排空缓冲后读到EOF
	netLayer.TryCloseWrite(cs)
	if _, err = ss.Read(got); err != io.EOF {
		t.Log("expected EOF after CloseWrite, got", err)
		t.FailNow()
	}
}

func TestQuic_MultiStream(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, _ := netLayer.NewAddrByHostPort(addrStr)
	addr.Network = "udp"

	server, err := quicLayer.NewServer(&transportLayer.Conf{Addr: addr})
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

	client := quicLayer.NewClient(&transportLayer.Conf{Addr: addr, Insecure: true})
	sess, err := client.DialSession()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer sess.Close()

	//同一会话上的多条流互不干扰
	const streamCount = 4
	for i := 0; i < streamCount; i++ {
		cs, err := sess.OpenStream()
		if err != nil {
			t.Log(err)
			t.FailNow()
		}
		msg := []byte{byte(i)}
		if _, err = cs.Write(msg); err != nil {
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
