package sshLayer_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/sshLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
)

func TestSSH(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.Log(err)
		t.FailNow()
	}

	conf := &transportLayer.Conf{Addr: addr, Token: "testtoken123"}

	server, err := sshLayer.NewServer(conf)
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

	client := sshLayer.NewClient(conf)
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

	var ss io.ReadWriteCloser
	select {
	case ss = <-streamChan:
	case <-time.After(time.Second * 3):
		t.Log("server got no stream")
		t.FailNow()
	}

	payload := make([]byte, 2048)
	rand.Read(payload)

	go func() {
		cs.Write(payload)
	}()

	got := make([]byte, len(payload))
	if _, err = io.ReadFull(ss, got); err != nil {
		t.Log(err)
		t.FailNow()
	}
	if !bytes.Equal(got, payload) {
		t.Log("payload corrupted")
		t.FailNow()
	}

	//反方向
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

	//半关: 客户端关写后服务端应读到EOF
	netLayer.TryCloseWrite(cs)
	if _, err = ss.Read(got); err != io.EOF {
		t.Log("expected EOF after CloseWrite, got", err)
		t.FailNow()
	}
}

// 对端保持沉默时, 读deadline必须真实生效, 不能无声地变成永久阻塞.
func TestSSH_ReadDeadline(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, _ := netLayer.NewAddrByHostPort(addrStr)

	conf := &transportLayer.Conf{Addr: addr, Token: "testtoken123"}

	server, err := sshLayer.NewServer(conf)
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

	client := sshLayer.NewClient(conf)
	sess, err := client.DialSession()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer sess.Close()

	if _, err = sess.OpenStream(); err != nil {
		t.Log(err)
		t.FailNow()
	}

	var ss net.Conn
	select {
	case ss = <-streamChan:
	case <-time.After(time.Second * 3):
		t.Log("server got no stream")
		t.FailNow()
	}

	ss.SetReadDeadline(time.Now().Add(time.Millisecond * 200))

	start := time.Now()
	_, err = ss.Read(make([]byte, 1))
	elapsed := time.Since(start)

	if err == nil {
		t.Log("read of a silent stream returned without error")
		t.FailNow()
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Log("expected ErrDeadlineExceeded, got", err)
		t.FailNow()
	}
	if elapsed > time.Second*2 {
		t.Log("deadline not enforced, read blocked for", elapsed)
		t.FailNow()
	}
}

func TestSSH_BadToken(t *testing.T) {
	addrStr := netLayer.GetRandLocalAddr()
	addr, _ := netLayer.NewAddrByHostPort(addrStr)

	server, err := sshLayer.NewServer(&transportLayer.Conf{Addr: addr, Token: "right"})
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	_, closer, err := server.StartListen()
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer closer.Close()
	defer server.Stop()

	client := sshLayer.NewClient(&transportLayer.Conf{Addr: addr, Token: "wrong"})
	if _, err = client.DialSession(); err == nil {
		t.Log("handshake with wrong token should fail")
		t.FailNow()
	}
}
