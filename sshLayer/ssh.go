/*
Package sshLayer implements the SSH-like transport variant, 基于 golang.org/x/crypto/ssh.

一条 Session 对应一个完成了密钥交换与认证的ssh连接, 每条流是其上的一个
自定义 channel. 认证使用预共享的 Token 作为密码.
*/
package sshLayer

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"go.uber.org/atomic"
	"golang.org/x/crypto/ssh"
)

const Name = "ssh"

// 我们自定义的 channel 类型名. 控制消息走 channel 内部的字节流,
// 不走 channel open 请求的 extra data, 这样三种变体的线上布局可以一致.
const channelType = "tunnel-stream"

func init() {
	transportLayer.ProtocolsMap[Name] = Creator{}
}

type Creator struct{}

func (Creator) NewClientFromConf(conf *transportLayer.Conf) (transportLayer.Client, error) {
	return NewClient(conf), nil
}

func (Creator) NewServerFromConf(conf *transportLayer.Conf) (transportLayer.Server, error) {
	return NewServer(conf)
}

//把 ssh.Channel 包装成 net.Conn. ssh.Channel 本身支持 CloseWrite,
// 半关可以穿过本变体传导.
//
// ssh.Channel 原生不支持 deadline, 而上层的控制读取超时必须在每种变体上
// 都真实生效, 否则一条握手后就保持沉默的流可以永久占住中继的并发名额.
// 所以这里用定时器兜底: deadline到期后直接关闭channel, 使阻塞的
// Read/Write 解除, 并向调用方返回 os.ErrDeadlineExceeded.
type channelConn struct {
	ssh.Channel
	laddr, raddr net.Addr

	mutex                 sync.Mutex
	readTimer, writeTimer *time.Timer
	expired               atomic.Bool
}

func newChannelConn(ch ssh.Channel, laddr, raddr net.Addr) *channelConn {
	return &channelConn{Channel: ch, laddr: laddr, raddr: raddr}
}

func (c *channelConn) LocalAddr() net.Addr  { return c.laddr }
func (c *channelConn) RemoteAddr() net.Addr { return c.raddr }

func (c *channelConn) Read(p []byte) (int, error) {
	n, err := c.Channel.Read(p)
	if err != nil && c.expired.Load() {
		return n, os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *channelConn) Write(p []byte) (int, error) {
	n, err := c.Channel.Write(p)
	if err != nil && c.expired.Load() {
		return n, os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *channelConn) Close() error {
	c.mutex.Lock()
	c.stopTimer(&c.readTimer)
	c.stopTimer(&c.writeTimer)
	c.mutex.Unlock()
	return c.Channel.Close()
}

func (c *channelConn) SetDeadline(t time.Time) error {
	c.SetReadDeadline(t)
	return c.SetWriteDeadline(t)
}

func (c *channelConn) SetReadDeadline(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.arm(&c.readTimer, t)
	return nil
}

func (c *channelConn) SetWriteDeadline(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.arm(&c.writeTimer, t)
	return nil
}

//调用者须持有 mutex
func (c *channelConn) arm(timer **time.Timer, t time.Time) {
	c.stopTimer(timer)
	if t.IsZero() {
		return
	}

	expire := func() {
		c.expired.Store(true)
		c.Channel.Close()
	}

	d := time.Until(t)
	if d <= 0 {
		expire()
		return
	}
	*timer = time.AfterFunc(d, expire)
}

//调用者须持有 mutex
func (c *channelConn) stopTimer(timer **time.Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}
