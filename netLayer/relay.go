package netLayer

import (
	"io"
	"time"

	"github.com/e1732a364fed/tunnel_simple/utils"
	"go.uber.org/zap"
)

// CloseWriter is implemented by connections that support half-close,
// 如 *net.TCPConn, *tls.Conn, smux.Stream 等.
type CloseWriter interface {
	CloseWrite() error
}

// TryCloseWrite 尝试半关; 若 c 不支持半关则什么也不做.
func TryCloseWrite(c any) {
	if cw, ok := c.(CloseWriter); ok {
		cw.CloseWrite()
	}
}

// 从 src 循环读取并写入 dst, 直到EOF或错误. 读到EOF后对 dst 半关, 使EOF传导到对端.
// 本函数 绝不解析 所拷贝的字节; 这里的代码路径上不存在任何以内容为条件的分支.
func copyThenCloseWrite(dst io.Writer, src io.Reader) (n int64, err error) {
	buf := utils.GetPacket()
	n, err = io.CopyBuffer(dst, src, buf)
	utils.PutPacket(buf)

	TryCloseWrite(dst)
	return
}

// RelayPipe 在 wlc 与 wrc 之间进行双向盲转发, 阻塞直到两个方向都结束.
//
// 两个方向独立并发地拷贝, 单方向内字节保序. 一方读到EOF后会对另一方半关,
// 而剩下的方向还允许继续排空, 最多 linger 时长, 到期后双方都会被强制关闭.
// 关闭任何一方一定会连带关闭另一方, 不会有资源比它的对端活得久.
//
// 返回 wlc->wrc 与 wrc->wlc 两个方向各自搬运的字节数.
func RelayPipe(wlc, wrc io.ReadWriteCloser, linger time.Duration) (up, down int64) {
	if linger <= 0 {
		linger = DefaultLingerTimeout
	}

	done := make(chan struct{}, 2)

	go func() {
		up, _ = copyThenCloseWrite(wrc, wlc)
		done <- struct{}{}
	}()
	go func() {
		down, _ = copyThenCloseWrite(wlc, wrc)
		done <- struct{}{}
	}()

	<-done
	finished := 1

	t := time.NewTimer(linger)
	select {
	case <-done:
		finished++
		t.Stop()
	case <-t.C:
		//linger超时, 强关双方, 使未结束方向的 Read/Write 解除阻塞
	}

	wlc.Close()
	wrc.Close()

	for finished < 2 {
		<-done
		finished++
	}

	if ce := utils.CanLogDebug("relay pipe finished"); ce != nil {
		ce.Write(zap.Int64("up", up), zap.Int64("down", down))
	}

	return
}
