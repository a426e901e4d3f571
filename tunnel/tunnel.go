/*
Package tunnel implements the blind forward-proxy tunnel protocol: 客户端通过
一条加密的 transportLayer 流发送一次 CONNECT式 控制消息, 中继端解析出目标,
建立出站连接, 此后变成一根纯粹的双向字节管道.

中继对隧道内的字节不做任何解析、缓存或检视; 整个转发路径上不存在以
内容为条件的分支. 中继的日志与事件里也绝不出现目标的域名或ip.
*/
package tunnel

import (
	"errors"
	"time"
)

var (
	//控制消息残缺、超长或版本未知. 控制信道不是一个宽容的协议,
	// 任何歧义都按恶意输入处理, 不尝试部分恢复.
	ErrMalformedControl = errors.New("malformed control message")

	ErrRejected = errors.New("tunnel rejected")

	ErrResolveFailed = errors.New("tunnel resolve failed")

	ErrConnectFailed = errors.New("tunnel connect failed")

	//到达并发上限时新隧道立刻得到该错误, 而不是排队等待.
	ErrCapacityExceeded = errors.New("relay capacity exceeded")
)

const (
	DefaultControlReadTimeout = time.Second * 8
	DefaultResolveTimeout     = time.Second * 5
	DefaultConnectTimeout     = time.Second * 15
	DefaultLingerTimeout      = time.Second * 5

	DefaultMaxTunnelCount = 256
)
