/*
Package netLayer contains definitions in network layer AND transport layer.

本包有 地址结构, 拨号, DNS解析 与 盲转发 (relay) 的功能.

转发部分不对流量做任何解析或分流; 这里的代码路径上不存在任何
以被转发字节内容为条件的分支.
*/
package netLayer

import (
	"errors"
	"time"
)

var (
	ErrTimeout = errors.New("timeout")
)

const (
	// 从客户端读取控制信息的最长等待时间
	DefaultControlReadTimeout = time.Second * 8

	// 对目标地址的出站拨号超时
	DefaultDialTimeout = time.Second * 15

	// 一方EOF后, 另一方向还允许继续排空的时长
	DefaultLingerTimeout = time.Second * 5
)
