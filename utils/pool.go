package utils

import (
	"sync"
)

var (
	standardBytesPool sync.Pool //专门储存 长度为 StandardBytesLength 的 []byte

	// tcp默认是 16384, 16k，实际上范围是1k～128k之间;
	// io.Copy 内部默认buffer大小为 32k. 总之 我们64k已经够了
	standardPacketPool sync.Pool // 专门储存 长度为 MaxBufLen 的 []byte
)

//即MTU, Maximum transmission unit, 参照的是 Ethernet v2 的MTU
const StandardBytesLength int = 1500

const MaxBufLen = 64 * 1024

func init() {
	standardBytesPool = sync.Pool{
		New: func() any {
			return make([]byte, StandardBytesLength)
		},
	}

	standardPacketPool = sync.Pool{
		New: func() any {
			return make([]byte, MaxBufLen)
		},
	}
}

//建议在 Read net.Conn 时, 使用 GetPacket函数 获取到足够大的 []byte（MaxBufLen）
func GetPacket() []byte {
	return standardPacketPool.Get().([]byte)
}

// 放回用 GetPacket 获取的 []byte
func PutPacket(bs []byte) {
	c := cap(bs)
	if c < MaxBufLen {
		if c >= StandardBytesLength {
			standardBytesPool.Put(bs[:StandardBytesLength])
		}
		return
	}

	standardPacketPool.Put(bs[:MaxBufLen])
}

// 从Pool中获取一个 StandardBytesLength 长度的 []byte
func GetMTU() []byte {
	return standardBytesPool.Get().([]byte)
}

// 根据bs长度 选择放入各种pool中, 只有 cap(bs)>=1500 才会被处理
func PutBytes(bs []byte) {
	c := cap(bs)
	if c < StandardBytesLength {
		return
	} else if c < MaxBufLen {
		standardBytesPool.Put(bs[:StandardBytesLength])
	} else {
		standardPacketPool.Put(bs[:MaxBufLen])
	}
}
