package utils

import (
	"crypto/rand"
	"encoding/hex"
)

const UUID_BytesLen = 16

// 用于日志中标识连接/会话. 本地随机生成, 与任何对端身份无关.
func UUIDToStr(u []byte) string {
	if len(u) != UUID_BytesLen {
		return ""
	}
	buf := make([]byte, 36)
	hex.Encode(buf[0:8], u[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], u[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], u[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], u[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:], u[10:])
	return string(buf)
}

//生成完全随机的uuid
func GenerateUUID() (r [UUID_BytesLen]byte) {
	rand.Reader.Read(r[:])
	return
}
