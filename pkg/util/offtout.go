package util

// PutInt64LE encodes x into buf (must be at least 8 bytes) as a 64-bit
// sign-magnitude little-endian integer: the low 63 bits of buf hold
// |x| and the top bit of buf[7] holds its sign. This is the BSDIFF40
// control-stream encoding (spec: streaming format is little-endian).
func PutInt64LE(x int64, buf []byte) {
	y := x
	if y < 0 {
		y = -y
	}
	for i := 0; i < 8; i++ {
		buf[i] = byte(y & 0xff)
		y >>= 8
	}
	if x < 0 {
		buf[7] |= 0x80
	}
}

// GetInt64LE decodes a sign-magnitude little-endian int64 written by
// PutInt64LE.
func GetInt64LE(buf []byte) int64 {
	y := int64(buf[7] & 0x7f)
	for i := 6; i >= 0; i-- {
		y = y*256 + int64(buf[i])
	}
	if buf[7]&0x80 != 0 {
		y = -y
	}
	return y
}

// PutInt32BE encodes x into buf (must be at least 4 bytes) as a 32-bit
// sign-magnitude big-endian integer: buf[0] is the most significant byte
// and its top bit carries the sign. This is the BSDIFFSX per-record seek
// field encoding (spec: seekable format is big-endian).
func PutInt32BE(x int32, buf []byte) {
	y := x
	if y < 0 {
		y = -y
	}
	buf[0] = byte((y >> 24) & 0x7f)
	buf[1] = byte((y >> 16) & 0xff)
	buf[2] = byte((y >> 8) & 0xff)
	buf[3] = byte(y & 0xff)
	if x < 0 {
		buf[0] |= 0x80
	}
}

// GetInt32BE decodes a sign-magnitude big-endian int32 written by
// PutInt32BE.
func GetInt32BE(buf []byte) int32 {
	neg := buf[0]&0x80 != 0
	y := int32(buf[0]&0x7f)<<24 | int32(buf[1])<<16 | int32(buf[2])<<8 | int32(buf[3])
	if neg {
		y = -y
	}
	return y
}

// PutUint64BE encodes x as a plain (not sign-magnitude) 64-bit big-endian
// unsigned integer, used for the BSDIFFSX outer header's size fields.
func PutUint64BE(x uint64, buf []byte) {
	for i := 7; i >= 0; i-- {
		buf[i] = byte(x & 0xff)
		x >>= 8
	}
}

// GetUint64BE decodes a plain 64-bit big-endian unsigned integer.
func GetUint64BE(buf []byte) uint64 {
	var x uint64
	for i := 0; i < 8; i++ {
		x = x<<8 | uint64(buf[i])
	}
	return x
}

// PutUint32BE encodes x as a plain 32-bit big-endian unsigned integer.
func PutUint32BE(x uint32, buf []byte) {
	buf[0] = byte(x >> 24)
	buf[1] = byte(x >> 16)
	buf[2] = byte(x >> 8)
	buf[3] = byte(x)
}

// GetUint32BE decodes a plain 32-bit big-endian unsigned integer.
func GetUint32BE(buf []byte) uint32 {
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
}
