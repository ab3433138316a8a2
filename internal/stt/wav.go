package stt

import "encoding/binary"

// WAV format parameters for the gateway's fixed wire format: 16kHz, mono,
// signed 16-bit little-endian PCM.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)

// EncodeWAV wraps raw PCM bytes in a canonical 44-byte RIFF/WAV header for
// 16kHz mono 16-bit PCM: byte rate = sampleRate*channels*bitsPerSample/8,
// data length = len(pcm).
func EncodeWAV(pcm []byte) []byte {
	const headerLen = 44
	byteRate := SampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8
	dataLen := uint32(len(pcm))

	buf := make([]byte, headerLen+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataLen)
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(BitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataLen)

	copy(buf[44:], pcm)
	return buf
}
