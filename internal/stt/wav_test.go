package stt

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_HeaderFields(t *testing.T) {
	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	buf := EncodeWAV(pcm)

	if len(buf) != 44+len(pcm) {
		t.Fatalf("expected total length %d, got %d", 44+len(pcm), len(buf))
	}
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers")
	}

	byteRate := binary.LittleEndian.Uint32(buf[28:32])
	wantByteRate := uint32(SampleRate * Channels * BitsPerSample / 8)
	if byteRate != wantByteRate {
		t.Errorf("expected byteRate %d, got %d", wantByteRate, byteRate)
	}

	dataLen := binary.LittleEndian.Uint32(buf[40:44])
	if dataLen != uint32(len(pcm)) {
		t.Errorf("expected data length %d, got %d", len(pcm), dataLen)
	}
	if string(buf[44:]) != string(pcm) {
		t.Errorf("data section does not match original PCM")
	}
}
