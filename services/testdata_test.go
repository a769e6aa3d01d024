package services

// minimalFLAC returns a FLAC stream holding only a STREAMINFO block:
// 44.1kHz, stereo, 16-bit, 441000 samples (10 seconds).
func minimalFLAC() []byte {
	header := []byte("fLaC\x80\x00\x00\x22")
	streamInfo := []byte{
		0x10, 0x00, 0x10, 0x00, // min/max block size
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // min/max frame size
		0x0A, 0xC4, 0x42, 0xF0, 0x00, 0x06, 0xBA, 0xA8, // rate, channels, bps, samples
	}
	md5 := make([]byte, 16)
	return append(append(header, streamInfo...), md5...)
}
