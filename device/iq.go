package device

// PackedBytesToIQ converts interleaved unsigned 8-bit I/Q bytes into complex
// samples scaled to [-1, 1]. A trailing odd byte is ignored.
func PackedBytesToIQ(b []byte) []complex128 {
	iq := make([]complex128, len(b)/2)
	for i := range iq {
		re := float64(b[2*i])/127.5 - 1
		im := float64(b[2*i+1])/127.5 - 1
		iq[i] = complex(re, im)
	}
	return iq
}
