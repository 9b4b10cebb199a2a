package protocol

// crc8Table is the nibble lookup table for the polynomial x^8+x^5+x^3+x^2+x+1
// (Koopman), chosen over the standard CRC-8 polynomial for its better
// Hamming distance at short message lengths. Ported from
// original_source/utility/crc.c.
var crc8Table = [16]uint8{
	0, 47, 94, 113, 188, 147, 226, 205, 87, 120, 9, 38, 235, 196, 181, 154,
}

// crc8Update feeds data through the streaming CRC-8, nibble at a time,
// continuing from crc (use 0 as the seed for a fresh computation).
func crc8Update(crc uint8, data byte) uint8 {
	for _, nibble := range [2]uint8{data >> 4, data & 0x0f} {
		index := nibble ^ (crc >> 4)
		crc = crc8Table[index&0xf] ^ (crc << 4)
	}
	return crc
}

// crc8Bytes streams an entire slice through crc8Update.
func crc8Bytes(crc uint8, data []byte) uint8 {
	for _, b := range data {
		crc = crc8Update(crc, b)
	}
	return crc
}

// crc8Parity returns the trailing byte that, appended to data, makes the
// streaming CRC-8 of the whole sequence (starting from a fresh crc=0)
// residual zero — the outgoing frame's parity byte. A well-formed CRC
// update is a bijection from trailer byte to final register value for a
// fixed running CRC, so exactly one candidate zeroes the residual.
func crc8Parity(data []byte) uint8 {
	running := crc8Bytes(0, data)
	for p := 0; p < 256; p++ {
		if crc8Update(running, uint8(p)) == 0 {
			return uint8(p)
		}
	}
	// Unreachable for a correctly constructed CRC table.
	return 0
}
