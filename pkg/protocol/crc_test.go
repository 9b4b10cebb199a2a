package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC8ParityZeroesResidual(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		{0x01, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB, 0xCC},
	}
	for _, data := range cases {
		parity := crc8Parity(data)
		full := append(append([]byte{}, data...), parity)
		require.Equal(t, uint8(0), crc8Bytes(0, full))
	}
}

func TestCRC8UpdateDeterministic(t *testing.T) {
	var a, b uint8
	data := []byte{1, 2, 3, 4, 5}
	for _, x := range data {
		a = crc8Update(a, x)
	}
	b = crc8Bytes(0, data)
	require.Equal(t, a, b)
}
