package colorconv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConvertYUY2ToNV12ExactScenario is spec.md §8 concrete scenario 5:
// input 2x2 pixels [10,20,30,40, 50,60,70,80] row-major (stride=4)
// converts to Y=[20,40,60,80] and UV=[30,50].
func TestConvertYUY2ToNV12ExactScenario(t *testing.T) {
	src := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	dst := NV12Planes{
		Y:        make([]byte, 4),
		YStride:  2,
		UV:       make([]byte, 2),
		UVStride: 2,
	}

	err := ConvertYUY2ToNV12(src, 4, 2, 2, dst)
	require.NoError(t, err)
	require.Equal(t, []byte{20, 40, 60, 80}, dst.Y)
	require.Equal(t, []byte{30, 50}, dst.UV)
}

func TestConvertYUY2ToNV12RejectsOddDimensions(t *testing.T) {
	dst := NV12Planes{Y: make([]byte, 16), YStride: 4, UV: make([]byte, 8), UVStride: 4}
	err := ConvertYUY2ToNV12(make([]byte, 64), 8, 3, 2, dst)
	require.Error(t, err)
}

func TestConvertYUY2ToNV12RejectsShortSource(t *testing.T) {
	dst := NV12Planes{Y: make([]byte, 4), YStride: 2, UV: make([]byte, 2), UVStride: 2}
	err := ConvertYUY2ToNV12([]byte{1, 2, 3}, 4, 2, 2, dst)
	require.Error(t, err)
}

func TestConvertYUY2ToNV12HonorsDestinationStride(t *testing.T) {
	// 4x2 frame, YUY2 stride = 8 bytes/row (4 pixels * 2 bytes).
	src := []byte{
		10, 20, 30, 40, 50, 60, 70, 80,
		11, 21, 31, 41, 51, 61, 71, 81,
	}
	dst := NV12Planes{
		Y:        make([]byte, 2*6), // padded stride of 6 for a 4px-wide plane
		YStride:  6,
		UV:       make([]byte, 1*6),
		UVStride: 6,
	}
	err := ConvertYUY2ToNV12(src, 8, 4, 2, dst)
	require.NoError(t, err)
	require.Equal(t, []byte{20, 40, 60, 80, 0, 0}, dst.Y[0:6])
	require.Equal(t, []byte{21, 41, 61, 81, 0, 0}, dst.Y[6:12])
}

func TestAvgRoundHalfUp(t *testing.T) {
	require.Equal(t, byte(30), avgRoundHalfUp(10, 50))
	require.Equal(t, byte(50), avgRoundHalfUp(30, 70))
	// round-half-up: (1+2+1)/2 = 2, not 1.
	require.Equal(t, byte(2), avgRoundHalfUp(1, 2))
}
