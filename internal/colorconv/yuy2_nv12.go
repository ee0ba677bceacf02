// Package colorconv implements the pixel-format conversion stage of the
// capture pipeline (spec.md §4.4): packed 4:2:2 YUY2 to planar NV12.
package colorconv

import "github.com/wtvlabs/bmdcastd/internal/bmderrors"

// YUY2Stride returns the byte stride of a YUY2 row of the given pixel
// width (2 bytes per pixel, packed).
func YUY2Stride(width int) int { return width * 2 }

// NV12Planes holds the two output planes of a YUY2->NV12 conversion, each
// with its own stride (may differ from a tightly-packed row when the
// destination surface imposes alignment).
type NV12Planes struct {
	Y       []byte
	YStride int
	UV      []byte
	UVStride int
}

// ConvertYUY2ToNV12 converts one full frame of packed YUY2 (src, row stride
// srcStride, dimensions width x height) into the pre-sized Y and UV planes
// of dst. Width and height must both be even (spec.md §4.4); odd dimensions
// return a Param error, and a src or dst too short for the geometry returns
// a Range error.
//
// For each pair of adjacent rows (r, r+1) and each pair of adjacent pixels
// (c, c+1) within a row:
//
//	Y[r,c]   = src[r, 4*(c/2)+1]
//	Y[r,c+1] = src[r, 4*(c/2)+3]
//	UV[r/2, 2k]   = (src[r,4k]   + src[r+1,4k])   + 1) / 2
//	UV[r/2, 2k+1] = (src[r,4k+2] + src[r+1,4k+2]) + 1) / 2
//
// Chroma is averaged vertically with round-half-up; it is not averaged
// horizontally, since 4:2:2 source is already subsampled on that axis.
func ConvertYUY2ToNV12(src []byte, srcStride, width, height int, dst NV12Planes) error {
	if width%2 != 0 || height%2 != 0 {
		return bmderrors.New(bmderrors.Param, "colorconv.convert_yuy2_to_nv12", nil)
	}
	if len(src) < srcStride*height {
		return bmderrors.New(bmderrors.Range, "colorconv.convert_yuy2_to_nv12", nil)
	}
	if len(dst.Y) < dst.YStride*height || len(dst.UV) < dst.UVStride*(height/2) {
		return bmderrors.New(bmderrors.Range, "colorconv.convert_yuy2_to_nv12", nil)
	}

	for r := 0; r < height; r += 2 {
		row0 := src[r*srcStride : (r+1)*srcStride]
		row1 := src[(r+1)*srcStride : (r+2)*srcStride]
		y0 := dst.Y[r*dst.YStride : r*dst.YStride+width]
		y1 := dst.Y[(r+1)*dst.YStride : (r+1)*dst.YStride+width]
		uv := dst.UV[(r/2)*dst.UVStride : (r/2)*dst.UVStride+width]

		for c := 0; c < width; c += 2 {
			k := c / 2
			y0[c] = row0[4*k+1]
			y0[c+1] = row0[4*k+3]
			y1[c] = row1[4*k+1]
			y1[c+1] = row1[4*k+3]

			uv[2*k] = avgRoundHalfUp(row0[4*k], row1[4*k])
			uv[2*k+1] = avgRoundHalfUp(row0[4*k+2], row1[4*k+2])
		}
	}
	return nil
}

func avgRoundHalfUp(a, b byte) byte {
	return byte((uint16(a) + uint16(b) + 1) / 2)
}
