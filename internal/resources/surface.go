package resources

// surface.go implements a Surface resource entirely in host memory, standing
// in for panda-kernel/src/resource/window.rs's WindowResource (which
// delegates pixel storage to the compositor). Grounded on window.rs's
// Surface impl for the info/blit/fill/flush method shapes; the bounds
// checking itself is new, since spec.md §8's Surface-bounds-safety invariant
// (reject any blit/fill whose geometry overflows or exceeds the surface,
// without reading memory) is stricter than anything window.rs enforces.

import (
	"math/bits"

	"github.com/smoynes/panda/internal/res"
)

// MemSurface is an ARGB8888 pixel buffer a process can blit, fill, and flush.
type MemSurface struct {
	info   res.SurfaceInfo
	pixels []byte // len == stride * height
}

// NewMemSurface creates a zeroed surface of the given dimensions.
func NewMemSurface(width, height int) *MemSurface {
	stride := width * 4

	return &MemSurface{
		info:   res.SurfaceInfo{Width: width, Height: height, Format: res.PixelFormatARGB8888, Stride: stride},
		pixels: make([]byte, stride*height),
	}
}

func (s *MemSurface) Info() res.SurfaceInfo { return s.info }

// Blit copies an src-strided rectangle of pixels into the surface at (x, y).
// Every dimension is checked for overflow and for exceeding the surface
// before any memory is touched, per spec.md §8.
func (s *MemSurface) Blit(x, y, w, h int, pixels []byte, srcStride int) error {
	if x < 0 || y < 0 || w < 0 || h < 0 || srcStride < 0 {
		return res.ErrNotSupported
	}

	right, overflow := addOverflows(x, w)
	if overflow || right > s.info.Width {
		return res.ErrNotSupported
	}

	bottom, overflow := addOverflows(y, h)
	if overflow || bottom > s.info.Height {
		return res.ErrNotSupported
	}

	rowBytes, overflow := mulOverflows(srcStride, h)
	if overflow {
		return res.ErrNotSupported
	}

	if rowBytes > len(pixels) {
		return res.ErrNotSupported
	}

	for row := 0; row < h; row++ {
		srcOff, overflow := mulOverflows(row, srcStride)
		if overflow || srcOff+w*4 > len(pixels) {
			return res.ErrNotSupported
		}

		dstOff := (y+row)*s.info.Stride + x*4
		copy(s.pixels[dstOff:dstOff+w*4], pixels[srcOff:srcOff+w*4])
	}

	return nil
}

// Fill paints a solid colour rectangle, bounds-checked the same way as Blit.
func (s *MemSurface) Fill(x, y, w, h int, colour uint32) error {
	if x < 0 || y < 0 || w < 0 || h < 0 {
		return res.ErrNotSupported
	}

	right, overflow := addOverflows(x, w)
	if overflow || right > s.info.Width {
		return res.ErrNotSupported
	}

	bottom, overflow := addOverflows(y, h)
	if overflow || bottom > s.info.Height {
		return res.ErrNotSupported
	}

	px := []byte{byte(colour >> 16), byte(colour >> 8), byte(colour), byte(colour >> 24)}

	for row := y; row < y+h; row++ {
		dstOff := row*s.info.Stride + x*4

		for col := 0; col < w; col++ {
			copy(s.pixels[dstOff+col*4:dstOff+col*4+4], px)
		}
	}

	return nil
}

// Flush is a no-op: MemSurface has no separate presentation step, since there
// is no real display backing it.
func (s *MemSurface) Flush(rect *res.Rect) error { return nil }

func (s *MemSurface) Release() {}

var _ res.Surface = (*MemSurface)(nil)

// addOverflows reports a+b and whether that addition overflowed int.
func addOverflows(a, b int) (int, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 || sum > uint64(int(^uint(0)>>1)) {
		return 0, true
	}

	return int(sum), false
}

// mulOverflows reports a*b and whether that multiplication overflowed int.
func mulOverflows(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > uint64(int(^uint(0)>>1)) {
		return 0, true
	}

	return int(lo), false
}
