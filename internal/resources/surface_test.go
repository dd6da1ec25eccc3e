package resources

import (
	"math"
	"testing"
)

func TestSurfaceFillAndBlitWithinBounds(tt *testing.T) {
	tt.Parallel()

	s := NewMemSurface(4, 4)

	if err := s.Fill(0, 0, 4, 4, 0xFF0000FF); err != nil {
		tt.Fatalf("fill: %v", err)
	}

	pixels := make([]byte, 2*2*4)
	for i := range pixels {
		pixels[i] = 0xAB
	}

	if err := s.Blit(1, 1, 2, 2, pixels, 2*4); err != nil {
		tt.Fatalf("blit: %v", err)
	}
}

func TestSurfaceRejectsOutOfBoundsFill(tt *testing.T) {
	tt.Parallel()

	s := NewMemSurface(4, 4)

	if err := s.Fill(2, 2, 4, 4, 0); err == nil {
		tt.Fatal("want out-of-bounds fill to fail")
	}
}

func TestSurfaceRejectsOverflowingBlitGeometry(tt *testing.T) {
	tt.Parallel()

	s := NewMemSurface(4, 4)

	big := math.MaxInt

	if err := s.Blit(big, 0, big, 1, nil, 1); err == nil {
		tt.Fatal("want overflowing x+w to fail without panicking")
	}

	if err := s.Blit(0, 0, 1, 2, nil, big); err == nil {
		tt.Fatal("want overflowing srcStride*h to fail")
	}
}

func TestSurfaceInfoReportsARGB8888(tt *testing.T) {
	tt.Parallel()

	s := NewMemSurface(8, 2)

	info := s.Info()
	if info.Width != 8 || info.Height != 2 || info.Stride != 32 {
		tt.Fatalf("unexpected info: %+v", info)
	}
}
