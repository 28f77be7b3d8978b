package analyzer

import (
	"image"
	"image/color"
	"math"
)

// gaussianBlurRadius and gaussianBlurSigma give a 21x21 separable kernel
// (spec.md §4.5 names this size explicitly), matching the original
// original_source gaussian_blur_f32(_, 2.0) call's standard deviation.
const (
	gaussianBlurRadius = 10 // (2*10+1) = 21 taps
	gaussianBlurSigma  = 2.0
)

// gaussianKernel1D returns a normalized 1D Gaussian kernel of
// 2*radius+1 taps, for separable horizontal-then-vertical blurring.
func gaussianKernel1D(radius int, sigma float64) []float64 {
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianBlur21x21 applies a 21x21 separable Gaussian blur (sigma 2.0),
// clamping at the image edges, to suppress the single-pixel sensor noise
// the threshold step would otherwise amplify.
func gaussianBlur21x21(src *image.Gray) *image.Gray {
	kernel := gaussianKernel1D(gaussianBlurRadius, gaussianBlurSigma)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	get := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	horizontal := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for k := -gaussianBlurRadius; k <= gaussianBlurRadius; k++ {
				sum += get(x+k, y) * kernel[k+gaussianBlurRadius]
			}
			horizontal[y*w+x] = sum
		}
	}

	out := image.NewGray(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for k := -gaussianBlurRadius; k <= gaussianBlurRadius; k++ {
				yy := y + k
				if yy < 0 {
					yy = 0
				}
				if yy >= h {
					yy = h - 1
				}
				sum += horizontal[yy*w+x] * kernel[k+gaussianBlurRadius]
			}
			out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: clampU8(int(math.Round(sum)))})
		}
	}
	return out
}

func clampU8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// threshold produces a binary mask (1 = foreground) from a byte-delta
// plane, mirroring imageproc::contrast::threshold.
func threshold(diff []uint8, t uint8) []bool {
	out := make([]bool, len(diff))
	for i, v := range diff {
		out[i] = v > t
	}
	return out
}

func idx(b image.Rectangle, x, y int) int {
	return (y-b.Min.Y)*b.Dx() + (x - b.Min.X)
}

// erode3x3 shrinks the foreground: a pixel survives only if its full
// 3x3 neighborhood is foreground (Norm::LInf / 8-connected erosion).
func erode3x3(mask []bool, b image.Rectangle) []bool {
	w, h := b.Dx(), b.Dy()
	out := make([]bool, len(mask))
	at := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return mask[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			all := true
			for dy := -1; dy <= 1 && all; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if !at(x+dx, y+dy) {
						all = false
						break
					}
				}
			}
			out[y*w+x] = all
		}
	}
	return out
}

// dilate3x3 grows the foreground: a pixel becomes foreground if any
// neighbor in its 3x3 window is foreground.
func dilate3x3(mask []bool, b image.Rectangle) []bool {
	w, h := b.Dx(), b.Dy()
	out := make([]bool, len(mask))
	at := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return mask[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			any := false
			for dy := -1; dy <= 1 && !any; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if at(x+dx, y+dy) {
						any = true
						break
					}
				}
			}
			out[y*w+x] = any
		}
	}
	return out
}

// largestComponentArea labels 8-connected components of mask via
// iterative flood fill and returns the pixel count of the largest one,
// mirroring connected_components + calculate_largest_component_area.
func largestComponentArea(mask []bool, b image.Rectangle) float64 {
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, len(mask))
	best := 0

	var stack []int
	for start := 0; start < len(mask); start++ {
		if !mask[start] || visited[start] {
			continue
		}
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true
		count := 0

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			count++
			px, py := p%w, p/w

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := px+dx, py+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					ni := ny*w + nx
					if mask[ni] && !visited[ni] {
						visited[ni] = true
						stack = append(stack, ni)
					}
				}
			}
		}

		if count > best {
			best = count
		}
	}

	return float64(best)
}
