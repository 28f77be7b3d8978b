package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// ToImage decodes Payload into a generic image.Image regardless of Format.
// YUYV and RGB24 payloads are assumed to be exactly Width*Height*bytesPerPixel
// bytes, interleaved, matching the camera producer's contract.
func ToImage(f *Frame) (image.Image, error) {
	switch f.Format {
	case MJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Payload))
		if err != nil {
			return nil, fmt.Errorf("frame: decode mjpeg: %w", err)
		}
		return img, nil
	case RGB24:
		return rgb24ToImage(f)
	case YUYV:
		return yuyvToImage(f)
	default:
		return nil, fmt.Errorf("frame: unsupported pixel format %v", f.Format)
	}
}

func rgb24ToImage(f *Frame) (image.Image, error) {
	want := f.Width * f.Height * 3
	if len(f.Payload) < want {
		return nil, fmt.Errorf("frame: rgb24 payload too short: have %d want %d", len(f.Payload), want)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		r, g, b := f.Payload[i*3], f.Payload[i*3+1], f.Payload[i*3+2]
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// yuyvToImage converts packed 4:2:2 YUYV (two pixels per 4 bytes) to RGBA
// using the standard BT.601 conversion.
func yuyvToImage(f *Frame) (image.Image, error) {
	want := f.Width * f.Height * 2
	if len(f.Payload) < want {
		return nil, fmt.Errorf("frame: yuyv payload too short: have %d want %d", len(f.Payload), want)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	p := f.Payload
	for row := 0; row < f.Height; row++ {
		rowOff := row * f.Width * 2
		for col := 0; col < f.Width; col += 2 {
			i := rowOff + col*2
			y0, u, y1, v := p[i], p[i+1], p[i+2], p[i+3]
			setYUV(img, col, row, y0, u, v)
			if col+1 < f.Width {
				setYUV(img, col+1, row, y1, u, v)
			}
		}
	}
	return img, nil
}

func setYUV(img *image.RGBA, x, y int, yv, u, v byte) {
	c := color.YCbCr{Y: yv, Cb: u, Cr: v}
	r, g, b := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
	img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
}

// EncodeJPEG returns Payload unchanged when Format is already MJPEG,
// otherwise decodes and re-encodes as JFIF. This is the one stdlib-only
// conversion in the repository — see SPEC_FULL.md §5 and DESIGN.md.
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	if f.Format == MJPEG {
		return f.Payload, nil
	}
	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("frame: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Rotate returns img rotated clockwise by degrees, which must be one of
// 0, 90, 180, 270. Mirrors the videoflip stage the original pipeline
// inserts ahead of its framebuffer sink.
func Rotate(img image.Image, degrees int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch degrees {
	case 90:
		dst := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case 180:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case 270:
		dst := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	default:
		return img
	}
}

// ToRGB565 packs img into little-endian RGB565, the pixel format the
// original display pipeline requests from videoconvert before writing
// to the framebuffer (video/x-raw,format=RGB16).
func ToRGB565(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*2)
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			r5 := uint16(r>>(8+3)) & 0x1f
			g6 := uint16(g>>(8+2)) & 0x3f
			b5 := uint16(bl>>(8+3)) & 0x1f
			v := r5<<11 | g6<<5 | b5
			out[i] = byte(v)
			out[i+1] = byte(v >> 8)
			i += 2
		}
	}
	return out
}

// ToGray decodes the frame and downsamples it to a grayscale image of the
// given target dimensions using nearest-neighbor sampling. Used by the
// motion analyzer, which only needs a coarse luminance field.
func ToGray(f *Frame, targetW, targetH int) (*image.Gray, error) {
	src, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		sy := bounds.Min.Y + y*sh/targetH
		for x := 0; x < targetW; x++ {
			sx := bounds.Min.X + x*sw/targetW
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst, nil
}
