package missions

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
)

const (
	padWidth  = 400
	padHeight = 200
)

// RasterizePNG renders stroke paths as dark ink on a transparent PNG and
// returns it as a data URI, the payload format the signature fields carry.
func RasterizePNG(strokes [][]Point) (string, error) {
	if len(strokes) == 0 {
		return "", errors.New("no strokes to rasterize")
	}

	img := image.NewRGBA(image.Rect(0, 0, padWidth, padHeight))
	ink := color.RGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff}

	for _, stroke := range strokes {
		if len(stroke) == 1 {
			plot(img, stroke[0], ink)
			continue
		}
		for i := 1; i < len(stroke); i++ {
			drawSegment(img, stroke[i-1], stroke[i], ink)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// drawSegment interpolates a line between two sampled points.
func drawSegment(img *image.RGBA, a, b Point, c color.RGBA) {
	steps := int(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)))
	if steps == 0 {
		plot(img, a, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		plot(img, Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}, c)
	}
}

func plot(img *image.RGBA, p Point, c color.RGBA) {
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	if x < 0 || y < 0 || x >= padWidth || y >= padHeight {
		return
	}
	img.SetRGBA(x, y, c)
}
