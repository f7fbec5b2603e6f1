package capture

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
)

const (
	imprintPadding    = 20
	imprintBorderSize = 1
	imprintFontSize   = 14
)

// AddTextToImage returns img with a white strip holding text appended at the bottom.
func AddTextToImage(img []byte, text string) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	face, err := loadFont()
	if err != nil {
		return nil, err
	}
	defer face.Close()

	w := src.Bounds().Dx()
	h := src.Bounds().Dy() + imprintPadding*2 + imprintBorderSize
	dc := gg.NewContext(w, h)

	dc.DrawImage(src, 0, 0)

	yLine := float64(src.Bounds().Dy())
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine, float64(w), float64(imprintPadding*2+imprintBorderSize))
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetLineWidth(imprintBorderSize)
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.Stroke()
	dc.SetFontFace(face)
	dc.DrawStringAnchored(text, float64(w)/2, yLine+float64(imprintPadding), 0.5, 0.35)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

func loadFont() (font.Face, error) {
	ttFont, err := truetype.Parse(gomedium.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return truetype.NewFace(ttFont, &truetype.Options{
		Size: imprintFontSize,
	}), nil
}
