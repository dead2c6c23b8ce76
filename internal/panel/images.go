package panel

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// Fallback image sizes
const (
	KeyImageSize = 72
	LCDWidth     = 800
	LCDHeight    = 100
)

// ImageSet holds every image the controller renders
type ImageSet struct {
	Off         image.Image // no recording bound to the key
	Pressed     image.Image // recording, or selected in edit mode
	Play        image.Image // recording available
	LCDPlayback image.Image
	LCDEdit     image.Image
}

// DefaultImages returns solid-colour images
func DefaultImages() *ImageSet {
	return &ImageSet{
		Off:         solid(KeyImageSize, KeyImageSize, color.RGBA{80, 80, 80, 255}),
		Pressed:     solid(KeyImageSize, KeyImageSize, color.RGBA{255, 0, 0, 255}),
		Play:        solid(KeyImageSize, KeyImageSize, color.RGBA{0, 255, 0, 255}),
		LCDPlayback: solid(LCDWidth, LCDHeight, color.RGBA{10, 50, 10, 255}),
		LCDEdit:     solid(LCDWidth, LCDHeight, color.RGBA{50, 10, 10, 255}),
	}
}

// LoadImages reads PNG overrides from dir, keeping the default for any
// file that is missing or unreadable.
func LoadImages(fs afero.Fs, dir string) *ImageSet {
	set := DefaultImages()
	if fs == nil {
		fs = afero.NewOsFs()
	}

	assets := []struct {
		name   string
		target *image.Image
	}{
		{"rec_off.png", &set.Off},
		{"rec_on.png", &set.Pressed},
		{"play.png", &set.Play},
		{"lcd_strip.png", &set.LCDPlayback},
		{"lcd_edit.png", &set.LCDEdit},
	}

	for _, asset := range assets {
		path := filepath.Join(dir, asset.name)
		img, err := loadPNG(fs, path)
		if err != nil {
			slog.Debug("Using fallback image", "asset", asset.name, "reason", err)
			continue
		}
		*asset.target = img
		slog.Debug("Loaded image asset", "path", path)
	}
	return set
}

func loadPNG(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}
