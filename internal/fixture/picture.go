// internal/fixture/picture.go
package fixture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

const pictureSize = 64

// EnsurePicture makes sure a PNG exists at path for the practice form upload and
// returns its absolute location. An existing file is left untouched.
func EnsurePicture(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand picture path %q: %w", path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve picture path %q: %w", path, err)
	}

	mu := lockFor(abs)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(abs); err == nil {
		return abs, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat picture: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create picture directory: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, pictureSize, pictureSize))
	for y := 0; y < pictureSize; y++ {
		for x := 0; x < pictureSize; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 160, A: 255})
		}
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("failed to create picture: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode picture: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close picture: %w", err)
	}
	return abs, nil
}
