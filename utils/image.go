package utils

import (
	"errors"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io"
	"strings"

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WEBP decoder
)

// DescribeImage Read the format and dimensions of an encoded image without decoding the pixels
func DescribeImage(r io.Reader) (string, int, int, error) {
	config, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", 0, 0, errors.New("not a valid image")
	}
	return strings.ToUpper(format), config.Width, config.Height, nil
}
