package assets

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"cardcast/internal/services"
)

// DecodeImage decodes a PNG, JPEG, GIF (first frame) or WebP asset.
func DecodeImage(asset Asset) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "decode image", fmt.Sprintf("%s is not a supported image", asset.Ref), err)
	}
	if img.Bounds().Empty() {
		return nil, services.Wrap(services.ErrValidation, "assets", "decode image", fmt.Sprintf("%s decoded as an empty %s", asset.Ref, format), nil)
	}
	return img, nil
}
