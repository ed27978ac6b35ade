package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createTestJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h, color.RGBA{255, 0, 0, 255}), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h, color.RGBA{0, 0, 255, 255}))
	return buf.Bytes()
}

func TestPreparePhotoJPEG(t *testing.T) {
	photo, err := PreparePhoto(bytes.NewReader(createTestJPEG(100, 80)))
	if err != nil {
		t.Fatalf("PreparePhoto JPEG: %v", err)
	}
	if photo.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", photo.MIME)
	}
	if photo.Width != 100 || photo.Height != 80 {
		t.Errorf("expected 100x80, got %dx%d", photo.Width, photo.Height)
	}
}

func TestPreparePhotoPNGBecomesJPEG(t *testing.T) {
	photo, err := PreparePhoto(bytes.NewReader(createTestPNG(100, 100)))
	if err != nil {
		t.Fatalf("PreparePhoto PNG: %v", err)
	}
	if photo.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg (always outputs JPEG), got %s", photo.MIME)
	}
	if _, err := jpeg.Decode(bytes.NewReader(photo.Data)); err != nil {
		t.Errorf("output is not a JPEG: %v", err)
	}
}

func TestPreparePhotoDownscalesKeepingAspect(t *testing.T) {
	photo, err := PreparePhoto(bytes.NewReader(createTestJPEG(2048, 1024)))
	if err != nil {
		t.Fatalf("PreparePhoto large image: %v", err)
	}
	if photo.Width != MaxDimension || photo.Height != MaxDimension/2 {
		t.Errorf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, photo.Width, photo.Height)
	}
}

func TestPreparePhotoSmallImageNotUpscaled(t *testing.T) {
	photo, err := PreparePhoto(bytes.NewReader(createTestJPEG(50, 50)))
	if err != nil {
		t.Fatalf("PreparePhoto small image: %v", err)
	}
	if photo.Width != 50 || photo.Height != 50 {
		t.Errorf("small image should not be resized: got %dx%d", photo.Width, photo.Height)
	}
}

func TestPreparePhotoRejectsOtherFormats(t *testing.T) {
	for name, data := range map[string][]byte{
		"text": []byte("not an image"),
		"gif":  []byte("GIF89a..."),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PreparePhoto(bytes.NewReader(data))
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("expected ErrUnsupported, got %v", err)
			}
		})
	}
}

func TestPreparePhotoTooLarge(t *testing.T) {
	data := append(createTestJPEG(10, 10), make([]byte, MaxBytes)...)
	if _, err := PreparePhoto(bytes.NewReader(data)); err == nil {
		t.Error("expected error for oversized upload")
	}
}

func TestThumbnail(t *testing.T) {
	photo, err := PreparePhoto(bytes.NewReader(createTestJPEG(800, 400)))
	if err != nil {
		t.Fatalf("PreparePhoto: %v", err)
	}

	thumb, err := Thumbnail(photo.Data)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if thumb.Width != ThumbnailSize || thumb.Height != ThumbnailSize/2 {
		t.Errorf("expected %dx%d, got %dx%d", ThumbnailSize, ThumbnailSize/2, thumb.Width, thumb.Height)
	}
}
