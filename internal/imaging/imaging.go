// Package imaging normalizes incoming artwork to JPEG. Pixel data is never
// resized; only the container format changes.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// jpegQuality matches the default most artwork sources encode at. Higher
// values only inflate files that were already lossy.
const jpegQuality = 90

// IsImageFile reports whether the filename carries a supported artwork
// extension.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	}
	return false
}

// NormalizeToJPEG converts the file at path to JPEG if it is not one already,
// removing the original. Returns the path of the resulting .jpg file.
func NormalizeToJPEG(fsys afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	base := strings.TrimSuffix(path, filepath.Ext(path))
	jpgPath := base + ".jpg"

	if mimetype.Detect(data).Is("image/jpeg") {
		if ext == ".jpg" {
			return path, nil
		}
		// Right content, wrong extension (.jpeg and friends).
		if err := fsys.Rename(path, jpgPath); err != nil {
			return "", err
		}
		return jpgPath, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}

	if err := afero.WriteFile(fsys, jpgPath, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	if jpgPath != path {
		if err := fsys.Remove(path); err != nil {
			return "", err
		}
	}
	return jpgPath, nil
}

// DetectContentType sniffs the MIME type of the file at path.
func DetectContentType(fsys afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", err
	}
	return mimetype.Detect(data).String(), nil
}
