// Package testutil provides synthetic images for tests.
package testutil

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Frame returns a rows x cols BGR image filled with a single color.
// The caller is responsible for closing the returned Mat.
func Frame(rows, cols int, b, g, r float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// Encode returns a rows x cols gray image encoded with ext (".jpg", ".png").
func Encode(ext string, rows, cols int) ([]byte, error) {
	frame := Frame(rows, cols, 128, 128, 128)
	defer frame.Close()

	buf, err := gocv.IMEncode(gocv.FileExt(ext), frame)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", ext)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// WriteImage writes a rows x cols image to dir/name, the format chosen by
// the name's extension, and returns its path.
func WriteImage(dir, name string, rows, cols int) (string, error) {
	data, err := Encode(filepath.Ext(name), rows, cols)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "write %s", name)
	}
	return path, nil
}

// ImageSize decodes the image at path and returns its rows and columns.
func ImageSize(path string) (rows, cols int, err error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return 0, 0, errors.Errorf("decode %s", path)
	}
	return img.Rows(), img.Cols(), nil
}
