package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
	xdraw "golang.org/x/image/draw"

	"github.com/ayusman/autoannotate/internal/detector"
)

// Overlay style. gocv maps color.RGBA onto OpenCV's BGR order, so BoxColor
// is BGR (255, 0, 0) and LabelColor is BGR (0, 255, 0).
var (
	BoxColor   = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	LabelColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

const (
	BoxThickness   = 2
	LabelScale     = 0.5
	LabelThickness = 2
	// LabelOffset is how far above the box's top-left corner the label
	// baseline sits.
	LabelOffset = 10
)

// Label returns the overlay text for one detection.
func Label(className string, confidence float64) string {
	return fmt.Sprintf("%s %.2f", className, confidence)
}

// Draw renders a box and label for each detection onto img in place.
// The image size and type are unchanged; an empty slice leaves img untouched.
func Draw(img *gocv.Mat, detections []detector.Detection, className string) {
	for _, d := range detections {
		gocv.Rectangle(img, d.Box, BoxColor, BoxThickness)
		gocv.PutText(img, Label(className, d.Confidence),
			image.Pt(d.Box.Min.X, d.Box.Min.Y-LabelOffset),
			gocv.FontHersheySimplex, LabelScale, LabelColor, LabelThickness)
	}
}

// Thumbnail scales src so that its longest side is at most maxSide.
// Images already small enough are copied at their original size.
func Thumbnail(src image.Image, maxSide int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide > 0 && (w > maxSide || h > maxSide) {
		if w >= h {
			h = max(1, h*maxSide/w)
			w = maxSide
		} else {
			w = max(1, w*maxSide/h)
			h = maxSide
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
