// Package detector provides object detection interfaces and types.
package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detection is one object instance found by a Detector.
type Detection struct {
	// Box holds the pixel corners: Min is (x1, y1), Max is (x2, y2).
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"`
	ClassID    int             `json:"class_id"`
}

func (d Detection) String() string {
	return fmt.Sprintf("class %d (confidence %.2f): %v", d.ClassID, d.Confidence, d.Box)
}

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Detect analyzes a BGR image and returns the detected objects in
	// detector output order. Returns an empty slice if nothing was found.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the YOLO detector.
type Config struct {
	// ModelPath is the path to a YOLOv8 ONNX export.
	ModelPath string

	// InputSize is the square network input in pixels (default: 640).
	InputSize int

	// ScoreThreshold drops candidates before NMS (0.0-1.0).
	ScoreThreshold float64

	// NMSThreshold is the IoU above which overlapping boxes of the
	// same class are suppressed (0.0-1.0).
	NMSThreshold float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputSize:      640,
		ScoreThreshold: 0.25,
		NMSThreshold:   0.45,
	}
}
