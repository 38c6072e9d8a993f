package detector

import (
	"image"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	// maxDetections caps the number of boxes kept after NMS.
	maxDetections = 300
	// classOffset separates the boxes of different classes during NMS so
	// that suppression only happens within one class.
	classOffset = 7680
	// padValue is the gray used to letterbox non-square frames.
	padValue = 114
)

// YOLODetector implements Detector by running a YOLOv8 ONNX export
// through the OpenCV DNN module.
type YOLODetector struct {
	config Config
	net    gocv.Net
	mu     sync.Mutex
	loaded bool
}

// NewYOLODetector creates a new YOLO detector.
// The network is loaded lazily on first detection.
func NewYOLODetector(config Config) (*YOLODetector, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrap(err, "stat model")
	}

	defaults := DefaultConfig()
	if config.InputSize <= 0 {
		config.InputSize = defaults.InputSize
	}
	if config.ScoreThreshold <= 0 {
		config.ScoreThreshold = defaults.ScoreThreshold
	}
	if config.NMSThreshold <= 0 {
		config.NMSThreshold = defaults.NMSThreshold
	}

	return &YOLODetector{config: config}, nil
}

// Detect runs the network over frame and returns boxes in frame coordinates,
// highest confidence first.
func (d *YOLODetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}

	bgr, err := toBGR(frame)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	rows, cols := bgr.Rows(), bgr.Cols()
	maxDim := max(rows, cols)

	// Letterbox into a square so one scale factor maps back to the frame.
	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(padValue, padValue, padValue, 0), maxDim, maxDim, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, cols, rows))
	bgr.CopyTo(&roi)
	roi.Close()

	size := d.config.InputSize
	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 3 {
		return nil, errors.Errorf("unexpected output shape %v", sizes)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read output")
	}

	scale := float64(maxDim) / float64(size)
	candidates, err := decodeOutput(data, sizes[1], sizes[2], scale, d.config.ScoreThreshold)
	if err != nil {
		return nil, err
	}

	return d.suppress(candidates, image.Rect(0, 0, cols, rows)), nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}

func (d *YOLODetector) ensureLoaded() error {
	if d.loaded {
		return nil
	}

	net := gocv.ReadNetFromONNX(d.config.ModelPath)
	if net.Empty() {
		net.Close()
		return errors.Errorf("load model %s", d.config.ModelPath)
	}

	d.net = net
	d.loaded = true
	return nil
}

// suppress applies class-aware non-maximum suppression and clips the
// surviving boxes to bounds.
func (d *YOLODetector) suppress(candidates []Detection, bounds image.Rectangle) []Detection {
	if len(candidates) == 0 {
		return []Detection{}
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		offset := c.ClassID * classOffset
		boxes[i] = c.Box.Add(image.Pt(offset, offset))
		scores[i] = float32(c.Confidence)
	}

	indices := gocv.NMSBoxes(boxes, scores, float32(d.config.ScoreThreshold), float32(d.config.NMSThreshold))
	sort.SliceStable(indices, func(i, j int) bool {
		return candidates[indices[i]].Confidence > candidates[indices[j]].Confidence
	})

	result := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		det := candidates[idx]
		det.Box = det.Box.Intersect(bounds)
		if det.Box.Empty() {
			continue
		}
		result = append(result, det)
		if len(result) == maxDetections {
			break
		}
	}
	return result
}

// decodeOutput converts a YOLOv8 output tensor of shape
// [1, channels, anchors] into candidate detections. Rows 0-3 hold the box
// center and size, the remaining rows one score per class.
func decodeOutput(data []float32, channels, anchors int, scale, minScore float64) ([]Detection, error) {
	if channels < 5 {
		return nil, errors.Errorf("output has %d channels, need at least 5", channels)
	}
	if len(data) < channels*anchors {
		return nil, errors.Errorf("output has %d values, need %d", len(data), channels*anchors)
	}

	at := func(row, col int) float64 {
		return float64(data[row*anchors+col])
	}

	var candidates []Detection
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := 0, at(4, i)
		for c := 1; c < channels-4; c++ {
			if s := at(4+c, i); s > bestScore {
				bestClass, bestScore = c, s
			}
		}
		if bestScore < minScore {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		candidates = append(candidates, Detection{
			Box: image.Rect(
				int((cx-w/2)*scale),
				int((cy-h/2)*scale),
				int((cx+w/2)*scale),
				int((cy+h/2)*scale),
			),
			Confidence: bestScore,
			ClassID:    bestClass,
		})
	}

	return candidates, nil
}

// toBGR returns a 3-channel copy of frame.
func toBGR(frame *gocv.Mat) (gocv.Mat, error) {
	out := gocv.NewMat()
	switch frame.Channels() {
	case 3:
		frame.CopyTo(&out)
	case 4:
		gocv.CvtColor(*frame, &out, gocv.ColorBGRAToBGR)
	case 1:
		gocv.CvtColor(*frame, &out, gocv.ColorGrayToBGR)
	default:
		out.Close()
		return gocv.Mat{}, errors.Errorf("unsupported channel count %d", frame.Channels())
	}
	return out, nil
}
