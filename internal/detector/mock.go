package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	detections []Detection
	err        error
	calls      int
	mu         sync.Mutex
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections that will be returned by Detect.
func (m *MockDetector) SetDetections(detections []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns a copy of the pre-configured detections or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.detections == nil {
		return nil, nil
	}

	out := make([]Detection, len(m.detections))
	copy(out, m.detections)
	return out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PeopleScene returns a preset detection list: two people at 0.91 and 0.62,
// a dog at 0.88 and a third person at 0.80, in that order.
func PeopleScene() []Detection {
	return []Detection{
		{Box: image.Rect(10, 20, 110, 220), Confidence: 0.91, ClassID: 0},
		{Box: image.Rect(150, 40, 230, 200), Confidence: 0.62, ClassID: 0},
		{Box: image.Rect(40, 150, 120, 230), Confidence: 0.88, ClassID: 16},
		{Box: image.Rect(200, 10, 300, 180), Confidence: 0.80, ClassID: 0},
	}
}
