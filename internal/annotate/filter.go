// Package annotate turns raw detections into annotation records and
// image overlays.
package annotate

import "github.com/ayusman/autoannotate/internal/detector"

// Postprocessor defines a function that filters an incoming slice of
// detections. Implementations never modify their input.
type Postprocessor func([]detector.Detection) []detector.Detection

// NewClassFilter returns a Postprocessor that keeps detections of classID.
func NewClassFilter(classID int) Postprocessor {
	return func(in []detector.Detection) []detector.Detection {
		out := make([]detector.Detection, 0, len(in))
		for _, d := range in {
			if d.ClassID == classID {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewScoreFilter returns a Postprocessor that keeps detections whose
// confidence is at least threshold percent. threshold is in [0, 100].
func NewScoreFilter(threshold float64) Postprocessor {
	minScore := threshold / 100
	return func(in []detector.Detection) []detector.Detection {
		out := make([]detector.Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= minScore {
				out = append(out, d)
			}
		}
		return out
	}
}

// Chain applies the postprocessors in order.
func Chain(steps ...Postprocessor) Postprocessor {
	return func(in []detector.Detection) []detector.Detection {
		out := in
		for _, step := range steps {
			out = step(out)
		}
		if out == nil {
			out = []detector.Detection{}
		}
		return out
	}
}

// Filter keeps the detections of classID with a confidence of at least
// threshold percent, preserving their order.
func Filter(detections []detector.Detection, classID int, threshold float64) []detector.Detection {
	return Chain(NewClassFilter(classID), NewScoreFilter(threshold))(detections)
}
