package annotate

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ayusman/autoannotate/internal/detector"
)

// Record is the persisted text form of one accepted detection.
type Record struct {
	ClassID    int
	Confidence float64
	Box        image.Rectangle
}

// String formats the record as "{class_id} {confidence:.2f} {x1} {y1} {x2} {y2}".
func (r Record) String() string {
	return fmt.Sprintf("%d %.2f %d %d %d %d",
		r.ClassID, r.Confidence, r.Box.Min.X, r.Box.Min.Y, r.Box.Max.X, r.Box.Max.Y)
}

// Records converts detections to records tagged with the resolved classID.
func Records(detections []detector.Detection, classID int) []Record {
	records := make([]Record, len(detections))
	for i, d := range detections {
		records[i] = Record{
			ClassID:    classID,
			Confidence: d.Confidence,
			Box:        d.Box,
		}
	}
	return records
}

// ParseRecord parses one annotation line.
func ParseRecord(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Record{}, errors.Errorf("annotation %q: want 6 fields, got %d", line, len(fields))
	}

	classID, err := strconv.Atoi(fields[0])
	if err != nil {
		return Record{}, errors.Wrapf(err, "annotation %q: class id", line)
	}
	confidence, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Record{}, errors.Wrapf(err, "annotation %q: confidence", line)
	}

	var coords [4]int
	for i := range coords {
		coords[i], err = strconv.Atoi(fields[2+i])
		if err != nil {
			return Record{}, errors.Wrapf(err, "annotation %q: coordinate %d", line, i)
		}
	}

	return Record{
		ClassID:    classID,
		Confidence: confidence,
		Box: image.Rectangle{
			Min: image.Pt(coords[0], coords[1]),
			Max: image.Pt(coords[2], coords[3]),
		},
	}, nil
}

// WriteAnnotations writes one line per record to path, replacing any
// existing file. The parent directory must already exist.
func WriteAnnotations(path string, records []Record) error {
	var buf bytes.Buffer
	for _, r := range records {
		buf.WriteString(r.String())
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// ReadAnnotations parses an annotation file. Blank lines are ignored.
func ReadAnnotations(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records := []Record{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r, err := ParseRecord(line)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read annotations")
	}
	return records, nil
}
