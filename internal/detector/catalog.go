package detector

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrClassNotFound is returned when a class name is absent from a catalog.
var ErrClassNotFound = errors.New("class not found")

// Class is one entry of a Catalog.
type Class struct {
	ID   int
	Name string
}

// Catalog maps class ids to names. Entries are kept in insertion order so
// that name resolution is deterministic.
type Catalog []Class

// cocoNames are the 80 COCO classes in YOLOv8 output order.
var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// COCO returns the catalog of the 80 COCO classes, with "person" at id 0.
func COCO() Catalog {
	return NewCatalog(cocoNames)
}

// NewCatalog builds a catalog where each name's id is its index.
func NewCatalog(names []string) Catalog {
	c := make(Catalog, len(names))
	for i, name := range names {
		c[i] = Class{ID: i, Name: name}
	}
	return c
}

// LoadCatalog reads a names file with one class name per line. The line
// index is the class id; a blank line leaves its id without a class.
func LoadCatalog(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open class names")
	}
	defer f.Close()

	var c Catalog
	scanner := bufio.NewScanner(f)
	for id := 0; scanner.Scan(); id++ {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		c = append(c, Class{ID: id, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read class names")
	}
	if len(c) == 0 {
		return nil, errors.Errorf("class names file %s is empty", path)
	}

	return c, nil
}

// Resolve returns the id of the first class whose name equals name exactly.
func (c Catalog) Resolve(name string) (int, error) {
	for _, class := range c {
		if class.Name == name {
			return class.ID, nil
		}
	}
	return 0, errors.Wrapf(ErrClassNotFound, "%q", name)
}
