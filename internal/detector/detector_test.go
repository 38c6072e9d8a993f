package detector

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Resolve(t *testing.T) {
	t.Run("person resolves to 0 in COCO", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			id, err := COCO().Resolve("person")
			require.NoError(t, err)
			assert.Equal(t, 0, id)
		}
	})

	t.Run("resolves later classes", func(t *testing.T) {
		id, err := COCO().Resolve("toothbrush")
		require.NoError(t, err)
		assert.Equal(t, 79, id)
	})

	t.Run("is case-sensitive", func(t *testing.T) {
		_, err := COCO().Resolve("Person")
		assert.True(t, errors.Is(err, ErrClassNotFound))
	})

	t.Run("unknown class returns ErrClassNotFound", func(t *testing.T) {
		_, err := COCO().Resolve("unicorn")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrClassNotFound)
		assert.Contains(t, err.Error(), "unicorn")
	})

	t.Run("first match wins", func(t *testing.T) {
		c := Catalog{{ID: 7, Name: "cat"}, {ID: 3, Name: "cat"}}
		id, err := c.Resolve("cat")
		require.NoError(t, err)
		assert.Equal(t, 7, id)
	})
}

func TestLoadCatalog(t *testing.T) {
	t.Run("line index is the class id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "names.txt")
		require.NoError(t, os.WriteFile(path, []byte("helmet\n\nvest \nperson\n\n"), 0644))

		c, err := LoadCatalog(path)
		require.NoError(t, err)
		assert.Equal(t, Catalog{{ID: 0, Name: "helmet"}, {ID: 2, Name: "vest"}, {ID: 3, Name: "person"}}, c)

		id, err := c.Resolve("vest")
		require.NoError(t, err)
		assert.Equal(t, 2, id)

		id, err = c.Resolve("person")
		require.NoError(t, err)
		assert.Equal(t, 3, id)
	})

	t.Run("empty file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "names.txt")
		require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0644))

		_, err := LoadCatalog(path)
		assert.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})
}

func TestMockDetector(t *testing.T) {
	t.Run("returns no detections by default", func(t *testing.T) {
		mock := NewMockDetector()

		dets, err := mock.Detect(nil)

		require.NoError(t, err)
		assert.Empty(t, dets)
		assert.Equal(t, 1, mock.Calls())
	})

	t.Run("returns configured detections", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetDetections(PeopleScene())

		dets, err := mock.Detect(nil)

		require.NoError(t, err)
		assert.Equal(t, PeopleScene(), dets)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetDetections(PeopleScene())

		dets, _ := mock.Detect(nil)
		dets[0].ClassID = 99

		again, _ := mock.Detect(nil)
		assert.Equal(t, 0, again[0].ClassID)
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		dets, err := mock.Detect(nil)

		assert.Equal(t, expectedErr, err)
		assert.Nil(t, dets)
	})

	t.Run("Close returns nil", func(t *testing.T) {
		assert.NoError(t, NewMockDetector().Close())
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*YOLODetector)(nil)
	})
}

func TestDetection_String(t *testing.T) {
	d := Detection{Box: image.Rect(1, 2, 3, 4), Confidence: 0.5, ClassID: 2}
	assert.Equal(t, "class 2 (confidence 0.50): (1,2)-(3,4)", d.String())
}
