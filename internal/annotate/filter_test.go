package annotate

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/autoannotate/internal/detector"
)

func TestFilter(t *testing.T) {
	t.Run("threshold 75 keeps 0.80 and drops 0.70", func(t *testing.T) {
		in := []detector.Detection{
			{Box: image.Rect(0, 0, 10, 10), Confidence: 0.80, ClassID: 0},
			{Box: image.Rect(5, 5, 20, 20), Confidence: 0.70, ClassID: 0},
		}

		out := Filter(in, 0, 75)

		require.Len(t, out, 1)
		assert.Equal(t, 0.80, out[0].Confidence)
	})

	t.Run("confidence equal to the threshold is kept", func(t *testing.T) {
		in := []detector.Detection{{Confidence: 0.75, ClassID: 0}}

		assert.Len(t, Filter(in, 0, 75), 1)
	})

	t.Run("other classes are dropped", func(t *testing.T) {
		out := Filter(detector.PeopleScene(), 0, 0)

		require.Len(t, out, 3)
		for _, d := range out {
			assert.Equal(t, 0, d.ClassID)
		}
	})

	t.Run("preserves detector order", func(t *testing.T) {
		out := Filter(detector.PeopleScene(), 0, 75)

		require.Len(t, out, 2)
		assert.Equal(t, 0.91, out[0].Confidence)
		assert.Equal(t, 0.80, out[1].Confidence)
	})

	t.Run("is idempotent and does not mutate its input", func(t *testing.T) {
		in := detector.PeopleScene()
		snapshot := detector.PeopleScene()

		first := Filter(in, 0, 75)
		second := Filter(in, 0, 75)

		assert.Equal(t, first, second)
		assert.Equal(t, snapshot, in)
		assert.Equal(t, first, Filter(first, 0, 75))
	})

	t.Run("empty input yields an empty result", func(t *testing.T) {
		out := Filter(nil, 0, 75)

		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("no matches yields an empty result", func(t *testing.T) {
		out := Filter(detector.PeopleScene(), 0, 95)

		assert.NotNil(t, out)
		assert.Empty(t, out)
	})
}

func TestChain(t *testing.T) {
	t.Run("no steps returns the input", func(t *testing.T) {
		in := detector.PeopleScene()
		assert.Equal(t, in, Chain()(in))
	})

	t.Run("applies steps in order", func(t *testing.T) {
		out := Chain(NewScoreFilter(85), NewClassFilter(16))(detector.PeopleScene())

		require.Len(t, out, 1)
		assert.Equal(t, 16, out[0].ClassID)
	})
}
