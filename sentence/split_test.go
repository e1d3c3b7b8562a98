package sentence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

func TestSplit_Empty(t *testing.T) {
	lines, err := Split("")
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = Split("   \n\t ")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSplit_CollapsesTerminatorRuns(t *testing.T) {
	lines, err := Split("Hi... There!!?!")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi. There!"}, lines)
}

func TestSplit_Normalizes(t *testing.T) {
	lines, err := Split("“Hello”   world…\n\nIt’s  fine")
	require.NoError(t, err)
	assert.Equal(t, []string{`"Hello" world. It's fine`}, lines)
}

func TestSplit_DropsPunctuationOnlySegments(t *testing.T) {
	lines, err := Split("... !!! Hello.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello."}, lines)
}

func TestSplit_DecimalIsNotABoundary(t *testing.T) {
	segs := segment(normalize("Pi is 3.14 roughly. Yes."))
	assert.Equal(t, []string{"Pi is 3.14 roughly.", "Yes."}, segs)
}

func TestSplit_ClosersStayAttached(t *testing.T) {
	lines, err := SplitWithLimit(`He said "stop." Then left.`, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{`He said "stop."`, "Then left."}, lines)
}

func TestSplit_PacksGreedily(t *testing.T) {
	lines, err := SplitWithLimit("One. Two. Three.", 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"One. Two.", "Three."}, lines)
}

func TestSplit_LongSentenceCutAtComma(t *testing.T) {
	lines, err := SplitWithLimit("aaaa, bbbb cccc", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa,", "bbbb cccc"}, lines)
}

func TestSplit_LongSentenceCutAtSpace(t *testing.T) {
	lines, err := SplitWithLimit("abc defgh ijk", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "defgh", "ijk"}, lines)
}

func TestSplit_Unsplittable(t *testing.T) {
	_, err := Split(strings.Repeat("a", LineMaxLength+100))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrUnsplittableInput)
}

func TestSplit_ExactlyUnderLimit(t *testing.T) {
	text := strings.Repeat("x", LineMaxLength-1)
	lines, err := Split(text)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, lines)
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", LineMaxLength)
	lines, err := Split(text)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, lines)
}

func TestSplitWithLimit_InvalidLimit(t *testing.T) {
	_, err := SplitWithLimit("text", 0)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidOption)
}

func TestSplit_LinesWithinLimitAndWordsPreserved(t *testing.T) {
	var b strings.Builder
	for i := range 200 {
		fmt.Fprintf(&b, "Sentence number %d is here, with some words. ", i)
	}
	text := b.String()

	lines, err := Split(text)
	require.NoError(t, err)
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, runeLen(l), LineMaxLength)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(lines, " ")))
}
