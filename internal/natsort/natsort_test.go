package natsort

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessOrdersDigitRunsNumerically(t *testing.T) {
	assert.True(t, Less("run2", "run10"))
	assert.False(t, Less("run10", "run2"))
}

func TestLessFallsBackToByteOrderOutsideDigits(t *testing.T) {
	assert.True(t, Less("align", "trim"))
	assert.False(t, Less("trim", "align"))
}

func TestSortedOrdersMixedRunIDs(t *testing.T) {
	in := []string{"run10", "run1", "run2", "run20"}
	assert.Equal(t, []string{"run1", "run2", "run10", "run20"}, Sorted(in))
}

func TestStringsSortsInPlace(t *testing.T) {
	ss := []string{"b2", "b10", "b1"}
	Strings(ss)
	assert.Equal(t, []string{"b1", "b2", "b10"}, ss)
}

func TestLessTreatsShorterPrefixAsSmaller(t *testing.T) {
	assert.True(t, Less("run1", "run1x"))
}
