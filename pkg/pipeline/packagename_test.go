package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePackageSegmentBasic(t *testing.T) {
	assert.Equal(t, "my_game", SanitizePackageSegment("My Game"))
}

func TestSanitizePackageSegmentStripsPunctuation(t *testing.T) {
	assert.Equal(t, "coolgame", SanitizePackageSegment("Cool-Game!"))
}

func TestSanitizePackageSegmentPrefixesLeadingDigit(t *testing.T) {
	assert.Equal(t, "_9th_dream", SanitizePackageSegment("9th Dream"))
}

func TestSanitizePackageSegmentPrefixesReservedWord(t *testing.T) {
	assert.Equal(t, "game_class", SanitizePackageSegment("class"))
}

func TestSanitizePackageSegmentNonASCIIOnlyFallsBackToHash(t *testing.T) {
	result := SanitizePackageSegment("テスト")
	assert.True(t, strings.HasPrefix(result, "g"))
	assert.Len(t, result, 9)
}

func TestFinalPackageNamePrefixesComKrkr(t *testing.T) {
	assert.Equal(t, "com.krkr.my_game", FinalPackageName("My Game"))
}
