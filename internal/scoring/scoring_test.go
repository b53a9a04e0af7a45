package scoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	cases := []struct {
		word string
		want int
	}{
		{"", 0},
		{"AT", 0},
		{"ATI", 4},     // (1+2+1) x1
		{"CAT", 8},     // (5+1+2) x1
		{"STAR", 7},    // (2+2+1+2) x1
		{"WATER", 22},  // (5+1+2+1+2) x2
		{"PEOPLE", 42}, // (4+1+1+4+3+1) x3
		{"QUIZ", 21},
	}
	for _, tc := range cases {
		t.Run(tc.word, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.word))
		})
	}
}

func TestScore_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Score("CAT"), Score("cat"))
	assert.Equal(t, Score("Water"), Score("WATER"))
}

func TestScore_Deterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, 22, Score("water"))
	}
}

func TestMultiplier(t *testing.T) {
	assert.Equal(t, 0, Multiplier(2))
	assert.Equal(t, 1, Multiplier(3))
	assert.Equal(t, 1, Multiplier(4))
	assert.Equal(t, 2, Multiplier(5))
	assert.Equal(t, 5, Multiplier(8))
}

func TestLetterValue_NonLetters(t *testing.T) {
	assert.Equal(t, 0, LetterValue('1'))
	assert.Equal(t, 0, LetterValue('-'))
	assert.Equal(t, 8, LetterValue('Z'))
}

func TestNormalize_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.Equal(t, "HEXES", Normalize("Hexes"))
				assert.Equal(t, 8, Score("cat"))
			}
		}()
	}
	wg.Wait()
}
