package otp

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fourDigits = regexp.MustCompile(`^\d{4}$`)

func TestPickupGeneratorFormat(t *testing.T) {
	g := NewPickupGenerator()
	for i := 0; i < 200; i++ {
		code, err := g.Generate(nil)
		require.NoError(t, err)
		assert.Regexp(t, fourDigits, code)
	}
}

func TestGeneratorAvoidsExcluded(t *testing.T) {
	g := NewNumericGenerator(1)
	exclude := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8"}

	for i := 0; i < 20; i++ {
		code, err := g.Generate(exclude)
		require.NoError(t, err)
		assert.Equal(t, "9", code)
	}
}

func TestGeneratorExhausted(t *testing.T) {
	g := NewNumericGenerator(1)
	var all []string
	for i := 0; i < 10; i++ {
		all = append(all, fmt.Sprint(i))
	}
	_, err := g.Generate(all)
	assert.ErrorIs(t, err, ErrExhausted)
}
