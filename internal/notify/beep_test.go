package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToneLength(t *testing.T) {
	s := tone(440, 100*time.Millisecond)

	buf := make([][2]float64, 512)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			break
		}
		for _, smp := range buf[:n] {
			assert.LessOrEqual(t, smp[0], 0.3)
			assert.GreaterOrEqual(t, smp[0], -0.3)
		}
	}

	assert.Equal(t, chimeRate.N(100*time.Millisecond), total)
}
