package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeSize(t *testing.T) {
	testCases := []struct {
		name         string
		balance      float64
		riskFraction float64
		cap          float64
		expected     float64
	}{
		{
			name:         "Fraction of balance below cap",
			balance:      10000,
			riskFraction: 0.05,
			cap:          1000,
			expected:     500,
		},
		{
			name:         "Cap binds",
			balance:      10000,
			riskFraction: 0.2,
			cap:          1000,
			expected:     1000,
		},
		{
			name:         "Small balance",
			balance:      500,
			riskFraction: 0.05,
			cap:          1000,
			expected:     25,
		},
		{
			name:         "Zero balance",
			balance:      0,
			riskFraction: 0.05,
			cap:          1000,
			expected:     0,
		},
		{
			name:         "Negative balance never produces a negative size",
			balance:      -250,
			riskFraction: 0.05,
			cap:          1000,
			expected:     0,
		},
		{
			name:         "Oversized fraction still bounded by balance",
			balance:      800,
			riskFraction: 1,
			cap:          5000,
			expected:     800,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			size := SafeSize(tc.balance, tc.riskFraction, tc.cap)
			assert.Equal(t, tc.expected, size)
			assert.GreaterOrEqual(t, size, 0.0)
			if tc.balance > 0 {
				assert.LessOrEqual(t, size, tc.balance)
				assert.LessOrEqual(t, size, tc.cap)
			}
		})
	}
}
