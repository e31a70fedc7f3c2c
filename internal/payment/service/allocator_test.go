package service

import (
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestAllocate(t *testing.T) {
	cases := []struct {
		name                           string
		grand, tendered, previous      string
		wantPaid, wantRemain, wantOver string
		wantStatus                     paymentdomain.Status
	}{
		{"paid in full", "1000", "1000", "0", "1000", "0", "0", paymentdomain.StatusFull},
		{"advance", "1000", "400", "0", "400", "600", "0", paymentdomain.StatusAdvance},
		{"completes earlier advance", "1000", "600", "400", "1000", "0", "0", paymentdomain.StatusFull},
		{"overpaid", "236.00", "300.00", "0", "300", "0", "64", paymentdomain.StatusFull},
		{"nothing tendered", "236.00", "0", "0", "0", "236", "0", paymentdomain.StatusAdvance},
		{"zero bill", "0", "0", "0", "0", "0", "0", paymentdomain.StatusFull},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Allocate(d(tc.grand), d(tc.tendered), d(tc.previous))
			require.NoError(t, err)
			assert.True(t, got.TotalPaid.Equal(d(tc.wantPaid)), "total paid %s", got.TotalPaid)
			assert.True(t, got.Remaining.Equal(d(tc.wantRemain)), "remaining %s", got.Remaining)
			assert.True(t, got.Overpaid.Equal(d(tc.wantOver)), "overpaid %s", got.Overpaid)
			assert.Equal(t, tc.wantStatus, got.Classification)
		})
	}
}

func TestAllocateRejectsNegativeInputs(t *testing.T) {
	_, err := Allocate(d("100"), d("-1"), decimal.Zero)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = Allocate(d("-100"), d("1"), decimal.Zero)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = Allocate(d("100"), d("1"), d("-1"))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}
