package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecrementedClampsAtZero(t *testing.T) {
	assert.Equal(t, 3, Decremented(5, 2))
	assert.Equal(t, 0, Decremented(5, 5))
	assert.Equal(t, 0, Decremented(2, 7))
	assert.Equal(t, 0, Decremented(0, 1))
}

func TestAdjustmentValidate(t *testing.T) {
	assert.NoError(t, Adjustment{ProductID: 1, Quantity: 1}.Validate())
	assert.ErrorIs(t, Adjustment{ProductID: 1}.Validate(), ErrInvalidQuantity)
}
