package application

import (
	"errors"
	"fmt"
)

// ErrValidation marks malformed commands; the HTTP layer maps it to 400.
var ErrValidation = errors.New("validation")

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
