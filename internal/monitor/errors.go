package monitor

import (
	"errors"
	"fmt"
)

// ErrInvalidProduct marks a malformed item returned by a collector.
var ErrInvalidProduct = errors.New("invalid product")

func errInvalidProduct(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidProduct, detail)
}
