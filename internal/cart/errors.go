package cart

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrDecode          = errors.New("malformed cart data in session")
)

var (
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be at least 1 when adding to cart", ErrInvalidArgument)
	ErrNegativeQuantity = fmt.Errorf("%w: quantity must be positive when updating cart", ErrInvalidArgument)
	ErrMissingPrice     = fmt.Errorf("%w: missing price when adding to cart", ErrInvalidArgument)
	ErrInvalidPrice     = fmt.Errorf("%w: price is not a decimal", ErrInvalidArgument)
	ErrItemNotFound     = fmt.Errorf("%w: variant not in cart", ErrNotFound)
)
