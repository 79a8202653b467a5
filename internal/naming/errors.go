package naming

import "errors"

// ErrInvalidTable is returned when a synonym table cannot be decoded.
var ErrInvalidTable = errors.New("naming: invalid synonym table")
