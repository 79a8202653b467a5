package correlation

import "errors"

// ErrStaleCorrelation marks a result that matches no pending request. Such
// results are logged and dropped, never surfaced to the user.
var ErrStaleCorrelation = errors.New("correlation: no matching pending request")
