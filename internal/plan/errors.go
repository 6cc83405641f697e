package plan

import "errors"

// ErrShapeMismatch marks caller misuse of the tracker: the baseline
// and edited tables were not fetched or filtered consistently (row
// identity sets or column sets differ). It is a programming error,
// never a condition to retry; callers surface it and drop the save.
var ErrShapeMismatch = errors.New("shape mismatch")
