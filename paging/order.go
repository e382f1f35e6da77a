package paging

import (
	"fmt"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// OrderError reports an out of order page. It unwraps to
// interfaces.ErrFileOutOfOrder or interfaces.ErrPageOutOfOrder.
type OrderError struct {
	Err      error
	Expected uint64
	Actual   uint64
}

func (e *OrderError) Error() string {
	if e.Err == interfaces.ErrFileOutOfOrder {
		return fmt.Sprintf("%v: got file index %d after %d", e.Err, e.Actual, e.Expected)
	}
	return fmt.Sprintf("%v: expected page %d, got %d", e.Err, e.Expected, e.Actual)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// StreamOrder tracks one transfer. File indices may skip but never regress;
// page numbers start at 0 for every file and increase by one.
// A StreamOrder must not be shared between streams.
type StreamOrder struct {
	latestIndex  uint64
	// Wider than page numbers so that it never wraps back to an
	// acceptable value after page math.MaxUint32.
	expectedPage uint64
}

// Check validates the next page of the stream.
func (o *StreamOrder) Check(page *DataPayloadPage) error {
	if page.Index < o.latestIndex {
		return &OrderError{Err: interfaces.ErrFileOutOfOrder, Expected: o.latestIndex, Actual: page.Index}
	}
	if page.Index > o.latestIndex {
		o.latestIndex = page.Index
		o.expectedPage = 0
	}
	if uint64(page.PageNumber) != o.expectedPage {
		return &OrderError{Err: interfaces.ErrPageOutOfOrder, Expected: o.expectedPage, Actual: uint64(page.PageNumber)}
	}
	o.expectedPage++
	return nil
}
