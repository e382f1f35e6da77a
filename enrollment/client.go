package enrollment

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/ruteri/splitkey-pep/cryptoutils"
)

// KeyComponentRequester sends a key component request to one authority.
type KeyComponentRequester interface {
	RequestKeyComponent(ctx context.Context, request SignedKeyComponentRequest) (KeyComponentResponse, error)
	Name() string
}

// Enroll requests key components from every authority in parallel and
// combines them. Failures of all authorities are reported together.
func Enroll(ctx context.Context, identity *cryptoutils.Identity, authorities ...KeyComponentRequester) (*EnrolledKeys, error) {
	request, err := NewRequest(identity)
	if err != nil {
		return nil, fmt.Errorf("could not sign key component request: %w", err)
	}

	responses := make([]KeyComponentResponse, len(authorities))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errors *multierror.Error
	)
	for i, authority := range authorities {
		wg.Add(1)
		go func(i int, authority KeyComponentRequester) {
			defer wg.Done()
			response, err := authority.RequestKeyComponent(ctx, request)
			if err != nil {
				mu.Lock()
				errors = multierror.Append(errors, fmt.Errorf("%s: %w", authority.Name(), err))
				mu.Unlock()
				return
			}
			responses[i] = response
		}(i, authority)
	}
	wg.Wait()

	if err := errors.ErrorOrNil(); err != nil {
		return nil, err
	}
	return CombineResponses(responses...)
}
