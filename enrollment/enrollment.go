package enrollment

import (
	"fmt"
	"time"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/keysplit"
	"github.com/ruteri/splitkey-pep/kms"
	"github.com/ruteri/splitkey-pep/signing"
)

// DefaultLeeway bounds the age of key component requests.
const DefaultLeeway = time.Hour

// KeyComponentRequest carries no data: the signature is the request.
type KeyComponentRequest struct{}

// SignedKeyComponentRequest is what a party sends to each authority.
type SignedKeyComponentRequest = signing.Signed[KeyComponentRequest]

// KeyComponentResponse holds the authority's components for the requester.
// EncryptionKeyComponent is absent when the requester has no data access.
type KeyComponentResponse struct {
	PseudonymKeyComponent  keysplit.Scalar  `json:"pseudonymKeyComponent"`
	EncryptionKeyComponent *keysplit.Scalar `json:"encryptionKeyComponent,omitempty"`
}

// HasDataAccess reports whether the response carries a data key component.
func (r KeyComponentResponse) HasDataAccess() bool {
	return r.EncryptionKeyComponent != nil
}

// NewRequest signs an empty key component request with identity.
func NewRequest(identity *cryptoutils.Identity) (SignedKeyComponentRequest, error) {
	return signing.Sign(KeyComponentRequest{}, identity)
}

// HandleRequest answers a key component request. Authentication failures wrap
// interfaces.ErrAuthentication; every authorization failure is the same
// interfaces.ErrEnrollmentDenied without detail.
func HandleRequest(request SignedKeyComponentRequest, translators *kms.Translators, opts signing.ValidateOptions) (KeyComponentResponse, error) {
	signatory, err := request.Validate(opts)
	if err != nil {
		return KeyComponentResponse{}, err
	}

	party := signatory.EnrolledParty()
	if party == interfaces.PartyNone {
		return KeyComponentResponse{}, interfaces.ErrEnrollmentDenied
	}

	recipient, err := keysplit.RecipientForCertificate(signatory.Chain)
	if err != nil {
		return KeyComponentResponse{}, interfaces.ErrEnrollmentDenied
	}

	response := KeyComponentResponse{
		PseudonymKeyComponent: translators.Pseudonym.KeyComponent(recipient.Rekey),
	}
	if interfaces.HasDataAccess(party) {
		component := translators.Data.KeyComponent(recipient.Rekey)
		response.EncryptionKeyComponent = &component
	}
	return response, nil
}

// EnrolledKeys are a party's effective keys, combined from all authorities.
type EnrolledKeys struct {
	PseudonymKey keysplit.Scalar
	// DataKey is nil for parties without data access.
	DataKey *keysplit.Scalar
}

// CombineResponses multiplies the components of every authority. Either all
// or none of the responses must carry a data key component.
func CombineResponses(responses ...KeyComponentResponse) (*EnrolledKeys, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("no key component responses")
	}

	pseudonymComponents := make([]keysplit.Scalar, 0, len(responses))
	var dataComponents []keysplit.Scalar
	for _, response := range responses {
		pseudonymComponents = append(pseudonymComponents, response.PseudonymKeyComponent)
		if response.EncryptionKeyComponent != nil {
			dataComponents = append(dataComponents, *response.EncryptionKeyComponent)
		}
	}
	if len(dataComponents) != 0 && len(dataComponents) != len(responses) {
		return nil, fmt.Errorf("inconsistent data access: %d of %d authorities sent a data key component", len(dataComponents), len(responses))
	}

	pseudonymKey, err := keysplit.CombineKeyComponents(pseudonymComponents...)
	if err != nil {
		return nil, err
	}
	keys := &EnrolledKeys{PseudonymKey: pseudonymKey}
	if len(dataComponents) > 0 {
		dataKey, err := keysplit.CombineKeyComponents(dataComponents...)
		if err != nil {
			return nil, err
		}
		keys.DataKey = &dataKey
	}
	return keys, nil
}
