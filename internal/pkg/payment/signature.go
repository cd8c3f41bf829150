package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"
)

// SignatureHeader is the request header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the accepted clock skew between signing and receipt.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature covers every reason a delivery is not trusted:
// missing header, malformed header, digest mismatch or stale timestamp.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifiedEvent is a payload whose signature checked out. Only the envelope
// is decoded here, business fields are left to Translate.
type VerifiedEvent struct {
	ID       string
	Type     string
	Created  int64
	SignedAt time.Time
	Payload  []byte
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
}

// Verify checks payload against the Stripe-Signature header value.
func Verify(payload []byte, signatureHeader, secret string, tolerance time.Duration) (*VerifiedEvent, error) {
	header := strings.TrimSpace(signatureHeader)
	if header == "" || strings.TrimSpace(secret) == "" {
		return nil, ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	signedAt, ok := signatureTimestamp(header)
	if !ok {
		return nil, ErrInvalidSignature
	}
	// The library only rejects timestamps that are too old.
	if signedAt.After(time.Now().Add(tolerance)) {
		return nil, fmt.Errorf("%w: timestamp in the future", ErrInvalidSignature)
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	return &VerifiedEvent{
		ID:       env.ID,
		Type:     env.Type,
		Created:  env.Created,
		SignedAt: signedAt,
		Payload:  payload,
	}, nil
}

func signatureTimestamp(header string) (time.Time, bool) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] != "t" {
			continue
		}
		unix, err := strconv.ParseInt(kv[1], 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(unix, 0), true
	}
	return time.Time{}, false
}

// Verifier binds the signing secret so callers only pass the delivery.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: secret, tolerance: tolerance}
}

func (v *Verifier) Verify(payload []byte, signatureHeader string) (*VerifiedEvent, error) {
	return Verify(payload, signatureHeader, v.secret, v.tolerance)
}
