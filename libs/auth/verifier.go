package auth

import (
	"context"
	"strings"
	"time"
)

// Verifier accepts HS256 tokens signed with Secret and, when JWKS is set,
// RS256 tokens whose kid resolves through it.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
	Now    func() time.Time
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	switch strings.ToUpper(header.Alg) {
	case "HS256":
		if v.Secret == "" {
			return nil, ErrInvalidToken
		}
		return ParseAndVerifyHS256(token, v.Secret, now)
	case "RS256":
		if v.JWKS == nil || header.Kid == "" {
			return nil, ErrInvalidToken
		}
		key, err := v.JWKS.Get(ctx, header.Kid)
		if err != nil {
			return nil, err
		}
		return VerifyRS256(token, key, now)
	default:
		return nil, ErrInvalidToken
	}
}
