// Package token signs and verifies attestations as HS256 JWTs.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"anonpoll/internal/attestation/models"
	dErrors "anonpoll/pkg/domain-errors"
)

// Claims is the signed wire form of an attestation.
type Claims struct {
	Kind              models.Kind                `json:"knd"`
	Snapshot          models.DemographicSnapshot `json:"dem"`
	PollBinding       string                     `json:"pol,omitempty"`
	PayloadCommitment string                     `json:"cmt,omitempty"`
	Nullifier         string                     `json:"nul,omitempty"`
	jwt.RegisteredClaims
}

// Signer holds the process-wide symmetric key.
type Signer struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewSigner(signingKey, issuer string) *Signer {
	return &Signer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
}

// Sign serializes c. IssuedAt, ExpiresAt and ID are taken from c.
func (s *Signer) Sign(c models.Claims) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind:              c.Kind,
		Snapshot:          c.Snapshot,
		PollBinding:       c.PollBinding,
		PayloadCommitment: c.PayloadCommitment,
		Nullifier:         c.Nullifier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Pseudonym,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			ID:        id,
		},
	})
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigningUnavailable, "failed to sign attestation")
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry. A bad signature or a
// malformed token is InvalidAttestation; a valid but stale one is
// ExpiredAttestation.
func (s *Signer) Verify(tokenString string) (models.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Claims{}, dErrors.New(dErrors.CodeExpiredAttestation, "attestation has expired")
		}
		return models.Claims{}, dErrors.New(dErrors.CodeInvalidAttestation, "invalid attestation")
	}
	if !parsed.Valid {
		return models.Claims{}, dErrors.New(dErrors.CodeInvalidAttestation, "invalid attestation")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return models.Claims{}, dErrors.New(dErrors.CodeInvalidAttestation, "invalid attestation claims")
	}
	switch claims.Kind {
	case models.KindSession, models.KindVoteIntent:
	default:
		return models.Claims{}, dErrors.New(dErrors.CodeInvalidAttestation, "invalid attestation claims")
	}

	out := models.Claims{
		ID:                claims.ID,
		Kind:              claims.Kind,
		Pseudonym:         claims.Subject,
		Snapshot:          claims.Snapshot,
		PollBinding:       claims.PollBinding,
		PayloadCommitment: claims.PayloadCommitment,
		Nullifier:         claims.Nullifier,
		ExpiresAt:         claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
