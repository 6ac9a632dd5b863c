// Copyright 2026 The Atelier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signup

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const emailVerificationPurpose = "email_verification"

// ErrInvalidLink is returned for malformed, tampered or expired verification links.
var ErrInvalidLink = errors.New("invalid or expired verification link")

type verificationClaims struct {
	TenantID string `json:"tid"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// LinkSigner issues and checks HS256 email verification tokens.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *LinkSigner) TTL() time.Duration { return s.ttl }

// Sign returns a token naming userID in tenantID.
func (s *LinkSigner) Sign(userID, tenantID string) (string, error) {
	now := s.now()
	claims := verificationClaims{
		TenantID: tenantID,
		Purpose:  emailVerificationPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return token, nil
}

// Parse returns the user and tenant ids carried by a valid token.
func (s *LinkSigner) Parse(token string) (userID, tenantID string, err error) {
	var claims verificationClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Purpose != emailVerificationPurpose || claims.Subject == "" {
		return "", "", ErrInvalidLink
	}
	return claims.Subject, claims.TenantID, nil
}
