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

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// touchInterval limits last-seen writes to one per minute per session.
const touchInterval = time.Minute

// Service manages server-side sessions.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewService creates a new session service
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout, now: time.Now}
}

// Lifetime is the absolute session lifetime, used for cookie expiry.
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// Create starts a session for userID.
func (s *Service) Create(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	sid, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		ID:         sid,
		UserID:     userID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a live session. Expired or idle sessions are deleted and
// reported as ErrSessionExpired; live ones are touched.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sess.IsExpired(now) || sess.IsIdle(now, s.idleTimeout) {
		if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	if now.Sub(sess.LastSeenAt) >= touchInterval {
		if err := s.repo.Touch(ctx, sessionID, now); err != nil {
			return nil, err
		}
		sess.LastSeenAt = now
	}
	return sess, nil
}

// Destroy ends a session.
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// DestroyUser ends every session of userID.
func (s *Service) DestroyUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// CleanupExpired deletes expired sessions and returns how many were removed.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
