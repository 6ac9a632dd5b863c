package otp

import "time"

var GenerateCode = generateCode

func SetClock(s *Service, now func() time.Time) { s.now = now }

func SetCodeSource(s *Service, fn func() (string, error)) { s.newCode = fn }
