// Package captcha turns challenge images into validated answers using a
// chain of solving tiers.
package captcha

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrChallengeUnsolved is returned when no tier produced a valid answer.
	ErrChallengeUnsolved = errors.New("challenge unsolved")
	// ErrInvalidAnswer is returned when a proposed answer does not match the
	// syntax the portal expects.
	ErrInvalidAnswer = errors.New("answer does not match expected syntax")
)

// Challenge is a single challenge image, it is consumed by exactly one
// solve attempt.
type Challenge struct {
	Image    []byte
	IssuedAt time.Time
}

type Confidence int

const (
	ConfidenceLocal Confidence = iota
	ConfidenceRemote
	// ConfidenceHybrid means part of the answer was recovered locally after
	// another pass failed to see it, e.g. a lost arithmetic operator.
	ConfidenceHybrid
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLocal:
		return "local"
	case ConfidenceRemote:
		return "remote"
	case ConfidenceHybrid:
		return "hybrid"
	}
	return "unknown"
}

// Answer is a proposed solution, it has already been validated against the
// syntax it was solved for.
type Answer struct {
	Text       string
	Confidence Confidence
}

// Tier is a single way of solving a challenge.
type Tier interface {
	Name() string
	Solve(ctx context.Context, challenge Challenge, syntax Syntax) (Answer, error)
}
