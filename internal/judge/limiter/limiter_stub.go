//go:build !linux

package limiter

import (
	"context"

	appErr "arbiter/pkg/errors"
)

type stubLimiter struct{}

func New(cfg Config) (Limiter, error) {
	return &stubLimiter{}, nil
}

func (s *stubLimiter) Run(ctx context.Context, runSpec RunSpec) (Measurement, error) {
	return Measurement{}, appErr.New(appErr.JudgeSystemError).WithMessage("resource limiter is only supported on linux")
}

func (s *stubLimiter) KillSubmission(ctx context.Context, submissionID string) error {
	return appErr.New(appErr.JudgeSystemError).WithMessage("resource limiter is only supported on linux")
}
