package staff

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

const recentAttemptLimit = 20

type (
	Repository interface {
		CreateAccessLog(ctx context.Context, entry AccessLog) (AccessLog, error)
		QueryAccessLogs(ctx context.Context, limit int) ([]AccessLog, error)
	}

	Service struct {
		repo   Repository
		conf   *core.Config
		logger core.Logger
	}
)

func NewService(repo Repository, conf *core.Config, logger core.Logger) *Service {
	return &Service{repo: repo, conf: conf, logger: logger}
}

// Authenticate checks an admin token attempt and records it either way.
// Returns ErrInvalidToken on mismatch.
func (svc *Service) Authenticate(ctx context.Context, att Attempt) error {
	ok := VerifyToken(att.Token, svc.conf.AdminSecretKey)

	entry := AccessLog{
		IPAddress: att.IPAddress,
		Success:   ok,
		CreatedAt: time.Now().UTC(),
	}
	if att.UserAgent != "" {
		entry.UserAgent = null.StringFrom(att.UserAgent)
	}
	if att.DeviceName != "" {
		entry.DeviceName = null.StringFrom(att.DeviceName)
	}
	if fp := Fingerprint(att.Token); fp != "" {
		entry.TokenFingerprint = null.StringFrom(fp)
	}
	if _, err := svc.repo.CreateAccessLog(ctx, entry); err != nil {
		// the audit trail must not take the login down with it
		svc.logger.Error("recording admin access attempt: "+err.Error(), err)
	}

	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// AccessLogs returns the most recent admin access attempts, newest first.
func (svc *Service) AccessLogs(ctx context.Context) ([]AccessLog, error) {
	return svc.repo.QueryAccessLogs(ctx, recentAttemptLimit)
}

// SecurityStatus summarizes recent admin access activity.
func (svc *Service) SecurityStatus(ctx context.Context) (Status, error) {
	logs, err := svc.repo.QueryAccessLogs(ctx, recentAttemptLimit)
	if err != nil {
		return Status{}, err
	}
	var failures int
	for _, l := range logs {
		if !l.Success {
			failures++
		}
	}
	return Status{
		AdminConfigured: svc.conf.AdminSecretKey != "",
		RecentAttempts:  logs,
		RecentFailures:  failures,
	}, nil
}
