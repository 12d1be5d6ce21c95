package sources

import (
	"context"
	"errors"

	"github.com/azure/follower-milestone-bot/internal/models"
)

var (
	// ErrTransient marks failures that may succeed on a later pass: the
	// upstream was unreachable, rate limited, or returned malformed data.
	ErrTransient = errors.New("transient fetch error")

	// ErrUnsupportedPlatform is returned when no source serves a platform
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrUnknownHandle is returned when the upstream has no such account
	ErrUnknownHandle = errors.New("unknown handle")
)

// Source fetches the current follower count of a profile
type Source interface {
	GetName() string
	IsEnabled() bool
	FetchFollowerCount(ctx context.Context, platform models.Platform, handle string) (*models.CountResult, error)
}
