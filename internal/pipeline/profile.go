package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"zepdf/internal/services"
)

// profileLock serializes office-engine invocations against one isolated user
// profile. The suite keeps its own lock file inside the profile and fails or
// hangs when two instances share it, so at most one invocation runs per
// profile at a time.
type profileLock struct {
	lock *flock.Flock
}

func newProfileLock(profileDir string) (*profileLock, error) {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "", "profile", "create profile directory", err)
	}
	return &profileLock{lock: flock.New(filepath.Join(profileDir, "engine.lock"))}, nil
}

// acquire blocks until the profile is free or ctx is done.
func (l *profileLock) acquire(ctx context.Context) error {
	ok, err := l.lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrResource, "", "profile", "acquire engine lock", err)
	}
	if !ok {
		return services.Wrap(services.ErrResource, "", "profile", "engine lock unavailable", nil)
	}
	return nil
}

func (l *profileLock) release() {
	_ = l.lock.Unlock()
}
