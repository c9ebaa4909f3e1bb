package service

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/slipway-ci/slipway/internal/util"
)

type LockPolicy string

const (
	// PolicyQueue lines waiting runs up; every run that passed its
	// tests eventually deploys, in arrival order.
	PolicyQueue LockPolicy = "queue"
	// PolicyReplace keeps at most one waiting run per group. A newer
	// arrival supersedes the run already waiting; the executing deploy
	// always finishes.
	PolicyReplace LockPolicy = "replace"
)

func NewDeployLock(dir string) *DeployLock {
	return &DeployLock{
		dir:    dir,
		groups: make(map[string]*groupLock),
	}
}

// DeployLock hands out the deploy token for each concurrency group. At
// most one holder per group exists at a time, across every process
// sharing the lock directory: in-process ordering is done with waiter
// queues, cross-process exclusion with a lock file per group.
type DeployLock struct {
	dir    string
	mu     sync.Mutex
	groups map[string]*groupLock
}

type groupLock struct {
	mu      sync.Mutex
	held    bool
	waiters []*lockWaiter
}

type lockWaiter struct {
	ready      chan struct{}
	superseded chan struct{}
}

func (dl *DeployLock) group(name string) *groupLock {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	g, ok := dl.groups[name]
	if !ok {
		g = &groupLock{}
		dl.groups[name] = g
	}
	return g
}

func (dl *DeployLock) lockFilePath(group string) string {
	return filepath.Join(dl.dir, "slipway-"+util.SanitizeName(group)+".lock")
}

// Acquire blocks until the caller holds the deploy token for group or
// ctx is done. The returned release function must be called exactly once
// when the deploy finishes, whatever its outcome.
func (dl *DeployLock) Acquire(
	ctx context.Context,
	group string,
	policy LockPolicy,
) (func(), error) {
	g := dl.group(group)

	g.mu.Lock()
	if g.held || len(g.waiters) > 0 {
		w := &lockWaiter{
			ready:      make(chan struct{}),
			superseded: make(chan struct{}),
		}
		if policy == PolicyReplace {
			for _, prev := range g.waiters {
				close(prev.superseded)
			}
			g.waiters = g.waiters[:0]
		}
		g.waiters = append(g.waiters, w)
		g.mu.Unlock()

		select {
		case <-w.ready:
		case <-w.superseded:
			return nil, SupersededError{Group: group}
		case <-ctx.Done():
			if !g.abandon(w) {
				// The token was handed over concurrently with ctx
				// expiring; pass it on so the group is not wedged.
				g.handoff()
			}
			return nil, ctx.Err()
		}
	} else {
		g.held = true
		g.mu.Unlock()
	}

	fl, err := acquireFileLock(ctx, dl.lockFilePath(group))
	if err != nil {
		g.handoff()
		return nil, err
	}

	release := func() {
		if err := fl.Release(); err != nil {
			log.Error("releasing deploy lock file", "group", group, "err", err)
		}
		g.handoff()
	}
	return release, nil
}

// abandon removes w from the waiter queue. It returns false when w was
// already dequeued, which means the token now belongs to w's caller.
func (g *groupLock) abandon(w *lockWaiter) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, cur := range g.waiters {
		if cur == w {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// handoff passes the token to the oldest waiter, or marks the group
// free when nobody is waiting.
func (g *groupLock) handoff() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(w.ready)
		return
	}
	g.held = false
}
