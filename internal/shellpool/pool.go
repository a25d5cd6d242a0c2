package shellpool

import (
	"context"
	"log"
	"time"
)

// DefaultSize is the default number of pre-warmed shells, per SPEC_FULL.md
// §4.4 "Pre-spawns a configurable number (default 4)."
const DefaultSize = 4

// Config configures a Pool's shell processes.
type Config struct {
	Size    int
	Program string   // e.g. "/bin/sh"; defaults to "/bin/sh" if empty.
	Args    []string // e.g. ["-s"]; defaults to ["-s"] if empty.
	Cwd     string
	Env     []string
}

// Pool is a fixed-size, FIFO-fair pool of pre-warmed shell processes.
//
// Maps to: SPEC_FULL.md §4.4 Shell Pool (C4). Acquire/Release fairness is
// implemented with a buffered channel used as a semaphore-with-identity:
// handing out *shell values through the channel itself, rather than a
// separate mutex+condvar, guarantees FIFO order among waiters because Go
// channel receives are served in send order.
type Pool struct {
	cfg   Config
	idle  chan *shell
	all   []*shell
}

// New pre-spawns cfg.Size shells (DefaultSize if unset) and returns a ready
// pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Program == "" {
		cfg.Program = "/bin/sh"
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{"-s"}
	}

	p := &Pool{cfg: cfg, idle: make(chan *shell, cfg.Size)}
	for i := 0; i < cfg.Size; i++ {
		sh, err := newShell(cfg.Program, cfg.Args, cfg.Cwd, cfg.Env)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.all = append(p.all, sh)
		p.idle <- sh
	}
	return p, nil
}

// Acquire blocks until a shell is idle, or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*shell, error) {
	select {
	case sh := <-p.idle:
		return sh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a shell to the idle pool. If the shell died during its
// last run, it is replaced with a freshly spawned one in the background
// before being released, per SPEC_FULL.md §4.4 "always refills the pool in
// the background after a shell exits abnormally."
func (p *Pool) Release(sh *shell) {
	sh.mu.Lock()
	dead := sh.dead
	sh.mu.Unlock()

	if !dead {
		p.idle <- sh
		return
	}

	go func() {
		replacement, err := newShell(p.cfg.Program, p.cfg.Args, p.cfg.Cwd, p.cfg.Env)
		if err != nil {
			log.Printf("shellpool: failed to respawn shell after abnormal exit: %v", err)
			// Put the dead shell back rather than shrinking the pool
			// silently; the next Acquirer will see run() fail fast and the
			// caller can retry.
			p.idle <- sh
			return
		}
		p.idle <- replacement
	}()
}

// Run acquires a shell, runs command on it, and releases it back to the
// pool, applying timeout as the watchdog deadline.
func (p *Pool) Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error) {
	sh, err := p.Acquire(ctx)
	if err != nil {
		return RunResult{}, err
	}
	defer p.Release(sh)
	return sh.run(ctx, command, timeout)
}

// Close terminates every shell in the pool. Intended for process shutdown.
func (p *Pool) Close() {
	for _, sh := range p.all {
		sh.close()
	}
}
