package shellpool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run_CapturesOutputAndExitCode(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Run(context.Background(), "echo hi", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, strings.Contains(res.Output, "hi"))
}

func TestPool_Run_NonZeroExitIsNotAnError(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Run(context.Background(), "exit 3", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestPool_Run_TimesOut(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Run(context.Background(), "sleep 5", 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.True(t, res.TimedOut)
}

func TestEnsureSingleRedirect_Idempotent(t *testing.T) {
	assert.Equal(t, "ls 2>&1", ensureSingleRedirect("ls"))
	assert.Equal(t, "ls 2>&1", ensureSingleRedirect("ls 2>&1"))
}

func TestPool_FIFOFairness(t *testing.T) {
	p, err := New(Config{Size: 1})
	require.NoError(t, err)
	defer p.Close()

	sh, err := p.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		sh2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		close(acquired)
		p.Release(sh2)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block until Release")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(sh)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}
