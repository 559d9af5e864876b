package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireTryAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock-server-running")

	f, err := AcquireExclusive(path)
	require.NoError(t, err)

	_, ok, err := TryAcquireExclusive(path)
	require.NoError(t, err)
	assert.False(t, ok, "a second exclusive attempt must not succeed while the first is held")

	ReleaseExclusive(f)

	f2, ok, err := TryAcquireExclusive(path)
	require.NoError(t, err)
	assert.True(t, ok)
	ReleaseExclusive(f2)
}

func TestIsLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock-server-running")

	assert.False(t, IsLocked(path))

	f, err := AcquireExclusive(path)
	require.NoError(t, err)
	assert.True(t, IsLocked(path))

	ReleaseExclusive(f)
	assert.False(t, IsLocked(path))
}

func TestIsLockedMissingFile(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsLocked(filepath.Join(dir, "does-not-exist")))
}

func TestWaitForReleaseBlocksUntilReleased(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock-server-running")

	f, err := AcquireExclusive(path)
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		ReleaseExclusive(f)
		close(released)
	}()

	start := time.Now()
	require.NoError(t, WaitForRelease(path))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	<-released
}

func TestWaitForPolling(t *testing.T) {
	var calls int
	cond := func() bool {
		calls++
		return calls >= 3
	}
	ok := WaitFor(cond, time.Second, 0, 5*time.Millisecond)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitForTimesOut(t *testing.T) {
	ok := WaitFor(func() bool { return false }, 20*time.Millisecond, 0, 5*time.Millisecond)
	assert.False(t, ok)
}
