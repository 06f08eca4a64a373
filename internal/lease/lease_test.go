// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lease

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docflow/internal/task"
)

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	unlock, err := d.Lock("t1")
	require.NoError(t, err)

	_, err = d.Lock("t1")
	require.ErrorIs(t, err, task.ErrAlreadyRunning)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))

	other, err := d.Lock("t2")
	require.NoError(t, err, "leases are per task")
	require.NoError(t, other())

	require.NoError(t, unlock())

	again, err := d.Lock("t1")
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestLock_RecordsHolderPID(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDir(dir)
	require.NoError(t, err)

	unlock, err := d.Lock("t1")
	require.NoError(t, err)
	defer unlock()

	data, err := os.ReadFile(filepath.Join(dir, ".t1.lock"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestLock_InvalidID(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	_, err = d.Lock("../x")
	assert.ErrorIs(t, err, task.ErrInvalidInput)
}

func TestDir_SatisfiesLocker(t *testing.T) {
	var _ task.Locker = (*Dir)(nil)
}
