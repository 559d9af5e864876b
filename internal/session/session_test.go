package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIDLengthAndAlphabet(t *testing.T) {
	id := GenerateID()
	assert.Len(t, id, idLength)
	for _, c := range id {
		assert.Contains(t, idAlphabet, string(c))
	}
}

func TestGenerateIDIsRandom(t *testing.T) {
	assert.NotEqual(t, GenerateID(), GenerateID())
}

func TestNewDirFilenames(t *testing.T) {
	d := NewDir("abc12345")
	assert.Equal(t, filepath.Join(BaseDir(), "aexpect_abc12345"), d.Path)
	assert.Equal(t, filepath.Join(d.Path, "shell-pid"), d.ShellPID)
	assert.Equal(t, filepath.Join(d.Path, "outpipe-tail"), d.ReaderName("tail"))
}

func TestDirInitAndRemove(t *testing.T) {
	os.Unsetenv("AEXPECT_DEBUG")
	d := NewDir("testinit1")
	require.NoError(t, d.Init())
	defer os.RemoveAll(d.Path)

	info, err := os.Stat(d.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	d.Remove()
	_, err = os.Stat(d.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestDirRemoveSkippedInDebugMode(t *testing.T) {
	os.Setenv("AEXPECT_DEBUG", "1")
	defer os.Unsetenv("AEXPECT_DEBUG")

	d := NewDir("testinit2")
	require.NoError(t, d.Init())
	defer os.RemoveAll(d.Path)

	d.Remove()
	_, err := os.Stat(d.Path)
	assert.NoError(t, err)
}

func TestPIDRoundTrip(t *testing.T) {
	d := NewDir("testpid1")
	require.NoError(t, d.Init())
	defer os.RemoveAll(d.Path)

	_, ok := d.ReadPID()
	assert.False(t, ok)

	require.NoError(t, d.WritePID(4242))
	pid, ok := d.ReadPID()
	require.True(t, ok)
	assert.Equal(t, 4242, pid)
}

func TestStatusRoundTrip(t *testing.T) {
	d := NewDir("teststatus1")
	require.NoError(t, d.Init())
	defer os.RemoveAll(d.Path)

	require.NoError(t, d.WriteStatus(7))
	status, ok := d.ReadStatus()
	require.True(t, ok)
	assert.Equal(t, 7, status)
}

func TestReadOutputMissingFile(t *testing.T) {
	d := NewDir("testoutputmissing")
	_, ok := d.ReadOutput()
	assert.False(t, ok)
}
