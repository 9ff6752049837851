//go:build unix

package tier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CacaoGatto/RedisGraph/internal/mmfile"
)

func newThreshold(t *testing.T, threshold int, maxSize int64) *Allocator {
	t.Helper()
	a, err := New(Config{
		Policy:          PolicyThreshold,
		Threshold:       threshold,
		CapacityDir:     t.TempDir(),
		CapacityMaxSize: maxSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestCapacityMissingDir(t *testing.T) {
	_, err := New(Config{
		Policy:      PolicyCapacity,
		CapacityDir: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.ErrorIs(t, err, ErrTierInit)
}

func TestCapacityPathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := New(Config{Policy: PolicyCapacity, CapacityDir: path})
	require.ErrorIs(t, err, ErrTierInit)
}

func TestCapacityRequireDAX(t *testing.T) {
	dir := t.TempDir()
	probe, err := os.CreateTemp(dir, "probe")
	require.NoError(t, err)
	dax, _ := isDAX(probe)
	probe.Close()
	if dax {
		t.Skip("temp dir is DAX-enabled")
	}

	_, err = New(Config{Policy: PolicyCapacity, CapacityDir: dir, RequireDAX: true})
	require.ErrorIs(t, err, ErrTierInit)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, arenaSuffix, filepath.Ext(e.Name()), "failed init must not leave an arena behind")
	}
}

func TestThresholdPlacement(t *testing.T) {
	page := mmfile.PageSize()
	a := newThreshold(t, page, 0)

	small, err := a.Alloc(page - 1)
	require.NoError(t, err)
	require.Equal(t, FastTier, a.DetectTier(small))

	big, err := a.AllocZeroed(2, page)
	require.NoError(t, err)
	require.Equal(t, CapacityTier, a.DetectTier(big))
	require.Equal(t, 2*page, big.Len())
	require.Len(t, big.Region(), 2*page)

	s := a.Stats()
	require.True(t, s.CapacityEnabled)
	require.Equal(t, 1, s.CapacityRegions)
	require.EqualValues(t, 2*page, s.CapacityBytes)
	require.EqualValues(t, 2*page, s.ArenaSize)

	require.NoError(t, a.Free(small))
	require.NoError(t, a.Free(big))
	require.ErrorIs(t, a.Free(big), ErrBadMem)
	require.Zero(t, a.Stats().CapacityRegions)
}

func TestCapacityReuseIsZeroed(t *testing.T) {
	page := mmfile.PageSize()
	a := newThreshold(t, 1, 0)

	m, err := a.AllocZeroed(1, 100)
	require.NoError(t, err)
	require.Equal(t, CapacityTier, m.Tier())
	require.Len(t, m.Region(), page, "regions are page rounded")
	for i := range m.Bytes() {
		m.Bytes()[i] = 0xAB
	}
	require.NoError(t, a.Free(m))

	again, err := a.AllocZeroed(1, 100)
	require.NoError(t, err)
	for i, b := range again.Bytes() {
		require.Zero(t, b, "reused region byte %d not zeroed", i)
	}
	require.EqualValues(t, page, a.Stats().ArenaSize, "reuse must not grow the arena")
	require.NoError(t, a.Free(again))
}

func TestCapacityLimit(t *testing.T) {
	page := mmfile.PageSize()
	a := newThreshold(t, 1, int64(2*page))

	m1, err := a.Alloc(page)
	require.NoError(t, err)
	m2, err := a.Alloc(page)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	require.ErrorIs(t, err, ErrNoSpace)

	require.NoError(t, a.Free(m1))
	m3, err := a.Alloc(page)
	require.NoError(t, err, "released span should satisfy the request")

	require.NoError(t, a.Free(m2))
	require.NoError(t, a.Free(m3))
}

func TestReallocMigratesAcrossThreshold(t *testing.T) {
	page := mmfile.PageSize()
	a := newThreshold(t, page, 0)

	m, err := a.Alloc(16)
	require.NoError(t, err)
	require.Equal(t, FastTier, m.Tier())
	copy(m.Bytes(), "persistent-bytes")

	grown, err := a.Realloc(m, 2*page)
	require.NoError(t, err)
	require.Equal(t, CapacityTier, grown.Tier())
	require.Equal(t, "persistent-bytes", string(grown.Bytes()[:16]))
	require.True(t, m.Released())
	require.EqualValues(t, 1, a.Stats().Migrations)

	shrunk, err := a.Realloc(grown, 8)
	require.NoError(t, err)
	require.Equal(t, FastTier, shrunk.Tier())
	require.Equal(t, "persiste", string(shrunk.Bytes()))
	require.EqualValues(t, 2, a.Stats().Migrations)
	require.Zero(t, a.Stats().CapacityRegions)

	require.NoError(t, a.Free(shrunk))
}

func TestCapacityReallocStaysInTier(t *testing.T) {
	page := mmfile.PageSize()
	a, err := New(Config{Policy: PolicyCapacity, CapacityDir: t.TempDir()})
	require.NoError(t, err)
	defer a.Close()

	m, err := a.Alloc(page)
	require.NoError(t, err)
	m.Bytes()[0] = 7

	grown, err := a.Realloc(m, 3*page)
	require.NoError(t, err)
	require.Equal(t, CapacityTier, grown.Tier())
	require.EqualValues(t, 7, grown.Bytes()[0])
	require.Zero(t, a.Stats().Migrations)
	require.NoError(t, a.Sync())
	require.NoError(t, a.Free(grown))
}

func TestCloseRemovesArena(t *testing.T) {
	dir := t.TempDir()
	a, err := New(Config{Policy: PolicyCapacity, CapacityDir: dir})
	require.NoError(t, err)

	m, err := a.Alloc(10)
	require.NoError(t, err)
	path := a.Stats().ArenaPath
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.True(t, m.Released(), "close releases live regions")
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
