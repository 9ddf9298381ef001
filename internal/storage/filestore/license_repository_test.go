package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLicense(key string) *license.License {
	return license.New(key, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 30, "owner "+key)
}

func TestLicenseRepository_MissingFileIsEmpty(t *testing.T) {
	repo := NewLicenseRepository(t.TempDir(), zaptest.NewLogger(t))

	licenses, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, licenses)

	_, err = repo.FindByKey(context.Background(), "nope")
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestLicenseRepository_CreateListInsertionOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewLicenseRepository(dir, zaptest.NewLogger(t))

	for _, key := range []string{"cccc", "aaaa", "bbbb"} {
		require.NoError(t, repo.Create(ctx, newTestLicense(key)))
	}

	// A fresh instance proves the data came from disk.
	reopened := NewLicenseRepository(dir, zaptest.NewLogger(t))
	licenses, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, licenses, 3)
	assert.Equal(t, "cccc", licenses[0].Key)
	assert.Equal(t, "aaaa", licenses[1].Key)
	assert.Equal(t, "bbbb", licenses[2].Key)

	got, err := reopened.FindByKey(ctx, "aaaa")
	require.NoError(t, err)
	want := newTestLicense("aaaa")
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, got.Active)
	assert.Equal(t, "owner aaaa", got.OwnerName)
}

func TestLicenseRepository_CreateRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository(t.TempDir(), zaptest.NewLogger(t))

	require.NoError(t, repo.Create(ctx, newTestLicense("dup")))
	err := repo.Create(ctx, newTestLicense("dup"))
	assert.ErrorIs(t, err, license.ErrDuplicateKey)

	licenses, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, licenses, 1)
}

func TestLicenseRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository(t.TempDir(), zaptest.NewLogger(t))

	require.NoError(t, repo.Create(ctx, newTestLicense("one")))
	require.NoError(t, repo.Create(ctx, newTestLicense("two")))

	lic, err := repo.FindByKey(ctx, "one")
	require.NoError(t, err)
	lic.Active = false
	require.NoError(t, repo.Update(ctx, lic))

	lic, err = repo.FindByKey(ctx, "one")
	require.NoError(t, err)
	assert.False(t, lic.Active)

	err = repo.Update(ctx, newTestLicense("missing"))
	assert.ErrorIs(t, err, license.ErrNotFound)

	deleted, err := repo.Delete(ctx, "one")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "one")
	require.NoError(t, err)
	assert.False(t, deleted)

	licenses, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	assert.Equal(t, "two", licenses[0].Key)
}

func TestLicenseRepository_SkipsMalformedAndReadsLegacyLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	content := strings.Join([]string{
		"a1b2-c3d4-e5f6-a7b8;2025-01-01T10:00:00.000Z;2025-01-31T10:00:00.000Z;true;true;Alice;2025-01-02T10:00:00.000Z",
		"",
		"garbage line without separators",
		"bad-time;yesterday;tomorrow;true",
		";2025-01-01T10:00:00Z;2025-01-31T10:00:00Z;true",
		"old-four-fields;2025-01-01T10:00:00Z;2025-01-31T10:00:00Z;false",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, LicenseFileName), []byte(content), 0o600))

	repo := NewLicenseRepository(dir, zaptest.NewLogger(t))
	licenses, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, licenses, 2)

	assert.Equal(t, "a1b2-c3d4-e5f6-a7b8", licenses[0].Key)
	assert.Equal(t, "Alice", licenses[0].OwnerName)
	assert.True(t, licenses[0].Active)

	assert.Equal(t, "old-four-fields", licenses[1].Key)
	assert.Equal(t, "", licenses[1].OwnerName)
	assert.False(t, licenses[1].Active)
}

func TestLicenseRepository_RewritePreservesMalformedLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, LicenseFileName)
	require.NoError(t, os.WriteFile(path, []byte("not a license\n"), 0o600))

	repo := NewLicenseRepository(dir, zaptest.NewLogger(t))
	require.NoError(t, repo.Create(ctx, newTestLicense("k1")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "not a license", lines[0])
	assert.Len(t, strings.Split(lines[1], ";"), licenseFieldCount)
}

func TestLicenseRepository_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewLicenseRepository(dir, zaptest.NewLogger(t))

	for _, key := range []string{"k1", "k2", "k3"} {
		require.NoError(t, repo.Create(ctx, newTestLicense(key)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, LicenseFileName, entries[0].Name())
}

func TestLicenseRepository_ReadFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes every read fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, LicenseFileName), 0o755))

	repo := NewLicenseRepository(dir, zaptest.NewLogger(t))
	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ierr.ErrStorage))

	err = repo.Create(context.Background(), newTestLicense("k"))
	assert.ErrorIs(t, err, ierr.ErrStorage)
}

func TestLicenseRepository_CanceledContext(t *testing.T) {
	repo := NewLicenseRepository(t.TempDir(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Create(ctx, newTestLicense("k"))
	assert.ErrorIs(t, err, context.Canceled)
}
