package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/makkenzo/device-license-api/internal/domain/activation"
	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/handler/dto"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/lock"
	"github.com/makkenzo/device-license-api/internal/metrics"
	"github.com/makkenzo/device-license-api/internal/storage/filestore"
	"github.com/makkenzo/device-license-api/internal/storage/memstorage"
	"github.com/makkenzo/device-license-api/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	service     *LicenseService
	licenses    license.Repository
	activations activation.Repository
	clock       *testClock
	metrics     *metrics.Metrics
}

func newMemFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixture(t, memstorage.NewLicenseRepository(), memstorage.NewActivationRepository(), opts...)
}

func newFileFixture(t *testing.T, dir string, opts ...Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return newFixture(t, filestore.NewLicenseRepository(dir, logger), filestore.NewActivationRepository(dir, logger), opts...)
}

func newFixture(t *testing.T, licenses license.Repository, activations activation.Repository, opts ...Option) *fixture {
	t.Helper()
	clock := newTestClock()
	m := metrics.New(prometheus.NewRegistry())
	allOpts := append([]Option{WithClock(clock.Now), WithMetrics(m)}, opts...)
	return &fixture{
		service:     NewLicenseService(licenses, activations, lock.NewKeyedMutex(), zaptest.NewLogger(t), allOpts...),
		licenses:    licenses,
		activations: activations,
		clock:       clock,
		metrics:     m,
	}
}

func (f *fixture) create(t *testing.T, days int) *license.License {
	t.Helper()
	lic, err := f.service.CreateLicense(context.Background(), &dto.CreateLicenseRequest{DurationDays: &days})
	require.NoError(t, err)
	return lic
}

func TestCreateLicense_Defaults(t *testing.T) {
	f := newMemFixture(t)

	lic, err := f.service.CreateLicense(context.Background(), &dto.CreateLicenseRequest{})
	require.NoError(t, err)

	assert.True(t, util.IsLicenseKeyFormat(lic.Key), "unexpected key %q", lic.Key)
	assert.True(t, lic.Active)
	assert.Equal(t, "", lic.OwnerName)
	assert.Equal(t, f.clock.Now(), lic.CreatedAt)
	assert.Equal(t, 30*24*time.Hour, lic.ExpiresAt.Sub(lic.CreatedAt))

	stored, err := f.licenses.FindByKey(context.Background(), lic.Key)
	require.NoError(t, err)
	assert.Equal(t, lic.ExpiresAt, stored.ExpiresAt)
}

func TestCreateLicense_DurationAndOwner(t *testing.T) {
	f := newMemFixture(t)
	days := 7
	owner := "  Acme Corp  "

	lic, err := f.service.CreateLicense(context.Background(), &dto.CreateLicenseRequest{DurationDays: &days, OwnerName: &owner})
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", lic.OwnerName)
	assert.Equal(t, 7*24*time.Hour, lic.ExpiresAt.Sub(lic.CreatedAt))
}

func TestCreateLicense_ValidationErrors(t *testing.T) {
	f := newMemFixture(t, WithDurationLimits(30, 365))
	zero, negative, tooLong := 0, -3, 366
	semicolon := "evil;owner"
	newline := "evil\nowner"
	longName := fmt.Sprintf("%0*d", license.MaxOwnerNameLength+1, 0)

	cases := map[string]*dto.CreateLicenseRequest{
		"zero days":      {DurationDays: &zero},
		"negative days":  {DurationDays: &negative},
		"too many days":  {DurationDays: &tooLong},
		"semicolon name": {OwnerName: &semicolon},
		"newline name":   {OwnerName: &newline},
		"long name":      {OwnerName: &longName},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.CreateLicense(context.Background(), req)
			assert.ErrorIs(t, err, ierr.ErrValidation)
		})
	}

	licenses, err := f.licenses.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, licenses)
}

func TestCreateLicense_RegeneratesCollidingKeys(t *testing.T) {
	keys := []string{"aaaa-aaaa-aaaa-aaaa", "aaaa-aaaa-aaaa-aaaa", "bbbb-bbbb-bbbb-bbbb", "cccc-cccc-cccc-cccc"}
	var mu sync.Mutex
	next := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		key := keys[0]
		keys = keys[1:]
		return key, nil
	}

	f := newMemFixture(t, WithKeyGenerator(next))
	ctx := context.Background()

	first := f.create(t, 30)
	assert.Equal(t, "aaaa-aaaa-aaaa-aaaa", first.Key)

	// The second key collides with an existing license.
	second := f.create(t, 30)
	assert.Equal(t, "bbbb-bbbb-bbbb-bbbb", second.Key)

	// A deleted license keeps its activation, so its key is never reissued.
	require.NoError(t, f.activations.Append(ctx, &activation.Activation{ClientID: "dev", Key: "cccc-cccc-cccc-cccc", ActivatedAt: f.clock.Now()}))
	keys = []string{"cccc-cccc-cccc-cccc", "dddd-dddd-dddd-dddd"}
	third := f.create(t, 30)
	assert.Equal(t, "dddd-dddd-dddd-dddd", third.Key)
}

func TestCreateLicense_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newMemFixture(t, WithKeyGenerator(func() (string, error) { return "same-same-same-same", nil }))

	f.create(t, 30)
	_, err := f.service.CreateLicense(context.Background(), &dto.CreateLicenseRequest{})
	assert.ErrorIs(t, err, ierr.ErrConflict)
}

func TestCreateLicense_KeysAreUnique(t *testing.T) {
	f := newMemFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		lic := f.create(t, 30)
		require.False(t, seen[lic.Key])
		seen[lic.Key] = true
	}
}

func TestActivate_FreshLicenseThenSameDevice(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	lic := f.create(t, 30)

	outcome, err := f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeActivated, outcome)
	assert.True(t, outcome.Valid())

	act, err := f.activations.FindByKey(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, "device-A", act.ClientID)
	assert.Equal(t, f.clock.Now(), act.ActivatedAt)

	outcome, err = f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeAlreadyBoundHere, outcome)
	assert.True(t, outcome.Valid())

	outcome, err = f.service.Activate(ctx, lic.Key, "device-B")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeAlreadyBoundElsewhere, outcome)
	assert.False(t, outcome.Valid())

	act, err = f.activations.FindByKey(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, "device-A", act.ClientID)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("activate", "activated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("activate", "already_bound_elsewhere")))
}

func TestActivate_UnknownKey(t *testing.T) {
	f := newMemFixture(t)

	outcome, err := f.service.Activate(context.Background(), "BAD-KEY", "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeNotFound, outcome)
	assert.Equal(t, "License not found", outcome.Message())

	_, err = f.activations.FindByKey(context.Background(), "BAD-KEY")
	assert.ErrorIs(t, err, activation.ErrNotFound)
}

func TestActivate_RequiresKeyAndClient(t *testing.T) {
	f := newMemFixture(t)

	_, err := f.service.Activate(context.Background(), "  ", "device-A")
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = f.service.Activate(context.Background(), "k", "")
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = f.service.Activate(context.Background(), "k", "dev;ice")
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestActivate_ExpiredAndDeactivated(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	expiring := f.create(t, 1)
	f.clock.Set(expiring.ExpiresAt.Add(time.Second))

	outcome, err := f.service.Activate(ctx, expiring.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeExpired, outcome)

	_, err = f.activations.FindByKey(ctx, expiring.Key)
	assert.ErrorIs(t, err, activation.ErrNotFound)

	f.clock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	deactivated := f.create(t, 30)
	require.NoError(t, f.service.DeactivateLicense(ctx, deactivated.Key))

	outcome, err = f.service.Activate(ctx, deactivated.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeDeactivated, outcome)
}

func TestActivate_DeactivatedWinsOverExpired(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	lic := f.create(t, 1)
	require.NoError(t, f.service.DeactivateLicense(ctx, lic.Key))
	f.clock.Set(lic.ExpiresAt.Add(time.Hour))

	outcome, err := f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeDeactivated, outcome)

	outcome, err = f.service.Validate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeDeactivated, outcome)
}

func TestActivate_ExpiryIsStrict(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	lic := f.create(t, 1)

	f.clock.Set(lic.ExpiresAt)
	outcome, err := f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeActivated, outcome)

	f.clock.Set(lic.ExpiresAt.Add(time.Nanosecond))
	outcome, err = f.service.Validate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeExpired, outcome)
}

func TestActivate_ConcurrentSingleWinner(t *testing.T) {
	for name, newF := range map[string]func(t *testing.T) *fixture{
		"memory": func(t *testing.T) *fixture { return newMemFixture(t) },
		"file":   func(t *testing.T) *fixture { return newFileFixture(t, t.TempDir()) },
	} {
		t.Run(name, func(t *testing.T) {
			f := newF(t)
			lic := f.create(t, 30)

			const devices = 12
			outcomes := make([]license.Outcome, devices)
			var wg sync.WaitGroup
			for i := 0; i < devices; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					outcome, err := f.service.Activate(context.Background(), lic.Key, fmt.Sprintf("device-%d", i))
					assert.NoError(t, err)
					outcomes[i] = outcome
				}(i)
			}
			wg.Wait()

			winners := 0
			winner := -1
			for i, outcome := range outcomes {
				switch outcome {
				case license.OutcomeActivated:
					winners++
					winner = i
				case license.OutcomeAlreadyBoundElsewhere:
				default:
					t.Errorf("unexpected outcome %q", outcome)
				}
			}
			require.Equal(t, 1, winners)

			act, err := f.activations.FindByKey(context.Background(), lic.Key)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("device-%d", winner), act.ClientID)
		})
	}
}

// racingActivations reports the key as unbound once, the way a second replica
// sees the store just before another replica appends.
type racingActivations struct {
	activation.Repository
	mu      sync.Mutex
	stale   bool
	winner  string
	touched bool
}

func (r *racingActivations) FindByKey(ctx context.Context, key string) (*activation.Activation, error) {
	r.mu.Lock()
	if r.stale && !r.touched {
		r.touched = true
		r.mu.Unlock()
		_ = r.Repository.Append(ctx, &activation.Activation{ClientID: r.winner, Key: key, ActivatedAt: time.Now()})
		return nil, activation.ErrNotFound
	}
	r.mu.Unlock()
	return r.Repository.FindByKey(ctx, key)
}

func TestActivate_LostRaceAtStorageLayer(t *testing.T) {
	licenses := memstorage.NewLicenseRepository()
	activations := &racingActivations{Repository: memstorage.NewActivationRepository(), winner: "device-B"}
	f := newFixture(t, licenses, activations)
	lic := f.create(t, 30)

	activations.stale = true
	outcome, err := f.service.Activate(context.Background(), lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeAlreadyBoundElsewhere, outcome)
}

func TestValidate_Outcomes(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	lic := f.create(t, 30)

	outcome, err := f.service.Validate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeNotActivated, outcome)
	assert.False(t, outcome.Valid())

	_, err = f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)

	outcome, err = f.service.Validate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeValid, outcome)
	assert.True(t, outcome.Valid())

	outcome, err = f.service.Validate(ctx, lic.Key, "device-B")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeBoundElsewhere, outcome)

	outcome, err = f.service.Validate(ctx, "BAD-KEY", "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeNotFound, outcome)
}

func TestValidate_DoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	f := newFileFixture(t, dir)
	ctx := context.Background()

	bound := f.create(t, 30)
	unbound := f.create(t, 30)
	_, err := f.service.Activate(ctx, bound.Key, "device-A")
	require.NoError(t, err)

	snapshot := func() map[string][]byte {
		files := map[string][]byte{}
		for _, name := range []string{filestore.LicenseFileName, filestore.ActivationFileName} {
			raw, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			files[name] = raw
		}
		return files
	}
	before := snapshot()

	for _, call := range [][2]string{
		{bound.Key, "device-A"},
		{bound.Key, "device-B"},
		{unbound.Key, "device-A"},
		{"BAD-KEY", "device-A"},
	} {
		_, err := f.service.Validate(ctx, call[0], call[1])
		require.NoError(t, err)
	}

	assert.Equal(t, before, snapshot())
}

func TestDeactivate_IsPermanentAndIdempotent(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	lic := f.create(t, 30)

	_, err := f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)

	require.NoError(t, f.service.DeactivateLicense(ctx, lic.Key))
	require.NoError(t, f.service.DeactivateLicense(ctx, lic.Key))

	outcome, err := f.service.Validate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeDeactivated, outcome)

	outcome, err = f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeDeactivated, outcome)

	err = f.service.DeactivateLicense(ctx, "BAD-KEY")
	assert.ErrorIs(t, err, ierr.ErrNotFound)
}

func TestDelete_LeavesActivationAndBlocksReuse(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	lic := f.create(t, 30)

	_, err := f.service.Activate(ctx, lic.Key, "device-A")
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteLicense(ctx, lic.Key))

	err = f.service.DeleteLicense(ctx, lic.Key)
	assert.ErrorIs(t, err, ierr.ErrNotFound)

	outcome, err := f.service.Validate(ctx, lic.Key, "device-A")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeNotFound, outcome)

	_, err = f.activations.FindByKey(ctx, lic.Key)
	require.NoError(t, err)
}

func TestListLicenses_InsertionOrder(t *testing.T) {
	f := newFileFixture(t, t.TempDir())

	created := []*license.License{f.create(t, 1), f.create(t, 2), f.create(t, 3)}

	licenses, err := f.service.ListLicenses(context.Background())
	require.NoError(t, err)
	require.Len(t, licenses, 3)
	for i := range created {
		assert.Equal(t, created[i].Key, licenses[i].Key)
	}
}

type failingLicenses struct {
	license.Repository
}

func (failingLicenses) FindByKey(context.Context, string) (*license.License, error) {
	return nil, fmt.Errorf("%w: disk on fire", ierr.ErrStorage)
}

func TestActivate_StorageFailureIsError(t *testing.T) {
	f := newFixture(t, failingLicenses{Repository: memstorage.NewLicenseRepository()}, memstorage.NewActivationRepository())

	_, err := f.service.Activate(context.Background(), "k", "device-A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ierr.ErrStorage))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("activate", "error")))
}
