package sysfs_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/logrusconfig"
	"github.com/BertoldVdb/go-sysfs/sysfs"
	"github.com/BertoldVdb/go-sysfs/sysfs/sysfstest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gpioSub = sysfs.Subsystem{
	Name:   "gpio",
	Root:   "/sys/class/gpio",
	Prefix: "gpio",
	Probe:  "direction",
}

func newHost(t *testing.T, k *sysfstest.Kernel, ledger string) *sysfs.Host {
	t.Helper()
	h, err := sysfs.NewHost(&sysfs.HostOptions{
		Fs:            k,
		Waiter:        k,
		Logger:        logrusconfig.Discard(),
		ExportTimeout: 30 * time.Millisecond,
		LedgerFile:    ledger,
	})
	require.NoError(t, err)
	return h
}

func TestClaimRelease(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	h := newHost(t, k, "")

	for _, id := range []int{0, 7, 60, 117} {
		r, err := sysfs.Claim(h, gpioSub, id)
		require.NoError(t, err)
		assert.Equal(t, sysfs.Exported, r.State())
		assert.False(t, r.Adopted())
		assert.True(t, k.Exists(r.Dir()))

		require.NoError(t, r.Release())
		assert.Equal(t, sysfs.Released, r.State())
		assert.False(t, k.Exists(r.Dir()), "directory must disappear after release")
		assert.False(t, h.Claimed(r.Dir()))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	h := newHost(t, k, "")

	r, err := sysfs.Claim(h, gpioSub, 60)
	require.NoError(t, err)

	require.NoError(t, r.Release())
	require.NoError(t, r.Release())
	require.NoError(t, r.Close())

	assert.Equal(t, []string{"60"}, k.Writes("/sys/class/gpio/unexport"))
	assert.True(t, errors.Is(r.CheckExported("write"), hwerr.ErrorInvalidState))
}

func TestClaimAdoptsExistingExport(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	h := newHost(t, k, "")

	/* Left behind by a crashed process */
	require.NoError(t, sysfs.NewAttribute(k, "/sys/class/gpio/export", sysfs.IntCodec).Write(45))

	r, err := sysfs.Claim(h, gpioSub, 45)
	require.NoError(t, err)
	assert.True(t, r.Adopted())
	require.NoError(t, r.Release())
	assert.False(t, k.Exists("/sys/class/gpio/gpio45"))
}

func TestClaimBusyWithoutDirectory(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	h := newHost(t, k, "")

	/* Busy, but the attributes are not usable */
	k.Fs.MkdirAll("/sys/class/gpio/gpio9", 0755)

	_, err := sysfs.Claim(h, gpioSub, 9)
	assert.True(t, errors.Is(err, hwerr.ErrorAlreadyInUse))
	assert.False(t, h.Claimed("/sys/class/gpio/gpio9"))
}

func TestClaimRejectsSecondHandle(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	h := newHost(t, k, "")

	r, err := sysfs.Claim(h, gpioSub, 60)
	require.NoError(t, err)

	_, err = sysfs.Claim(h, gpioSub, 60)
	assert.True(t, errors.Is(err, hwerr.ErrorAlreadyInUse))
	assert.Len(t, k.Writes("/sys/class/gpio/export"), 1)

	require.NoError(t, r.Release())

	r, err = sysfs.Claim(h, gpioSub, 60)
	require.NoError(t, err)
	require.NoError(t, r.Release())
}

func TestClaimRejectsHandleOfOtherHost(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	first := newHost(t, k, "")
	second := newHost(t, k, "")

	r, err := sysfs.Claim(first, gpioSub, 14)
	require.NoError(t, err)
	assert.True(t, second.Claimed(r.Dir()))

	_, err = sysfs.Claim(second, gpioSub, 14)
	assert.True(t, errors.Is(err, hwerr.ErrorAlreadyInUse))
	assert.Len(t, k.Writes("/sys/class/gpio/export"), 1)

	/* A separate tree has its own ids */
	other := sysfstest.NewKernel()
	other.AddGPIO("/sys/class/gpio")
	elsewhere, err := sysfs.Claim(newHost(t, other, ""), gpioSub, 14)
	require.NoError(t, err)
	require.NoError(t, elsewhere.Release())

	require.NoError(t, r.Release())
	assert.False(t, second.Claimed(r.Dir()))

	r, err = sysfs.Claim(second, gpioSub, 14)
	require.NoError(t, err)
	assert.False(t, r.Adopted())
	require.NoError(t, r.Release())
}

func TestClaimFailures(t *testing.T) {
	k := sysfstest.NewKernel()
	h := newHost(t, k, "")

	/* No subsystem at all */
	_, err := sysfs.Claim(h, gpioSub, 3)
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
	assert.False(t, h.Claimed("/sys/class/gpio/gpio3"))

	_, err = sysfs.Claim(h, gpioSub, -1)
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidConfiguration))

	pwmSub := sysfs.Subsystem{Name: "pwm", Root: "/sys/class/pwm/pwmchip0", Prefix: "pwm", Probe: "period"}
	k.AddPWMChip(pwmSub.Root, 2)
	_, err = sysfs.Claim(h, pwmSub, 2)
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
}

func TestClaimRollsBackWhenExportNeverAppears(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	k.HideExports = true
	h := newHost(t, k, "")

	_, err := sysfs.Claim(h, gpioSub, 12)
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
	assert.Equal(t, []string{"12"}, k.Writes("/sys/class/gpio/unexport"))
	assert.False(t, h.Claimed("/sys/class/gpio/gpio12"))
}

func TestLedgerReleasesStaleExports(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")

	crashed := newHost(t, k, "/var/lib/sysfs/ledger")
	leaked, err := sysfs.Claim(crashed, gpioSub, 20)
	require.NoError(t, err)
	released, err := sysfs.Claim(crashed, gpioSub, 21)
	require.NoError(t, err)
	require.NoError(t, released.Release())

	assert.Len(t, crashed.Ledger(), 1)

	/* A new process starts and finds gpio20 still exported */
	h := newHost(t, k, "/var/lib/sysfs/ledger")
	entries := h.Ledger()
	require.Len(t, entries, 1)
	assert.Equal(t, 20, entries[0].ID)

	n, err := h.ReleaseStale()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, k.Exists("/sys/class/gpio/gpio20"))
	assert.Empty(t, h.Ledger())

	n, err = h.ReleaseStale()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	runtime.KeepAlive(leaked)
}

func TestLedgerKeepsOwnSession(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	h := newHost(t, k, "/ledger")

	r, err := sysfs.Claim(h, gpioSub, 5)
	require.NoError(t, err)

	n, err := h.ReleaseStale()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, k.Exists(r.Dir()))
	require.NoError(t, r.Release())
}

func TestLedgerCorrupt(t *testing.T) {
	k := sysfstest.NewKernel()
	k.Set("/ledger", "garbage")

	_, err := sysfs.NewHost(&sysfs.HostOptions{Fs: k, Logger: logrusconfig.Discard(), LedgerFile: "/ledger"})
	assert.True(t, errors.Is(err, hwerr.ErrorParse))
}
