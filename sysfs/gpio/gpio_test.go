package gpio

import (
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

func setup(t *testing.T, inputOnly ...int) (*sysfstest.Kernel, *sysfs.Host) {
	t.Helper()

	k := sysfstest.NewKernel()
	k.AddGPIO(DefaultRoot, inputOnly...)

	h, err := sysfs.NewHost(&sysfs.HostOptions{
		Fs:     k,
		Waiter: k,
		Logger: logrusconfig.Discard(),
	})
	require.NoError(t, err)
	return k, h
}

func TestOutputLifecycle(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 60, nil)
	require.NoError(t, err)
	assert.Equal(t, In, p.Direction())

	require.NoError(t, p.SetDirection(Out))
	require.NoError(t, p.Write(true))

	assert.Equal(t, "out", k.Value("/sys/class/gpio/gpio60/direction"))
	assert.Equal(t, "1", k.Value("/sys/class/gpio/gpio60/value"))

	require.NoError(t, p.Close())
	assert.Equal(t, []string{"60"}, k.Writes("/sys/class/gpio/unexport"))
	assert.False(t, k.Exists("/sys/class/gpio/gpio60"))
}

func TestReadReflectsLastWrite(t *testing.T) {
	_, h := setup(t)

	p, err := Open(h, 7, &Options{Direction: Out})
	require.NoError(t, err)
	defer p.Close()

	for _, v := range []bool{true, false, true} {
		require.NoError(t, p.Write(v))
		got, err := p.Read()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestActiveLow(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 8, &Options{Direction: Out, ActiveLow: true})
	require.NoError(t, err)
	defer p.Close()

	/* Logical low at start is electrical high */
	assert.Equal(t, "1", k.Value("/sys/class/gpio/gpio8/value"))

	require.NoError(t, p.Write(true))
	assert.Equal(t, "0", k.Value("/sys/class/gpio/gpio8/value"))

	got, err := p.Read()
	require.NoError(t, err)
	assert.True(t, got)

	p.SetActiveLow(false)
	got, err = p.Read()
	require.NoError(t, err)
	assert.False(t, got)
	assert.False(t, p.ActiveLow())
}

func TestInitialOutputLevel(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 9, &Options{Direction: Out, Initial: true})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, Out, p.Direction())
	assert.Equal(t, "out", k.Value("/sys/class/gpio/gpio9/direction"))
	assert.Equal(t, "1", k.Value("/sys/class/gpio/gpio9/value"))
	assert.Equal(t, []string{"high"}, k.Writes("/sys/class/gpio/gpio9/direction"))
}

func TestWriteInputIsInvalidState(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 66, &Options{Direction: In})
	require.NoError(t, err)
	defer p.Close()

	err = p.Write(true)
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidState))
	assert.Empty(t, k.Writes("/sys/class/gpio/gpio66/value"))

	/* Reading an input is always fine */
	k.Drive("/sys/class/gpio/gpio66", true)
	got, err := p.Read()
	require.NoError(t, err)
	assert.True(t, got)
}

func TestInputOnlyPin(t *testing.T) {
	k, h := setup(t, 20)

	p, err := Open(h, 20, nil)
	require.NoError(t, err)
	defer p.Close()

	err = p.SetDirection(Out)
	assert.True(t, errors.Is(err, hwerr.ErrorUnsupported))
	assert.Equal(t, In, p.Direction())
	assert.Equal(t, "in", k.Value("/sys/class/gpio/gpio20/direction"))
}

func TestOpenFailureReleases(t *testing.T) {
	k, h := setup(t, 21)

	_, err := Open(h, 21, &Options{Direction: Out})
	assert.True(t, errors.Is(err, hwerr.ErrorUnsupported))
	assert.False(t, k.Exists("/sys/class/gpio/gpio21"))
	assert.False(t, h.Claimed("/sys/class/gpio/gpio21"))

	_, err = Open(h, 22, &Options{Direction: "sideways"})
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidConfiguration))
	assert.False(t, k.Exists("/sys/class/gpio/gpio22"))
}

func TestParseErrorOnForeignText(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 30, nil)
	require.NoError(t, err)
	defer p.Close()

	k.Set("/sys/class/gpio/gpio30/value", "high")
	_, err = p.Read()
	assert.True(t, errors.Is(err, hwerr.ErrorParse))

	k.Set("/sys/class/gpio/gpio30/edge", "up")
	_, err = p.Edge()
	assert.True(t, errors.Is(err, hwerr.ErrorParse))
}

func TestUseAfterClose(t *testing.T) {
	_, h := setup(t)

	p, err := Open(h, 31, &Options{Direction: Out})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, errors.Is(p.Write(true), hwerr.ErrorInvalidState))
	_, err = p.Read()
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidState))
}

func TestWithReleasesOnError(t *testing.T) {
	k, h := setup(t)
	failure := errors.New("caller failed")

	err := With(h, 44, &Options{Direction: Out}, func(p *Pin) error {
		if err := p.Write(true); err != nil {
			return err
		}
		return failure
	})
	assert.Equal(t, failure, err)
	assert.False(t, k.Exists("/sys/class/gpio/gpio44"))
	assert.Equal(t, []string{"44"}, k.Writes("/sys/class/gpio/unexport"))

	err = With(h, 44, nil, func(p *Pin) error { return nil })
	assert.NoError(t, err)
}

func TestWaitForEdgeTimeout(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 60, &Options{Direction: In})
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	err = p.WaitForEdge(EdgeRising, 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, hwerr.ErrorTimeout))
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, "rising", k.Value("/sys/class/gpio/gpio60/edge"))
}

func TestWaitForEdgeDetected(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 61, &Options{Direction: In})
	require.NoError(t, err)
	defer p.Close()

	go func() {
		<-k.Armed()
		/* A falling edge does not match */
		k.Drive("/sys/class/gpio/gpio61", false)
		k.Drive("/sys/class/gpio/gpio61", true)
	}()

	require.NoError(t, p.WaitForEdge(EdgeRising, 5*time.Second))
	got, err := p.Read()
	require.NoError(t, err)
	assert.True(t, got)
}

func TestWaitForEdgeNone(t *testing.T) {
	_, h := setup(t)

	p, err := Open(h, 62, nil)
	require.NoError(t, err)
	defer p.Close()

	err = p.WaitForEdge(EdgeNone, time.Millisecond)
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidConfiguration))
}
