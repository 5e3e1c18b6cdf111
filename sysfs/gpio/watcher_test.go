package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 70, &Options{Direction: In})
	require.NoError(t, err)
	defer p.Close()

	w, err := Watch(p, EdgeBoth, 20*time.Millisecond)
	require.NoError(t, err)

	go func() {
		<-k.Armed()
		k.Drive("/sys/class/gpio/gpio70", true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, ev, err := w.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	assert.True(t, ev.Level)

	/* Nothing else happens, the context ends the wait */
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, _, err = w.Next(short, count)
	cancelShort()
	assert.Equal(t, context.DeadlineExceeded, err)

	last, lastEvent := w.Last()
	assert.Equal(t, count, last)
	assert.Equal(t, ev, lastEvent)

	/* Several intervals passed, the edge was written once */
	assert.Equal(t, []string{"both"}, k.Writes("/sys/class/gpio/gpio70/edge"))

	w.Stop()
	assert.NoError(t, w.Err())
	_, _, err = w.Next(ctx, count)
	assert.Error(t, err)
}

func TestWatcherEndsOnFailure(t *testing.T) {
	k, h := setup(t)

	p, err := Open(h, 72, &Options{Direction: In})
	require.NoError(t, err)
	defer p.Close()

	w, err := Watch(p, EdgeFalling, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	count, _ := w.Last()
	assert.Equal(t, uint64(0), count)
	assert.NoError(t, w.Err())

	<-k.Armed()
	require.NoError(t, k.Remove("/sys/class/gpio/gpio72/value"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err = w.Next(ctx, 0)
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
	assert.True(t, errors.Is(w.Err(), hwerr.ErrorIO))
}

func TestWatchRequiresInput(t *testing.T) {
	_, h := setup(t)

	p, err := Open(h, 71, &Options{Direction: Out})
	require.NoError(t, err)
	defer p.Close()

	_, err = Watch(p, EdgeRising, 0)
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidState))

	require.NoError(t, p.SetDirection(In))
	_, err = Watch(p, EdgeNone, 0)
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidConfiguration))
}
