package sysfs_test

import (
	"math"
	"syscall"
	"testing"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/sysfs"
	"github.com/BertoldVdb/go-sysfs/sysfs/sysfstest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type word string

func roundTrip[T comparable](t *testing.T, codec sysfs.Codec[T], values ...T) {
	t.Helper()
	for _, v := range values {
		text, err := codec.Encode(v)
		require.NoError(t, err)
		back, err := codec.Decode(text)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	roundTrip(t, sysfs.BoolCodec, false, true)
	roundTrip(t, sysfs.UintCodec, 0, 1, 20000000, math.MaxUint64)
	roundTrip(t, sysfs.IntCodec, math.MinInt64, -1, 0, 60, math.MaxInt64)
	roundTrip(t, sysfs.EnumCodec[word]("in", "out"), "in", "out")
}

func TestCodecRejectsForeignText(t *testing.T) {
	for _, text := range []string{"", "2", "true", " 1", "01"} {
		_, err := sysfs.BoolCodec.Decode(text)
		assert.Error(t, err, text)
	}
	for _, text := range []string{"", "-1", "1.5", "0x10"} {
		_, err := sysfs.UintCodec.Decode(text)
		assert.Error(t, err, text)
	}
	_, err := sysfs.IntCodec.Decode("ten")
	assert.Error(t, err)

	enum := sysfs.EnumCodec[word]("rising", "falling")
	_, err = enum.Decode("Rising")
	assert.Error(t, err)
	_, err = enum.Encode("both")
	assert.Error(t, err)
}

func TestAttributeReadWrite(t *testing.T) {
	k := sysfstest.NewKernel()
	k.Set("/sys/devices/x/count", "7")

	attr := sysfs.NewAttribute(k, "/sys/devices/x/count", sysfs.UintCodec)
	v, err := attr.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	require.NoError(t, attr.Write(12))
	v, err = attr.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)
	assert.Equal(t, "/sys/devices/x/count", attr.Path())
}

func TestAttributeTrimsTrailingWhitespace(t *testing.T) {
	k := sysfstest.NewKernel()
	k.Set("/sys/devices/x/mode", "out \t\n")

	v, err := sysfs.NewAttribute(k, "/sys/devices/x/mode", sysfs.EnumCodec[word]("in", "out")).Read()
	require.NoError(t, err)
	assert.Equal(t, word("out"), v)
}

func TestAttributeMissingPath(t *testing.T) {
	k := sysfstest.NewKernel()
	attr := sysfs.NewAttribute(k, "/sys/class/gpio/gpio3/value", sysfs.BoolCodec)

	_, err := attr.Read()
	assert.True(t, errors.Is(err, hwerr.ErrorIO))

	err = attr.Write(true)
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
	assert.False(t, k.Exists("/sys/class/gpio/gpio3/value"), "write must not create the attribute")
}

func TestAttributeParseError(t *testing.T) {
	k := sysfstest.NewKernel()
	k.Set("/sys/devices/x/flag", "yes")

	_, err := sysfs.NewAttribute(k, "/sys/devices/x/flag", sysfs.BoolCodec).Read()
	assert.True(t, errors.Is(err, hwerr.ErrorParse))
}

func TestAttributeDriverRejection(t *testing.T) {
	k := sysfstest.NewKernel()
	k.AddGPIO("/sys/class/gpio")
	require.NoError(t, sysfs.NewAttribute(k, "/sys/class/gpio/export", sysfs.IntCodec).Write(5))

	err := sysfs.NewAttribute(k, "/sys/class/gpio/gpio5/edge", sysfs.EnumCodec[word]("none", "sideways")).Write("sideways")
	assert.True(t, errors.Is(err, hwerr.ErrorIO))
	assert.True(t, errors.Is(err, syscall.EINVAL))
	assert.Equal(t, "none", k.Value("/sys/class/gpio/gpio5/edge"))
}

func TestAttributeInvalidEnumNeverReachesKernel(t *testing.T) {
	k := sysfstest.NewKernel()
	k.Set("/sys/devices/x/mode", "in")

	err := sysfs.NewAttribute(k, "/sys/devices/x/mode", sysfs.EnumCodec[word]("in", "out")).Write("sideways")
	assert.True(t, errors.Is(err, hwerr.ErrorInvalidConfiguration))
	assert.Empty(t, k.Writes("/sys/devices/x/mode"))
}
