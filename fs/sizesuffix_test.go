package fs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeSuffixSet(t *testing.T) {
	for _, test := range []struct {
		in   string
		want int64
		err  bool
	}{
		{"0", 0, false},
		{"1024", 1024, false},
		{"327680", 327680, false},
		{"1k", 1024, false},
		{"320k", 320 * 1024, false},
		{"10M", 10 * 1024 * 1024, false},
		{"1G", 1024 * 1024 * 1024, false},
		{"5MiB", 5 * 1024 * 1024, false},
		{"1.5M", 1572864, false},
		{"potato", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	} {
		var ss SizeSuffix
		err := ss.Set(test.in)
		if test.err {
			require.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		assert.Equal(t, test.want, int64(ss), test.in)
	}
}

func TestSizeSuffixScan(t *testing.T) {
	var v SizeSuffix
	n, err := fmt.Sscan(" 17M ", &v)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, SizeSuffix(17<<20), v)
}

func TestSizeSuffixString(t *testing.T) {
	for _, test := range []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{102, "102"},
		{1024, "1Ki"},
		{10 * 1024 * 1024, "10Mi"},
	} {
		assert.Equal(t, test.want, SizeSuffix(test.in).String())
	}
}

func TestDurationSet(t *testing.T) {
	var d Duration
	require.NoError(t, d.Set("1000"))
	assert.Equal(t, "1s", d.String())
	require.NoError(t, d.Set("1m30s"))
	assert.Equal(t, "1m30s", d.String())
	require.Error(t, d.Set("potato"))
}
