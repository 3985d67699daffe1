package gttutils_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gart/gttutils"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, gttutils.CheckPow2(uint(1), "one"))
	require.NoError(t, gttutils.CheckPow2(uint(4096), "page"))
	require.NoError(t, gttutils.CheckPow2(uint(1<<20), "megabyte"))

	err := gttutils.CheckPow2(uint(4097), "notpow2")
	require.Error(t, err)
	require.ErrorIs(t, err, gttutils.PowerOfTwoError)
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, gttutils.AlignUp(0, 4096))
	require.Equal(t, 4096, gttutils.AlignUp(1, 4096))
	require.Equal(t, 4096, gttutils.AlignUp(4096, 4096))
	require.Equal(t, 8192, gttutils.AlignUp(4097, 4096))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, gttutils.AlignDown(4095, 4096))
	require.Equal(t, 4096, gttutils.AlignDown(4096, 4096))
	require.Equal(t, 4096, gttutils.AlignDown(8191, 4096))
}

func TestDivideRoundUp(t *testing.T) {
	require.Equal(t, 0, gttutils.DivideRoundUp(0, 4096))
	require.Equal(t, 1, gttutils.DivideRoundUp(1, 4096))
	require.Equal(t, 1, gttutils.DivideRoundUp(4096, 4096))
	require.Equal(t, 2, gttutils.DivideRoundUp(4097, 4096))
}
