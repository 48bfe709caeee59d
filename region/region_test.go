// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestNewOwnsAndReleasesBuffer(t *testing.T) {
	r := New(256)
	require.Equal(t, 256, r.Len())
	require.True(t, r.Owned())
	require.NotZero(t, r.Base())
	require.NoError(t, r.Release())
	// Idempotent.
	require.NoError(t, r.Release())
}

func TestOverBorrowsCallerBuffer(t *testing.T) {
	buf := make([]byte, 64)
	r := Over(unsafe.Pointer(&buf[0]), len(buf))
	require.Equal(t, 64, r.Len())
	require.False(t, r.Owned())
	require.Equal(t, uintptr(unsafe.Pointer(&buf[0])), r.Base())

	// Release on a borrowed region is a no-op; the caller still owns buf.
	require.NoError(t, r.Release())
	buf[0] = 7
	require.Equal(t, byte(7), r.Bytes()[0])
}

func TestOverZeroLength(t *testing.T) {
	r := Over(nil, 0)
	require.Equal(t, 0, r.Len())
	require.Equal(t, uintptr(0), r.Base())
}

func TestFromOwnedBytesReleaseIsNoop(t *testing.T) {
	b := make([]byte, 32)
	r := FromOwnedBytes(b)
	require.True(t, r.Owned())
	require.Equal(t, 32, r.Len())
	require.NoError(t, r.Release())
}

func TestFromMmapRoundTrips(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "region-mmap-*")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(4096))

	r, err := FromMmap(f)
	require.NoError(t, err)
	require.True(t, r.Owned())
	require.Equal(t, 4096, r.Len())

	r.Bytes()[0] = 0x42
	require.NoError(t, r.Release())
	// A second release is a no-op, not a double-unmap panic.
	require.NoError(t, r.Release())
}

func TestBaseOfEmptyRegionIsZero(t *testing.T) {
	var r Region
	require.Equal(t, uintptr(0), r.Base())
}
