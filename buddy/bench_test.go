// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buddy

import "testing"

func benchmarkRentReturn(b *testing.B, rentLen int64) {
	a, err := New[struct{}](Config{Length: 1 << 20, MinBlockLength: 16})
	if err != nil {
		b.Fatal(err)
	}
	defer a.Dispose()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seg, err := a.Rent(rentLen, struct{}{})
		if err != nil {
			b.Fatal(err)
		}
		if err = a.Return(seg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRentReturn1e1(b *testing.B) { benchmarkRentReturn(b, 1e1) }
func BenchmarkRentReturn1e2(b *testing.B) { benchmarkRentReturn(b, 1e2) }
func BenchmarkRentReturn1e3(b *testing.B) { benchmarkRentReturn(b, 1e3) }
