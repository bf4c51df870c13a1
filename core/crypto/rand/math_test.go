// math_test.go - Cryptographically seeded math/rand tests.
// Copyright (C) 2026  The onionmix Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMath(t *testing.T) {
	require := require.New(t)

	a, b := NewMath(), NewMath()
	require.NotEqual(a.Uint64(), b.Uint64(), "independent instances share a seed")

	// Draw past a keystream block to exercise the feed forward rekey.
	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		v := a.Int63()
		require.GreaterOrEqual(v, int64(0))
		require.False(seen[v], "repeated output")
		seen[v] = true
	}

	p := a.Perm(10)
	require.ElementsMatch([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, p)
}
