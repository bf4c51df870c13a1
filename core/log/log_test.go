// log_test.go - Logging backend tests.
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

package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	lvl, err := ParseLevel("notice")
	require.NoError(err)
	require.Equal(logging.NOTICE, lvl)

	_, err = ParseLevel("LOUD")
	require.Error(err)
}

func TestBackendLevels(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	b, err := NewWithWriter(&buf, "NOTICE")
	require.NoError(err)

	l := b.GetLogger("test_levels")
	l.Debug("invisible")
	l.Notice("visible")
	require.NotContains(buf.String(), "invisible")
	require.Contains(buf.String(), "test_levels: visible")

	gl := b.GetGoLogger("test_go", "WARNING")
	gl.Printf("from the runtime logger")
	require.Contains(buf.String(), "WARN test_go: from the runtime logger")
}

func TestBackendFileRotate(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "test.log")
	b, err := New(f, "DEBUG", false)
	require.NoError(err)

	b.GetLogger("rotate").Info("before")
	require.NoError(os.Rename(f, f+".1"))
	require.NoError(b.Rotate())
	b.GetLogger("rotate").Info("after")

	old, err := os.ReadFile(f + ".1")
	require.NoError(err)
	require.Contains(string(old), "before")
	cur, err := os.ReadFile(f)
	require.NoError(err)
	require.Contains(string(cur), "after")
	require.NotContains(string(cur), "before")
}
