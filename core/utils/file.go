// file.go - File and directory helpers.
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

// Package utils provides file and address helpers shared by the daemons.
package utils

import (
	"errors"
	"fmt"
	"os"
)

// DirMode is the mode every daemon DataDir must have.
const DirMode = os.ModeDir | 0700

// Exists returns true iff the path f exists.
func Exists(f string) bool {
	_, err := os.Stat(f)
	return err == nil
}

// BothExists returns true iff both paths exist.
func BothExists(a, b string) bool {
	return Exists(a) && Exists(b)
}

// BothNotExists returns true iff neither path exists.
func BothNotExists(a, b string) bool {
	return !Exists(a) && !Exists(b)
}

// EnsureDataDir makes sure d exists, is a directory and has DirMode
// permissions, creating it if needed.
func EnsureDataDir(d string) error {
	fi, err := os.Lstat(d)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat() DataDir: %w", err)
		}
		if err = os.Mkdir(d, DirMode); err != nil {
			return fmt.Errorf("failed to create DataDir: %w", err)
		}
		return nil
	}
	if !fi.IsDir() {
		return fmt.Errorf("DataDir '%v' is not a directory", d)
	}
	if fi.Mode() != DirMode {
		return fmt.Errorf("DataDir '%v' has invalid permissions '%v', should be '%v'", d, fi.Mode(), DirMode)
	}
	return nil
}
