// daemon.go - Daemon process helpers.
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

package common

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// Daemon is a long running server instance.
type Daemon interface {
	// Shutdown cleanly shuts down the daemon.
	Shutdown()

	// Wait waits till the daemon is terminated for any reason.
	Wait()

	// RotateLog reopens the log file.
	RotateLog()
}

// PrepareProcess sets a paranoid umask and makes sure a sane number of OS
// threads is allowed.  It must be called before any daemon state is
// created.
func PrepareProcess() {
	umask(0077)

	// Only if the user isn't trying to override it.
	if os.Getenv("GOMAXPROCS") == "" {
		if nProcs, nCPU := runtime.GOMAXPROCS(0), runtime.NumCPU(); nProcs < nCPU {
			runtime.GOMAXPROCS(nCPU)
		}
	}
}

// RunDaemons blocks until every daemon has halted.  SIGINT and SIGTERM
// shut all of them down, SIGHUP rotates their logs.
func RunDaemons(daemons ...Daemon) {
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)
	defer signal.Stop(haltCh)
	defer signal.Stop(rotateCh)

	doneCh := make(chan struct{})
	defer close(doneCh)

	go func() {
		select {
		case <-haltCh:
		case <-doneCh:
			return
		}
		for _, d := range daemons {
			d.Shutdown()
		}
	}()
	go func() {
		for {
			select {
			case <-rotateCh:
				for _, d := range daemons {
					d.RotateLog()
				}
			case <-doneCh:
				return
			}
		}
	}()

	// A daemon halting on its own takes the rest down with it.
	anyHaltedCh := make(chan struct{}, len(daemons))
	for _, d := range daemons {
		go func(d Daemon) {
			d.Wait()
			anyHaltedCh <- struct{}{}
		}(d)
	}
	<-anyHaltedCh
	for _, d := range daemons {
		d.Shutdown()
	}
	for _, d := range daemons {
		d.Wait()
	}
}
