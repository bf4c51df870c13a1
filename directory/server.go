// server.go - Directory server.
// Copyright (C) 2017  Yawning Angel.
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

// Package directory implements the onionmix relay directory.
//
// The directory is a single trusted registry of relay descriptors, relays
// register their public key and address on startup and senders fetch the
// full list before building each circuit.  It never sees private keys.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/utils"
	"github.com/onionmix/onionmix/directory/config"
)

const shutdownTimeout = 10 * time.Second

// Server is a directory server instance.
type Server struct {
	sync.WaitGroup

	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	state     *state
	listeners []net.Listener
	httpSrv   *http.Server

	fatalErrCh chan error
	haltCh     chan interface{}
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initLogging() error {
	p := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && s.cfg.Logging.File != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.cfg.Directory.DataDir, p)
		}
	}

	var err error
	s.logBackend, err = log.New(p, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger("directory")
	}
	return err
}

func (s *Server) fatal(err error) {
	select {
	case s.fatalErrCh <- err:
	default:
	}
}

// Addresses returns the addresses the server is listening on.
func (s *Server) Addresses() []string {
	addrs := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr().String())
	}
	return addrs
}

// RotateLog rotates the log file
// if logging to a file is enabled.
func (s *Server) RotateLog() {
	if err := s.logBackend.Rotate(); err != nil {
		s.fatal(fmt.Errorf("failed to rotate log file, shutting down server"))
		return
	}
	s.log.Notice("Log rotated.")
}

// Wait waits till the server is terminated for any reason.
func (s *Server) Wait() {
	<-s.haltedCh
}

// Shutdown cleanly shuts down a given Server instance.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) listenWorker(l net.Listener) {
	addr := l.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer func() {
		s.log.Noticef("Stopping listening on: %v", addr)
		s.Done()
	}()

	if err := s.httpSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Errorf("Critical accept failure: %v", err)
	}
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")
	close(s.haltCh)

	// Halt the listeners, and wait for the in flight requests.
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.log.Warningf("Failed to cleanly stop the HTTP server: %v", err)
			s.httpSrv.Close()
		}
		cancel()
	}
	s.WaitGroup.Wait()

	if s.state != nil {
		s.state.halt()
	}

	s.log.Notice("Shutdown complete.")
	close(s.haltedCh)
}

// New returns a new Server instance parameterized with the specific
// configuration.
func New(cfg *config.Config) (*Server, error) {
	s := new(Server)
	s.cfg = cfg
	s.fatalErrCh = make(chan error, 1)
	s.haltCh = make(chan interface{})
	s.haltedCh = make(chan interface{})

	// Do the early initialization and bring up logging.
	if err := utils.EnsureDataDir(s.cfg.Directory.DataDir); err != nil {
		return nil, err
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	s.log.Notice("onionmix provides no traffic analysis resistance.  DO NOT DEPEND ON IT FOR ANONYMITY.")
	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Unsafe Debug logging is enabled.")
	}

	// Past this point, failures need to call s.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			s.Shutdown()
		}
	}()

	// Start the fatal error watcher.
	go func() {
		select {
		case err := <-s.fatalErrCh:
			s.log.Warningf("Shutting down due to error: %v", err)
			s.Shutdown()
		case <-s.haltCh:
		}
	}()

	var err error
	if s.state, err = newState(s); err != nil {
		return nil, err
	}

	s.httpSrv = &http.Server{
		Handler:     s,
		ReadTimeout: s.cfg.Directory.ReadTimeout(),
		ErrorLog:    s.logBackend.GetGoLogger("directory/http", "WARNING"),
	}
	for _, v := range s.cfg.Directory.Addresses {
		l, err := net.Listen("tcp", v)
		if err != nil {
			s.log.Errorf("Failed to start listener '%v': %v", v, err)
			continue
		}
		s.listeners = append(s.listeners, l)
		s.Add(1)
		go s.listenWorker(l)
	}
	if len(s.listeners) == 0 {
		s.log.Errorf("Failed to start all listeners.")
		return nil, fmt.Errorf("directory: failed to start all listeners")
	}

	isOk = true
	return s, nil
}
