// server.go - Endpoint server.
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

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/circuit"
	"github.com/onionmix/onionmix/core/crypto/symmetric"
	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/transport/quic"
	"github.com/onionmix/onionmix/core/utils"
	"github.com/onionmix/onionmix/directory/client"
	"github.com/onionmix/onionmix/endpoint/config"
)

const shutdownTimeout = 10 * time.Second

// Server is an endpoint server instance.
type Server struct {
	sync.WaitGroup

	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	agent   *Agent
	address string
	quicTr  *quic.Transport

	listeners    []net.Listener
	httpSrv      *http.Server
	quicListener *quic.Listener

	fatalErrCh chan error
	haltCh     chan interface{}
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initLogging() error {
	p := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && s.cfg.Logging.File != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.cfg.Endpoint.DataDir, p)
		}
	}

	var err error
	s.logBackend, err = log.New(p, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger(fmt.Sprintf("endpoint:%d", s.cfg.Endpoint.ID))
	}
	return err
}

// Agent returns the endpoint's agent.
func (s *Server) Agent() *Agent {
	return s.agent
}

// Address returns the address messages for this endpoint are delivered to.
func (s *Server) Address() string {
	return s.address
}

// APIAddress returns the base URL of the HTTP API.
func (s *Server) APIAddress() string {
	return "http://" + s.listeners[0].Addr().String()
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

func (s *Server) fatal(err error) {
	select {
	case s.fatalErrCh <- err:
	default:
	}
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
		s.fatal(err)
	}
}

func (s *Server) initListeners() error {
	cfg := s.cfg.Endpoint

	s.httpSrv = &http.Server{
		Handler:     s,
		ReadTimeout: s.cfg.Debug.ReadTimeout(),
		ErrorLog:    s.logBackend.GetGoLogger("endpoint/http", "WARNING"),
	}
	for _, v := range cfg.Addresses {
		l, err := net.Listen("tcp", v)
		if err != nil {
			s.log.Errorf("Failed to start listener '%v': %v", v, err)
			return err
		}
		s.listeners = append(s.listeners, l)
		s.Add(1)
		go s.listenWorker(l)
	}

	if cfg.QUICAddress != "" {
		var err error
		qlog := s.logBackend.GetLogger(fmt.Sprintf("endpoint:%d/quic", cfg.ID))
		if s.quicListener, err = quic.Listen(cfg.QUICAddress, s.agent, qlog, s.cfg.Debug.ReadTimeout()); err != nil {
			s.log.Errorf("Failed to start QUIC listener '%v': %v", cfg.QUICAddress, err)
			return err
		}
		s.log.Noticef("Listening on: quic/%v", s.quicListener.Addr())
	}

	var bound net.Addr
	switch {
	case strings.HasPrefix(cfg.Address, utils.SchemeHTTP+"://"):
		bound = s.listeners[0].Addr()
	case s.quicListener != nil:
		bound = s.quicListener.Addr()
	}
	var err error
	s.address, err = utils.BindAddress(cfg.Address, bound)
	return err
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")
	close(s.haltCh)

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.log.Warningf("Failed to cleanly stop HTTP server: %v", err)
			s.httpSrv.Close()
		}
		cancel()
	}
	for _, l := range s.listeners {
		l.Close()
	}
	if s.quicListener != nil {
		s.quicListener.Halt()
	}
	s.WaitGroup.Wait()

	if s.quicTr != nil {
		s.quicTr.Close()
	}

	s.log.Notice("Shutdown complete.")
	close(s.haltedCh)
}

// New returns a new Server instance parameterized with the specific
// configuration.
func New(cfg *config.Config, opts ...AgentOption) (*Server, error) {
	s := new(Server)
	s.cfg = cfg
	s.fatalErrCh = make(chan error, 1)
	s.haltCh = make(chan interface{})
	s.haltedCh = make(chan interface{})

	// Do the early initialization and bring up logging.
	if err := utils.EnsureDataDir(s.cfg.Endpoint.DataDir); err != nil {
		return nil, err
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	s.log.Notice("onionmix provides no traffic analysis resistance.  DO NOT DEPEND ON IT FOR ANONYMITY.")
	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Unsafe Debug logging is enabled.")
	}

	dir, err := client.New(&client.Config{
		LogBackend: s.logBackend,
		Address:    s.cfg.Directory.Address,
	})
	if err != nil {
		return nil, err
	}

	builderOpts := []circuit.Option{
		circuit.WithCipher(symmetric.ByName(s.cfg.Endpoint.Cipher)),
	}
	if s.cfg.Debug.RecordCircuits {
		s.log.Warning("RecordCircuits should NOT be used for production deployments.")
		builderOpts = append(builderOpts, circuit.WithCircuitRecording())
	}
	s.quicTr = quic.New(s.cfg.Debug.DialTimeout())
	tr := transport.NewMux()
	tr.Handle(utils.SchemeHTTP, transport.NewHTTP(s.cfg.Debug.SendTimeout()))
	tr.Handle(utils.SchemeQUIC, s.quicTr)
	builder := circuit.New(dir, tr, s.logBackend.GetLogger("circuit"), builderOpts...)

	opts = append([]AgentOption{WithContacts(s.cfg)}, opts...)
	s.agent = NewAgent(builder, s.cfg.Endpoint.CircuitLength, s.log, opts...)

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

	if err = s.initListeners(); err != nil {
		return nil, err
	}
	s.log.Noticef("Accepting messages on: %v", s.address)

	isOk = true
	return s, nil
}
