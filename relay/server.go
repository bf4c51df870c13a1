// server.go - Relay server.
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

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/transport/quic"
	"github.com/onionmix/onionmix/core/utils"
	"github.com/onionmix/onionmix/directory/client"
	"github.com/onionmix/onionmix/relay/config"
	"github.com/onionmix/onionmix/relay/internal/instrument"
	"github.com/onionmix/onionmix/relay/internal/profiling"
)

const (
	registerTimeout = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server is a relay server instance.
type Server struct {
	sync.WaitGroup

	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	relay  *Relay
	dir    pki.Client
	prover pki.Prover
	desc   *pki.RelayDescriptor
	quicTr *quic.Transport

	listeners    []net.Listener
	httpSrv      *http.Server
	quicListener *quic.Listener
	metricsSrv   *http.Server
	registered   bool

	fatalErrCh chan error
	haltCh     chan interface{}
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initLogging() error {
	p := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && s.cfg.Logging.File != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.cfg.Relay.DataDir, p)
		}
	}

	var err error
	s.logBackend, err = log.New(p, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger(fmt.Sprintf("relay:%d", s.cfg.Relay.ID))
	}
	return err
}

// Relay returns the server's forwarding state machine.
func (s *Server) Relay() *Relay {
	return s.relay
}

// Descriptor returns the descriptor the relay registered with.
func (s *Server) Descriptor() *pki.RelayDescriptor {
	return s.desc
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

func (s *Server) serveWorker(srv *http.Server, l net.Listener) {
	addr := l.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer func() {
		s.log.Noticef("Stopping listening on: %v", addr)
		s.Done()
	}()

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Errorf("Critical accept failure: %v", err)
		s.fatal(err)
	}
}

func (s *Server) listen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Errorf("Failed to start listener '%v': %v", addr, err)
		return nil, err
	}
	s.listeners = append(s.listeners, l)
	return l, nil
}

func (s *Server) initListeners() error {
	cfg := s.cfg.Relay

	if len(cfg.Addresses) > 0 {
		s.httpSrv = &http.Server{
			Handler:     s,
			ReadTimeout: s.cfg.Debug.ReadTimeout(),
			ErrorLog:    s.logBackend.GetGoLogger("relay/http", "WARNING"),
		}
		for _, v := range cfg.Addresses {
			l, err := s.listen(v)
			if err != nil {
				return err
			}
			s.Add(1)
			go s.serveWorker(s.httpSrv, l)
		}
	}

	if cfg.QUICAddress != "" {
		var err error
		qlog := s.logBackend.GetLogger(fmt.Sprintf("relay:%d/quic", cfg.ID))
		if s.quicListener, err = quic.Listen(cfg.QUICAddress, s.relay, qlog, s.cfg.Debug.ReadTimeout()); err != nil {
			s.log.Errorf("Failed to start QUIC listener '%v': %v", cfg.QUICAddress, err)
			return err
		}
		s.log.Noticef("Listening on: quic/%v", s.quicListener.Addr())
	}

	if s.cfg.Debug.MetricsAddress != "" {
		instrument.Init()
		mux := http.NewServeMux()
		mux.Handle("/metrics", instrument.Handler())
		s.metricsSrv = &http.Server{Handler: mux}
		l, err := s.listen(s.cfg.Debug.MetricsAddress)
		if err != nil {
			return err
		}
		s.Add(1)
		go s.serveWorker(s.metricsSrv, l)
	}
	return nil
}

// advertisedAddress returns the configured address with a zero port
// replaced by the port the matching listener bound to.
func (s *Server) advertisedAddress() (string, error) {
	var bound net.Addr
	switch {
	case strings.HasPrefix(s.cfg.Relay.Address, utils.SchemeHTTP+"://"):
		if s.httpSrv != nil {
			bound = s.listeners[0].Addr()
		}
	case s.quicListener != nil:
		bound = s.quicListener.Addr()
	}
	return utils.BindAddress(s.cfg.Relay.Address, bound)
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")
	close(s.haltCh)

	// Leave the directory first so senders stop picking this relay.
	if s.registered && !s.cfg.Debug.SkipUnregister {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.dir.Unregister(ctx, s.desc.ID, s.prover); err != nil {
			s.log.Warningf("Failed to unregister: %v", err)
		} else {
			s.log.Notice("Unregistered from the directory.")
		}
		cancel()
	}

	for _, srv := range []*http.Server{s.httpSrv, s.metricsSrv} {
		if srv == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warningf("Failed to cleanly stop HTTP server: %v", err)
			srv.Close()
		}
		cancel()
	}
	// Listeners that never got a server.
	for _, l := range s.listeners {
		l.Close()
	}
	if s.quicListener != nil {
		s.quicListener.Halt()
	}
	s.WaitGroup.Wait()

	// Abandon hand-offs still in flight.
	if s.relay != nil {
		s.relay.Halt()
	}
	if s.quicTr != nil {
		s.quicTr.Close()
	}

	s.log.Notice("Shutdown complete.")
	close(s.haltedCh)
}

// New returns a new Server instance parameterized with the specific
// configuration.  The relay is registered with the directory and serving
// once New returns.
func New(cfg *config.Config) (*Server, error) {
	s := new(Server)
	s.cfg = cfg
	s.fatalErrCh = make(chan error, 1)
	s.haltCh = make(chan interface{})
	s.haltedCh = make(chan interface{})

	// Do the early initialization and bring up logging.
	if err := utils.EnsureDataDir(s.cfg.Relay.DataDir); err != nil {
		return nil, err
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	s.log.Notice("onionmix provides no traffic analysis resistance.  DO NOT DEPEND ON IT FOR ANONYMITY.")
	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Unsafe Debug logging is enabled.")
	}
	if err := profiling.Start(s.log, strconv.FormatUint(s.cfg.Relay.ID, 10)); err != nil {
		s.log.Warningf("Failed to start profiling: %v", err)
	}

	// Initialize the relay key.
	scheme := pke.ByName(s.cfg.Relay.KeyScheme)
	key, err := LoadKey(s.cfg.Relay.DataDir, scheme)
	if err != nil {
		s.log.Errorf("Failed to initialize key: %v", err)
		return nil, err
	}
	if !s.cfg.Debug.DisableReplayFilter {
		if err = key.EnableReplayFilter(s.cfg.Debug.ReplayFilterLn2); err != nil {
			return nil, err
		}
	}
	s.log.Noticef("Relay public key is: %s %s", scheme.Name(), pke.Fingerprint(key.PublicKey()))
	s.prover = pki.NewProver(key.PrivateKey())

	s.dir, err = client.New(&client.Config{
		LogBackend: s.logBackend,
		Address:    s.cfg.Directory.Address,
	})
	if err != nil {
		return nil, err
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

	s.quicTr = quic.New(s.cfg.Debug.DialTimeout())
	tr := transport.NewMux()
	tr.Handle(utils.SchemeHTTP, transport.NewHTTP(s.cfg.Debug.ForwardTimeout()))
	tr.Handle(utils.SchemeQUIC, s.quicTr)
	s.relay = NewRelay(s.cfg.Relay.ID, key, tr, s.log, s.cfg.Debug.ForwardTimeout())

	if err = s.initListeners(); err != nil {
		return nil, err
	}

	addr, err := s.advertisedAddress()
	if err != nil {
		return nil, err
	}
	s.desc = pki.NewRelayDescriptor(s.cfg.Relay.ID, key.PublicKey(), addr)

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()
	err = s.dir.Register(ctx, s.desc)
	if errors.Is(err, pki.ErrDuplicateID) {
		// A relay that moved proves it still holds the registered key.
		if uErr := s.dir.Update(ctx, s.desc, s.prover); uErr == nil {
			s.log.Notice("Updated the registered address.")
			err = nil
		} else {
			s.log.Debugf("Failed to update the registration: %v", uErr)
		}
	}
	if err != nil {
		s.log.Errorf("Failed to register with the directory: %v", err)
		return nil, fmt.Errorf("relay: failed to register: %w", err)
	}
	s.registered = true
	s.log.Noticef("Registered as: %v", s.desc)

	isOk = true
	return s, nil
}
