// listener.go - QUIC listener.
// Copyright (C) 2023  Masala.
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

package quic

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/worker"
)

const replyTimeout = 10 * time.Second

// Handler processes frames received by a Listener.
type Handler interface {
	// HandleEnvelope processes a serialized envelope.
	HandleEnvelope(ctx context.Context, envelope []byte) error

	// HandleMessage processes a delivered message.
	HandleMessage(ctx context.Context, message []byte) error
}

// Listener accepts QUIC connections and serves one frame per stream.
type Listener struct {
	worker.Worker

	log *logging.Logger
	l   *quicgo.Listener
	h   Handler

	readTimeout time.Duration
}

// Listen starts a Listener on addr (host:port).
func Listen(addr string, h Handler, log *logging.Logger, readTimeout time.Duration) (*Listener, error) {
	tlsConf, err := GenerateTLSConfig()
	if err != nil {
		return nil, err
	}
	ql, err := quicgo.ListenAddr(addr, tlsConf, &quicgo.Config{MaxIdleTimeout: idleTimeout})
	if err != nil {
		return nil, err
	}
	l := &Listener{
		log:         log,
		l:           ql,
		h:           h,
		readTimeout: readTimeout,
	}
	l.Go(l.acceptWorker)
	return l, nil
}

// Addr returns the local address of the listener.
func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

// Halt stops accepting and waits for in flight streams to finish.
func (l *Listener) Halt() {
	l.Worker.Halt()
	l.l.Close()
}

func (l *Listener) acceptWorker() {
	ctx, cancel := l.HaltContext(context.Background())
	defer cancel()

	for {
		conn, err := l.l.Accept(ctx)
		if err != nil {
			select {
			case <-l.HaltCh():
				l.log.Debugf("Terminating gracefully.")
			default:
				l.log.Errorf("Critical accept failure: %v", err)
			}
			return
		}
		l.log.Debugf("Accepted new connection: %v", conn.RemoteAddr())
		l.Go(func() {
			l.connWorker(ctx, conn)
		})
	}
}

func (l *Listener) connWorker(ctx context.Context, conn *quicgo.Conn) {
	defer conn.CloseWithError(0, "")
	for {
		str, err := conn.AcceptStream(ctx)
		if err != nil {
			l.log.Debugf("Connection %v closed: %v", conn.RemoteAddr(), err)
			return
		}
		l.Go(func() {
			l.onStream(ctx, str)
		})
	}
}

func (l *Listener) onStream(ctx context.Context, str *quicgo.Stream) {
	defer str.Close()

	if l.readTimeout > 0 {
		str.SetReadDeadline(time.Now().Add(l.readTimeout))
	}
	code, err := l.serve(ctx, str)
	r := &reply{Code: uint16(code)}
	if err != nil {
		l.log.Debugf("Stream %v: %v", str.StreamID(), err)
		r.Error = http.StatusText(code)
	}
	blob, err := ccbor.Marshal(r)
	if err != nil {
		l.log.Errorf("Failed to serialize reply: %v", err)
		return
	}
	str.SetWriteDeadline(time.Now().Add(replyTimeout))
	if _, err = str.Write(blob); err != nil {
		l.log.Debugf("Failed to write reply: %v", err)
	}
}

func (l *Listener) serve(ctx context.Context, str io.Reader) (int, error) {
	raw, err := io.ReadAll(io.LimitReader(str, MaxFrameSize+1))
	if err != nil {
		return http.StatusBadRequest, err
	}
	if len(raw) > MaxFrameSize {
		return http.StatusRequestEntityTooLarge, errFrameTooLarge
	}
	var f frame
	if err = dcbor.Unmarshal(raw, &f); err != nil {
		return http.StatusBadRequest, fmt.Errorf("quic: invalid frame: %w", err)
	}

	switch f.Kind {
	case frameEnvelope:
		err = l.h.HandleEnvelope(ctx, f.Body)
	case frameMessage:
		err = l.h.HandleMessage(ctx, f.Body)
	default:
		return http.StatusBadRequest, fmt.Errorf("quic: unknown frame kind %d", f.Kind)
	}
	return transport.StatusFor(err), err
}
