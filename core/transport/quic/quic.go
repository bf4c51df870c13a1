// quic.go - QUIC transport.
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

// Package quic provides a QUIC transport: every envelope or message is
// sent as one CBOR frame on its own stream, answered by one CBOR reply.
package quic

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/katzenpost/hpqc/rand"
	quicgo "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/utils"
)

const (
	frameEnvelope uint8 = 1
	frameMessage  uint8 = 2

	// MaxFrameSize is the largest frame accepted on a stream.
	MaxFrameSize = onion.MaxEnvelopeSize + 1024

	maxReplySize = 4096
	idleTimeout  = 30 * time.Second
)

var (
	ccbor cbor.EncMode
	dcbor cbor.DecMode
)

type frame struct {
	Kind uint8
	Body []byte
}

type reply struct {
	Code  uint16
	Error string
}

// Transport is the QUIC client side transport.
type Transport struct {
	sync.Mutex

	tlsConf     *tls.Config
	conf        *quicgo.Config
	dialTimeout time.Duration
	conns       map[string]*quicgo.Conn
}

// New returns a QUIC transport whose dials time out after dialTimeout.
func New(dialTimeout time.Duration) *Transport {
	return &Transport{
		// Relays are authenticated by their onion layer keys, not by the
		// TLS certificate, which is self signed.
		tlsConf: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{http3.NextProtoH3},
		},
		conf:        &quicgo.Config{MaxIdleTimeout: idleTimeout},
		dialTimeout: dialTimeout,
		conns:       make(map[string]*quicgo.Conn),
	}
}

// SendEnvelope implements transport.Transport.
func (t *Transport) SendEnvelope(ctx context.Context, addr string, envelope []byte) error {
	return t.roundTrip(ctx, addr, &frame{Kind: frameEnvelope, Body: envelope})
}

// Deliver implements transport.Transport.
func (t *Transport) Deliver(ctx context.Context, addr string, message []byte) error {
	return t.roundTrip(ctx, addr, &frame{Kind: frameMessage, Body: message})
}

// Close closes every cached connection.
func (t *Transport) Close() error {
	t.Lock()
	defer t.Unlock()
	for k, conn := range t.conns {
		conn.CloseWithError(0, "")
		delete(t.conns, k)
	}
	return nil
}

func (t *Transport) roundTrip(ctx context.Context, addr string, f *frame) error {
	hostPort, err := hostPortOf(addr)
	if err != nil {
		return err
	}
	blob, err := ccbor.Marshal(f)
	if err != nil {
		return err
	}

	str, err := t.openStream(ctx, hostPort)
	if err != nil {
		return err
	}
	defer str.CancelRead(0)
	if deadline, ok := ctx.Deadline(); ok {
		str.SetDeadline(deadline)
	}

	if _, err = str.Write(blob); err != nil {
		return err
	}
	if err = str.Close(); err != nil {
		return err
	}
	raw, err := io.ReadAll(io.LimitReader(str, maxReplySize))
	if err != nil {
		return err
	}
	var r reply
	if err = dcbor.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("quic: invalid reply from '%s': %w", addr, err)
	}
	if !transport.IsSuccess(int(r.Code)) {
		return &transport.StatusError{Address: addr, Code: int(r.Code), Message: r.Error}
	}
	return nil
}

func (t *Transport) openStream(ctx context.Context, hostPort string) (*quicgo.Stream, error) {
	conn, err := t.getConn(ctx, hostPort)
	if err != nil {
		return nil, err
	}
	str, err := conn.OpenStreamSync(ctx)
	if err == nil {
		return str, nil
	}

	// The cached connection went stale.  Nothing has been sent yet, so
	// redial once.
	t.dropConn(hostPort, conn)
	if conn, err = t.getConn(ctx, hostPort); err != nil {
		return nil, err
	}
	return conn.OpenStreamSync(ctx)
}

func (t *Transport) getConn(ctx context.Context, hostPort string) (*quicgo.Conn, error) {
	t.Lock()
	conn, ok := t.conns[hostPort]
	t.Unlock()
	if ok {
		return conn, nil
	}

	dialCtx := ctx
	if t.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}
	conn, err := quicgo.DialAddr(dialCtx, hostPort, t.tlsConf, t.conf)
	if err != nil {
		return nil, err
	}

	t.Lock()
	defer t.Unlock()
	if existing, ok := t.conns[hostPort]; ok {
		conn.CloseWithError(0, "")
		return existing, nil
	}
	t.conns[hostPort] = conn
	return conn, nil
}

func (t *Transport) dropConn(hostPort string, conn *quicgo.Conn) {
	t.Lock()
	defer t.Unlock()
	if t.conns[hostPort] == conn {
		delete(t.conns, hostPort)
	}
	conn.CloseWithError(0, "")
}

func hostPortOf(addr string) (string, error) {
	hostPort, ok := strings.CutPrefix(addr, utils.SchemeQUIC+"://")
	if !ok || hostPort == "" {
		return "", fmt.Errorf("%w: '%s'", transport.ErrUnsupportedScheme, addr)
	}
	return hostPort, nil
}

// GenerateTLSConfig returns a bare-bones TLS config with a fresh self
// signed certificate, for listeners.
func GenerateTLSConfig() (*tls.Config, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, pubKey, privKey)
	if err != nil {
		return nil, err
	}
	pkb, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkb})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	// ALPN is visible in the handshake, so use a common protocol rather
	// than one unique to this network.
	return &tls.Config{Certificates: []tls.Certificate{tlsCert}, NextProtos: []string{http3.NextProtoH3}}, nil
}

var errFrameTooLarge = errors.New("quic: frame too large")

func init() {
	var err error
	ccbor, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dcbor, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}
