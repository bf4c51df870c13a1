// addr.go - Address helpers.
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

package utils

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

const (
	// SchemeHTTP is the URL scheme of nodes reachable over HTTP.
	SchemeHTTP = "http"

	// SchemeQUIC is the URL scheme of nodes reachable over QUIC.
	SchemeQUIC = "quic"
)

// EnsureAddrIPPort returns nil iff the address is a raw IP + Port combination.
func EnsureAddrIPPort(a string) error {
	host, _, err := net.SplitHostPort(a)
	if err != nil {
		return err
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("address '%v' is not an IP", host)
	}
	return nil
}

// NormalizeNodeAddress validates a node address of the form scheme://host:port
// and returns it with the scheme lowercased and the host converted to its
// ASCII form.  Paths, queries and fragments are rejected.
func NormalizeNodeAddress(a string) (string, error) {
	u, err := url.Parse(a)
	if err != nil {
		return "", fmt.Errorf("address '%v' is invalid: %w", a, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case SchemeHTTP, SchemeQUIC:
	default:
		return "", fmt.Errorf("address '%v' has unsupported scheme '%v'", a, u.Scheme)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("address '%v' must contain a port", a)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", fmt.Errorf("address '%v' must be of the form scheme://host:port", a)
	}
	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if host, err = idna.Lookup.ToASCII(host); err != nil {
			return "", fmt.Errorf("address '%v' has an invalid host: %w", a, err)
		}
	}
	return scheme + "://" + net.JoinHostPort(host, u.Port()), nil
}

// BindAddress returns the address with a port of 0 replaced by the port of
// the listener bound for it.  Other addresses are returned unchanged.
func BindAddress(a string, bound net.Addr) (string, error) {
	u, err := url.Parse(a)
	if err != nil {
		return "", fmt.Errorf("address '%v' is invalid: %w", a, err)
	}
	if u.Port() != "0" {
		return a, nil
	}
	if bound == nil {
		return "", fmt.Errorf("address '%v' has no listener", a)
	}
	_, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return "", err
	}
	return NormalizeNodeAddress(u.Scheme + "://" + net.JoinHostPort(u.Hostname(), port))
}
