//go:build noprometheus
// +build noprometheus

// prometheus_dummy.go - Relay metrics stubs.
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

package instrument

import (
	"net/http"
	"time"
)

// Init does nothing
func Init() {}

// Handler returns a handler that serves nothing
func Handler() http.Handler {
	return http.NotFoundHandler()
}

// EnvelopeReceived does nothing
func EnvelopeReceived() {}

// EnvelopeRejected does nothing
func EnvelopeRejected(reason string) {}

// EnvelopeForwarded does nothing
func EnvelopeForwarded() {}

// MessageDelivered does nothing
func MessageDelivered() {}

// DeliveryFailed does nothing
func DeliveryFailed(kind string) {}

// ObserveHandOff does nothing
func ObserveHandOff(d time.Duration) {}
