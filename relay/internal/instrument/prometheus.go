//go:build !noprometheus
// +build !noprometheus

// prometheus.go - Relay metrics.
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

// Package instrument exposes the relay's Prometheus metrics.
package instrument

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	envelopesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionmix_relay_envelopes_received_total",
			Help: "Number of envelopes received",
		},
	)
	envelopesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionmix_relay_envelopes_rejected_total",
			Help: "Number of envelopes rejected, by reason",
		},
		[]string{"reason"},
	)
	envelopesForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionmix_relay_envelopes_forwarded_total",
			Help: "Number of envelopes forwarded to the next relay",
		},
	)
	messagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionmix_relay_messages_delivered_total",
			Help: "Number of messages delivered to endpoints",
		},
	)
	deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionmix_relay_delivery_failures_total",
			Help: "Number of failed hand offs, by kind",
		},
		[]string{"kind"},
	)
	handOffDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onionmix_relay_hand_off_duration_seconds",
			Help:    "Time taken to hand an envelope or message to the next hop",
			Buckets: prometheus.DefBuckets,
		},
	)

	initOnce sync.Once
)

// Init registers the metrics.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(envelopesReceived)
		prometheus.MustRegister(envelopesRejected)
		prometheus.MustRegister(envelopesForwarded)
		prometheus.MustRegister(messagesDelivered)
		prometheus.MustRegister(deliveryFailures)
		prometheus.MustRegister(handOffDuration)
	})
}

// Handler returns the HTTP handler serving the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EnvelopeReceived increments the counter for received envelopes.
func EnvelopeReceived() {
	envelopesReceived.Inc()
}

// EnvelopeRejected increments the counter for rejected envelopes.
func EnvelopeRejected(reason string) {
	envelopesRejected.With(prometheus.Labels{"reason": reason}).Inc()
}

// EnvelopeForwarded increments the counter for forwarded envelopes.
func EnvelopeForwarded() {
	envelopesForwarded.Inc()
}

// MessageDelivered increments the counter for delivered messages.
func MessageDelivered() {
	messagesDelivered.Inc()
}

// DeliveryFailed increments the counter for failed hand offs.
func DeliveryFailed(kind string) {
	deliveryFailures.With(prometheus.Labels{"kind": kind}).Inc()
}

// ObserveHandOff records how long a hand off took.
func ObserveHandOff(d time.Duration) {
	handOffDuration.Observe(d.Seconds())
}
