// state.go - Directory state.
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

package directory

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/pki"
)

const (
	dbFile        = "persistence.db"
	relaysBucket  = "relays"
	stateVersion0 = 0

	challengeLifetime = time.Minute
)

var errPersistence = errors.New("directory: persistence failure")

type state struct {
	sync.RWMutex

	s   *Server
	log *logging.Logger
	db  *bolt.DB

	allowed    map[string]bool
	relays     map[uint64]*pki.RelayDescriptor
	challenges map[uint64]*challenge
}

// challenge is the outstanding ownership challenge of a relay.  At most one
// exists per relay, and it is consumed by the first proof checked against
// it.
type challenge struct {
	nonce  []byte
	expiry time.Time
}

func (st *state) halt() {
	st.Lock()
	defer st.Unlock()

	if st.db != nil {
		st.db.Sync()
		st.db.Close()
		st.db = nil
	}
}

func (st *state) isSchemeAllowed(name string) bool {
	if len(st.allowed) == 0 {
		return true
	}
	return st.allowed[name]
}

// register adds the descriptor.  Registering an id again with the same
// descriptor is a no-op.  Changing the address of a registered id needs a
// proof of ownership of its key, anything else is ErrDuplicateID.
func (st *state) register(d *pki.RelayDescriptor, proof []byte) error {
	if err := pki.IsDescriptorWellFormed(d); err != nil {
		return err
	}
	if !st.isSchemeAllowed(d.KeyScheme) {
		return fmt.Errorf("directory: key scheme '%v' is not allowed", d.KeyScheme)
	}

	st.Lock()
	defer st.Unlock()

	if old, ok := st.relays[d.ID]; ok {
		if !old.SameKey(d) {
			return pki.ErrDuplicateID
		}
		if old.Address == d.Address {
			st.log.Debugf("Relay %d re-registered, no change.", d.ID)
			return nil
		}
		if proof == nil {
			return pki.ErrDuplicateID
		}
		if err := st.checkProof(d.ID, proof); err != nil {
			return err
		}
		st.log.Noticef("Relay %d moved from %v.", d.ID, old.Address)
	}

	raw, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	if err = st.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(relaysBucket)).Put(idToBytes(d.ID), raw)
	}); err != nil {
		// Persistence failures are fatal.
		st.s.fatal(err)
		return fmt.Errorf("%w: %v", errPersistence, err)
	}

	st.relays[d.ID] = d
	st.log.Noticef("Registered relay: %v", d)
	return nil
}

func (st *state) unregister(id uint64, proof []byte) error {
	st.Lock()
	defer st.Unlock()

	old, ok := st.relays[id]
	if !ok {
		return pki.ErrNotFound
	}
	if err := st.checkProof(id, proof); err != nil {
		return err
	}
	if err := st.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(relaysBucket)).Delete(idToBytes(id))
	}); err != nil {
		st.s.fatal(err)
		return fmt.Errorf("%w: %v", errPersistence, err)
	}

	delete(st.relays, id)
	st.log.Noticef("Unregistered relay: %v", old)
	return nil
}

// newChallenge issues a fresh challenge for the relay, replacing any
// outstanding one.
func (st *state) newChallenge(id uint64) ([]byte, error) {
	st.Lock()
	defer st.Unlock()

	d, ok := st.relays[id]
	if !ok {
		return nil, pki.ErrNotFound
	}
	pk, err := d.Key()
	if err != nil {
		return nil, err
	}
	nonce, ch, err := pki.SealChallenge(pk)
	if err != nil {
		return nil, err
	}
	st.challenges[id] = &challenge{
		nonce:  nonce,
		expiry: time.Now().Add(challengeLifetime),
	}
	return ch, nil
}

// checkProof consumes the relay's outstanding challenge and checks proof
// against it.  The caller must hold the lock.
func (st *state) checkProof(id uint64, proof []byte) error {
	c, ok := st.challenges[id]
	delete(st.challenges, id)
	if !ok || time.Now().After(c.expiry) {
		return fmt.Errorf("%w: no outstanding challenge", pki.ErrInvalidProof)
	}
	if subtle.ConstantTimeCompare(c.nonce, proof) != 1 {
		return pki.ErrInvalidProof
	}
	return nil
}

// list returns the registered relays ordered by id.
func (st *state) list() []*pki.RelayDescriptor {
	st.RLock()
	defer st.RUnlock()

	l := make([]*pki.RelayDescriptor, 0, len(st.relays))
	for _, d := range st.relays {
		l = append(l, d)
	}
	sort.Slice(l, func(i, j int) bool { return l[i].ID < l[j].ID })
	return l
}

func (st *state) restorePersistence() error {
	const (
		metadataBucket = "metadata"
		versionKey     = "version"
	)

	return st.db.Update(func(tx *bolt.Tx) error {
		// Ensure that all the buckets exist.
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		relaysBkt, err := tx.CreateBucketIfNotExists([]byte(relaysBucket))
		if err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			// Well it looks like we loaded as opposed to created.
			if len(b) != 1 || b[0] != stateVersion0 {
				return fmt.Errorf("state: incompatible version: %d", uint(b[0]))
			}

			return relaysBkt.ForEach(func(k, v []byte) error {
				d := new(pki.RelayDescriptor)
				if err := d.UnmarshalBinary(v); err != nil {
					st.log.Errorf("Failed to parse persisted relay %x: %v", k, err)
					return nil
				}
				if err := pki.IsDescriptorWellFormed(d); err != nil {
					st.log.Errorf("Dropping invalid persisted relay: %v", err)
					return nil
				}
				st.log.Debugf("Restored relay: %v", d)
				st.relays[d.ID] = d
				return nil
			})
		}

		// We created a new database, so populate the new `metadata` bucket.
		return bkt.Put([]byte(versionKey), []byte{stateVersion0})
	})
}

func newState(s *Server) (*state, error) {
	st := &state{
		s:       s,
		log:     s.logBackend.GetLogger("state"),
		allowed:    make(map[string]bool),
		relays:     make(map[uint64]*pki.RelayDescriptor),
		challenges: make(map[uint64]*challenge),
	}
	for _, v := range s.cfg.Directory.AllowedKeySchemes {
		st.allowed[v] = true
	}

	// Initialize the persistence store and restore state.
	dbPath := filepath.Join(s.cfg.Directory.DataDir, dbFile)
	var err error
	if st.db, err = bolt.Open(dbPath, 0600, nil); err != nil {
		return nil, err
	}
	if err = st.restorePersistence(); err != nil {
		st.db.Close()
		return nil, err
	}
	st.log.Noticef("Restored %d relays.", len(st.relays))
	return st, nil
}

func idToBytes(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}
