// Package trust implements the fingerprint trust store: the persistent
// record of which remote ed25519 device fingerprints the local user has
// accepted.
package trust

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
)

// Store is a line-oriented, file-backed set of accepted fingerprints.
// Each non-blank, non-comment line is "user_id device_id algorithm
// public_key". Malformed lines are skipped on read rather than
// rejected, so a store tolerant of a partially-written or hand-edited
// file still loads the entries it can parse.
type Store struct {
	mu   sync.RWMutex
	path string
	keys map[device.Key]struct{}
}

// Open loads a fingerprint store from path, creating no file if one
// does not yet exist (it is created on first Add).
func Open(path string) (*Store, error) {
	s := &Store{path: path, keys: make(map[device.Key]struct{})}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("trust: open %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, ok := parseLine(line)
		if !ok {
			continue
		}
		s.keys[k] = struct{}{}
	}
	return scanner.Err()
}

func parseLine(line string) (device.Key, bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return device.Key{}, false
	}
	user, err := identity.ParseUserID(fields[0])
	if err != nil {
		return device.Key{}, false
	}
	alg, err := device.ParseAlgorithm(fields[2])
	if err != nil {
		return device.Key{}, false
	}
	return device.Key{
		UserID:    user,
		DeviceID:  identity.DeviceID(fields[1]),
		Algorithm: alg,
		Public:    fields[3],
	}, true
}

func formatLine(k device.Key) string {
	return fmt.Sprintf("%s %s %s %s\n", k.UserID.String(), k.DeviceID, k.Algorithm, k.Public)
}

// Add records k as trusted. Returns true iff it was not already
// present. The file is rewritten atomically: a sibling temp file is
// written and renamed over the original, so a crash mid-write leaves
// the prior file intact.
func (s *Store) Add(k device.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; ok {
		return false, nil
	}
	s.keys[k] = struct{}{}
	if err := s.persist(); err != nil {
		delete(s.keys, k)
		return false, err
	}
	return true, nil
}

// Remove un-trusts k. Returns true iff it had been present. Invariant
// 2 (spec §3) holds by construction: nothing but this explicit call
// ever removes a verified fingerprint.
func (s *Store) Remove(k device.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; !ok {
		return false, nil
	}
	delete(s.keys, k)
	if err := s.persist(); err != nil {
		s.keys[k] = struct{}{}
		return false, err
	}
	return true, nil
}

// Check reports whether k is trusted. Contains is an alias kept for
// naming parity with spec §4.2.
func (s *Store) Check(k device.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[k]
	return ok
}

func (s *Store) Contains(k device.Key) bool { return s.Check(k) }

// persist performs the scoped atomic replacement: write to a sibling
// temp path, fsync, then rename over the target. Must be called with
// s.mu held.
func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for k := range s.keys {
		if _, err := w.WriteString(formatLine(k)); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	success = true
	return nil
}
