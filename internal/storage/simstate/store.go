// Package simstate persists the paper exchange wallet between restarts.
package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultDir is used when no directory is configured.
const DefaultDir = "./wal/simulate"

// Store keeps the wallet of one paper account in a JSON file.
type Store struct {
	path string
}

// NewStore creates a store for account under dir.
func NewStore(dir, account string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitize(account)
	if name == "" {
		name = "default"
	}

	return &Store{path: filepath.Join(dir, fmt.Sprintf("%s.json", name))}, nil
}

// State represents all persisted simulator data.
type State struct {
	Wallet map[string]string `json:"wallet"`
	Orders int64             `json:"orders"`
}

// Balances decodes the wallet.
func (s State) Balances() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(s.Wallet))
	for asset, raw := range s.Wallet {
		if raw == "" {
			out[asset] = decimal.Zero
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s balance", asset)
		}
		out[asset] = v
	}

	return out, nil
}

// NewState encodes a wallet.
func NewState(wallet map[string]decimal.Decimal, orders int64) State {
	st := State{Wallet: make(map[string]string, len(wallet)), Orders: orders}
	for asset, balance := range wallet {
		st.Wallet[asset] = balance.String()
	}

	return st
}

// Load reads simulator state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes simulator state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

func sanitize(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))

	var b strings.Builder
	prevUnderscore := false
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
