package directory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"citydir/internal/model"
)

// RegistrationMode selects how a second registration under a taken name is handled.
type RegistrationMode string

const (
	// ModeStrict rejects the second registration and keeps the first.
	ModeStrict RegistrationMode = "strict"
	// ModeOverwrite replaces the existing entry wholesale.
	ModeOverwrite RegistrationMode = "overwrite"
)

// ParseRegistrationMode accepts "strict", "overwrite" or "" (strict).
func ParseRegistrationMode(value string) (RegistrationMode, error) {
	switch RegistrationMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeOverwrite:
		return ModeOverwrite, nil
	}
	return "", fmt.Errorf("unknown registration mode %q", value)
}

// AddressBook maps city names to their metadata.
type AddressBook struct {
	mode RegistrationMode

	mu     sync.RWMutex
	cities map[string]model.CityMetadata // key = name
}

// NewAddressBook creates an empty address book.
func NewAddressBook(mode RegistrationMode) *AddressBook {
	if mode == "" {
		mode = ModeStrict
	}
	return &AddressBook{
		mode:   mode,
		cities: make(map[string]model.CityMetadata),
	}
}

// Mode reports the registration mode.
func (b *AddressBook) Mode() RegistrationMode {
	return b.mode
}

// Register stores meta under meta.Name.
func (b *AddressBook) Register(meta model.CityMetadata) error {
	if err := validateMetadata(meta); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.cities[meta.Name]; exists && b.mode == ModeStrict {
		return fmt.Errorf("register %q: %w", meta.Name, ErrNameConflict)
	}
	b.cities[meta.Name] = meta
	return nil
}

// Resolve looks up a city by name.
func (b *AddressBook) Resolve(name string) (model.CityMetadata, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	meta, ok := b.cities[name]
	return meta, ok
}

// List returns a snapshot of all entries sorted by name.
func (b *AddressBook) List() []model.CityMetadata {
	b.mu.RLock()
	out := make([]model.CityMetadata, 0, len(b.cities))
	for _, meta := range b.cities {
		out = append(out, meta)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered cities.
func (b *AddressBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cities)
}

func (b *AddressBook) ids() map[string]struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]struct{}, len(b.cities))
	for _, meta := range b.cities {
		out[meta.ID] = struct{}{}
	}
	return out
}

func validateMetadata(meta model.CityMetadata) error {
	if strings.TrimSpace(meta.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMetadata)
	}
	if strings.TrimSpace(meta.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidMetadata)
	}
	return nil
}
