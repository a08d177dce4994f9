// Package directory tracks registered cities and their latest telemetry.
//
// A Directory owns two independent maps: names to metadata and ids to
// telemetry. Each map has its own reader/writer lock and the two are never
// updated together, so a reader can see a city before its first telemetry
// report. That state is reported as ErrTelemetryPending.
package directory

import (
	"fmt"

	"citydir/internal/model"
)

// Stats summarises directory contents. Reporting counts registered cities
// whose id has telemetry, so two names sharing an id count twice.
type Stats struct {
	Cities    int      `json:"cities"`
	Reporting int      `json:"reporting"`
	Orphans   int      `json:"orphans"`
	OrphanIDs []string `json:"orphan_ids"`
}

// Directory composes an AddressBook and a TelemetryStore.
type Directory struct {
	book      *AddressBook
	telemetry *TelemetryStore
}

// Option configures a Directory.
type Option func(*Directory)

// WithRegistrationMode sets the AddressBook conflict behaviour.
func WithRegistrationMode(mode RegistrationMode) Option {
	return func(d *Directory) {
		d.book = NewAddressBook(mode)
	}
}

// New creates an empty directory. Registration is strict unless overridden.
func New(opts ...Option) *Directory {
	d := &Directory{
		book:      NewAddressBook(ModeStrict),
		telemetry: NewTelemetryStore(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode reports how name conflicts are handled.
func (d *Directory) Mode() RegistrationMode {
	return d.book.Mode()
}

// Register adds a city to the address book.
func (d *Directory) Register(meta model.CityMetadata) error {
	return d.book.Register(meta)
}

// List returns a snapshot of registered cities.
func (d *Directory) List() []model.CityMetadata {
	return d.book.List()
}

// Resolve looks up a city by name.
func (d *Directory) Resolve(name string) (model.CityMetadata, bool) {
	return d.book.Resolve(name)
}

// ResolveAddress returns the command address registered for name.
func (d *Directory) ResolveAddress(name string) (string, bool) {
	meta, ok := d.book.Resolve(name)
	if !ok {
		return "", false
	}
	return meta.Address, true
}

// UpdateTelemetry stores t for id. Unknown ids are accepted.
func (d *Directory) UpdateTelemetry(id string, t model.Telemetry) {
	d.telemetry.Put(id, t)
}

// TelemetryByID returns the latest telemetry reported for id.
func (d *Directory) TelemetryByID(id string) (model.Telemetry, error) {
	t, ok := d.telemetry.Get(id)
	if !ok {
		return model.Telemetry{}, fmt.Errorf("telemetry for id %q: %w", id, ErrNodeUnknown)
	}
	return t, nil
}

// TelemetryByName resolves name to an id and returns its latest telemetry.
// It returns ErrNodeUnknown when name is not registered and
// ErrTelemetryPending when the city has not reported yet.
func (d *Directory) TelemetryByName(name string) (model.Telemetry, error) {
	meta, ok := d.book.Resolve(name)
	if !ok {
		return model.Telemetry{}, fmt.Errorf("city %q: %w", name, ErrNodeUnknown)
	}
	t, ok := d.telemetry.Get(meta.ID)
	if !ok {
		return model.Telemetry{}, fmt.Errorf("city %q (id %s): %w", name, meta.ID, ErrTelemetryPending)
	}
	return t, nil
}

// Orphans lists telemetry ids with no registered city. Nothing is pruned.
func (d *Directory) Orphans() []string {
	return d.orphans(d.book.ids())
}

func (d *Directory) orphans(registered map[string]struct{}) []string {
	return d.telemetry.Orphans(func(id string) bool {
		_, ok := registered[id]
		return ok
	})
}

// Stats returns counts for the two maps.
func (d *Directory) Stats() Stats {
	cities := d.book.List()
	registered := make(map[string]struct{}, len(cities))
	reporting := 0
	for _, c := range cities {
		registered[c.ID] = struct{}{}
		if _, ok := d.telemetry.Get(c.ID); ok {
			reporting++
		}
	}
	orphans := d.orphans(registered)
	return Stats{
		Cities:    len(cities),
		Reporting: reporting,
		Orphans:   len(orphans),
		OrphanIDs: orphans,
	}
}
