package archive

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
)

// Reader reads a SQLite archive.
type Reader struct {
	*sql.DB
}

// OpenReader opens the SQLite archive stored in dir.
func OpenReader(dir string) (*Reader, error) {
	return NewReader(filepath.Join(dir, SQLiteFileName))
}

// NewReader opens a SQLite archive file.
func NewReader(filename string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+filename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	return &Reader{DB: db}, nil
}

// Properties returns every archive property.
func (r *Reader) Properties(ctx context.Context) (map[string]string, error) {
	rows, err := r.QueryContext(ctx, `SELECT Name, Value FROM `+TableProperties)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := make(map[string]string)

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}

		props[name] = value
	}

	return props, rows.Err()
}

// Strings returns every interned string by ref.
func (r *Reader) Strings(ctx context.Context) (map[StringRef]string, error) {
	rows, err := r.QueryContext(ctx, `SELECT Ref, Value FROM `+TableStrings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	strs := make(map[StringRef]string)

	for rows.Next() {
		var (
			ref   uint32
			value string
		)

		if err := rows.Scan(&ref, &value); err != nil {
			return nil, err
		}

		strs[StringRef(ref)] = value
	}

	return strs, rows.Err()
}

// Attributes returns the attribute definitions ordered by ref.
func (r *Reader) Attributes(ctx context.Context) ([]AttributeDef, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT Ref, Name, Description, Type FROM `+TableAttributes+
			` ORDER BY Ref`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []AttributeDef

	for rows.Next() {
		var (
			ref, name, desc uint32
			typ             uint8
		)

		if err := rows.Scan(&ref, &name, &desc, &typ); err != nil {
			return nil, err
		}

		defs = append(defs, AttributeDef{
			Ref:         AttributeRef(ref),
			Name:        StringRef(name),
			Description: StringRef(desc),
			Type:        AttributeType(typ),
		})
	}

	return defs, rows.Err()
}

// LocationGroups returns the location group definitions.
func (r *Reader) LocationGroups(ctx context.Context) ([]LocationGroupDef, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT Ref, Name, Parent FROM `+TableLocationGroups+` ORDER BY Ref`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []LocationGroupDef

	for rows.Next() {
		var ref, name, parent uint32
		if err := rows.Scan(&ref, &name, &parent); err != nil {
			return nil, err
		}

		defs = append(defs, LocationGroupDef{
			Ref:              ref,
			Name:             StringRef(name),
			SystemTreeParent: parent,
		})
	}

	return defs, rows.Err()
}

// Regions returns the region definitions ordered by ref.
func (r *Reader) Regions(ctx context.Context) ([]RegionDef, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT Ref, Name, Role, Attributes FROM `+TableRegions+` ORDER BY Ref`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []RegionDef

	for rows.Next() {
		var (
			ref, name uint32
			role      uint8
			blob      []byte
		)

		if err := rows.Scan(&ref, &name, &role, &blob); err != nil {
			return nil, err
		}

		attrs, err := DecodeAttributes(blob)
		if err != nil {
			return nil, err
		}

		defs = append(defs, RegionDef{
			Ref:        RegionRef(ref),
			Name:       StringRef(name),
			Role:       RegionRole(role),
			Attributes: attrs,
		})
	}

	return defs, rows.Err()
}

// Locations returns the location definitions ordered by ref.
func (r *Reader) Locations(ctx context.Context) ([]LocationDef, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT Ref, Name, Type, Events, LocationGroup FROM `+TableLocations+
			` ORDER BY Ref`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []LocationDef

	for rows.Next() {
		var (
			ref, events uint64
			name, group uint32
			typ         uint8
		)

		if err := rows.Scan(&ref, &name, &typ, &events, &group); err != nil {
			return nil, err
		}

		defs = append(defs, LocationDef{
			Ref:    LocationRef(ref),
			Name:   StringRef(name),
			Type:   LocationType(typ),
			Events: events,
			Group:  group,
		})
	}

	return defs, rows.Err()
}

// Events returns the event stream of a location in emission order.
func (r *Reader) Events(ctx context.Context, loc LocationRef) ([]Event, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT Seq, Kind, Time, Region, Attributes FROM `+TableEvents+
			` WHERE Location = ? ORDER BY Seq`, uint64(loc))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var (
			seq, time uint64
			kind      uint8
			region    uint32
			blob      []byte
		)

		if err := rows.Scan(&seq, &kind, &time, &region, &blob); err != nil {
			return nil, err
		}

		attrs, err := DecodeAttributes(blob)
		if err != nil {
			return nil, err
		}

		events = append(events, Event{
			Kind:       EventKind(kind),
			Time:       time,
			Seq:        seq,
			Region:     RegionRef(region),
			Attributes: attrs,
		})
	}

	return events, rows.Err()
}

// CountEvents returns the number of events in the archive.
func (r *Reader) CountEvents(ctx context.Context) (int, error) {
	var n int

	err := r.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+TableEvents).Scan(&n)

	return n, err
}
