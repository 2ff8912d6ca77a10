package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// ListByDriver retrieves all devices of one driver.
	ListByDriver(ctx context.Context, driver Driver) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the ID or pairing key is already taken.
	Create(ctx context.Context, device *Device) error

	// Update modifies name, class, icon and capability set.
	// Pairing data is immutable once created.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateValues replaces the stored capability values.
	// This is optimised for frequent writes from the bridge.
	UpdateValues(ctx context.Context, id string, values map[Capability]any, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `
	SELECT id, driver, name, class, icon, data, capabilities,
	       capability_values, values_updated_at, created_at, updated_at
	FROM devices`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevice+" WHERE id = ?", id)

	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDevice+" ORDER BY name, id")
}

// ListByDriver retrieves all devices of one driver.
func (r *SQLiteRepository) ListByDriver(ctx context.Context, driver Driver) ([]Device, error) {
	return r.queryDevices(ctx, selectDevice+" WHERE driver = ? ORDER BY name, id", string(driver))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	dataJSON, capsJSON, valuesJSON, err := marshalDeviceJSON(device)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, driver, name, class, icon, data, capabilities,
			capability_values, values_updated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		string(device.Driver),
		device.Name,
		string(device.Class),
		nullableString(device.Icon),
		dataJSON,
		capsJSON,
		valuesJSON,
		nullableTime(device.ValuesUpdatedAt),
		device.CreatedAt.Format(time.RFC3339Nano),
		device.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device's mutable metadata and capability set.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	capsJSON, err := json.Marshal(nonNilCapabilities(device.Capabilities))
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, class = ?, icon = ?, capabilities = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		string(device.Class),
		nullableString(device.Icon),
		string(capsJSON),
		device.UpdatedAt.Format(time.RFC3339Nano),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	return checkAffected(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return checkAffected(result)
}

// UpdateValues replaces the stored capability values of a device.
func (r *SQLiteRepository) UpdateValues(ctx context.Context, id string, values map[Capability]any, at time.Time) error {
	if values == nil {
		values = map[Capability]any{}
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshalling values: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET capability_values = ?, values_updated_at = ? WHERE id = ?",
		string(valuesJSON),
		at.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating values: %w", err)
	}
	return checkAffected(result)
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var driver, class string
	var icon, valuesUpdatedAt sql.NullString
	var dataJSON, capsJSON, valuesJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&driver,
		&d.Name,
		&class,
		&icon,
		&dataJSON,
		&capsJSON,
		&valuesJSON,
		&valuesUpdatedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Driver = Driver(driver)
	d.Class = Class(class)
	if icon.Valid {
		d.Icon = icon.String
	}

	if valuesUpdatedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, valuesUpdatedAt.String); err == nil {
			d.ValuesUpdatedAt = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339Nano, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(dataJSON), &d.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling data: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(valuesJSON), &d.Values); err != nil {
		return nil, fmt.Errorf("unmarshalling values: %w", err)
	}
	if d.Values == nil {
		d.Values = map[Capability]any{}
	}

	return &d, nil
}

func marshalDeviceJSON(d *Device) (data, caps, values string, err error) {
	dataMap := d.Data
	if dataMap == nil {
		dataMap = map[string]string{}
	}
	dataJSON, err := json.Marshal(dataMap)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling data: %w", err)
	}

	capsJSON, err := json.Marshal(nonNilCapabilities(d.Capabilities))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling capabilities: %w", err)
	}

	valueMap := d.Values
	if valueMap == nil {
		valueMap = map[Capability]any{}
	}
	valuesJSON, err := json.Marshal(valueMap)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling values: %w", err)
	}

	return string(dataJSON), string(capsJSON), string(valuesJSON), nil
}

func nonNilCapabilities(caps []Capability) []Capability {
	if caps == nil {
		return []Capability{}
	}
	return caps
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableString returns a sql.NullString, mapping "" to NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
