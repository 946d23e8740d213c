package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

type propertyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const propertySelect = `
	SELECT p.id, p.listing_code, p.type, p.title, p.description, p.address, p.city, p.area, p.price,
		p.rooms, p.bathrooms, p.floor, p.total_floors, p.built_year, p.status, p.employee_id,
		COALESCE(e.full_name, ''), p.source_url, p.created_at, p.updated_at
	FROM properties p
	LEFT JOIN employees e ON e.id = p.employee_id
`

// stagedSuffix marks image files detached from the catalog but not yet
// removed; they are renamed back if the surrounding transaction fails.
const stagedSuffix = ".deleting"

var propertyDependents = []dependentCheck{
	{table: "contracts", column: "property_id"},
	{table: "expenses", column: "property_id"},
}

func (r *propertyRepository) Create(ctx context.Context, property *Property) error {
	if property == nil {
		return fmt.Errorf("create property: property is nil")
	}
	if err := validateProperty(property); err != nil {
		return err
	}

	now := nowUTC()
	property.CreatedAt = now
	property.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO properties(listing_code, type, title, description, address, city, area, price,
			rooms, bathrooms, floor, total_floors, built_year, status, employee_id, source_url, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, property.ListingCode, property.Type, property.Title, nullableString(property.Description),
		nullableString(property.Address), nullableString(property.City), fmtDecimal(property.Area), fmtDecimal(property.Price),
		nullableInt(property.Rooms), nullableInt(property.Bathrooms), nullableInt(property.Floor), nullableInt(property.TotalFloors),
		nullableInt(property.BuiltYear), string(property.Status), nullableID(property.EmployeeID), nullableString(property.SourceURL),
		fmtTime(now), fmtTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("responsible employee does not exist")
		}
		return fmt.Errorf("create property: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create property: last insert id: %w", err)
	}
	property.ID = id
	return nil
}

func (r *propertyRepository) Get(ctx context.Context, id int64) (*Property, error) {
	row := r.db.QueryRowContext(ctx, propertySelect+` WHERE p.id = ?`, id)
	property, err := scanProperty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get property: %w", err)
	}
	return property, nil
}

// List returns the most recently updated properties first.
func (r *propertyRepository) List(ctx context.Context, filter PropertyFilter) ([]Property, error) {
	query := propertySelect + ` WHERE 1=1 `
	args := []any{}
	if filter.Status != "" {
		query += ` AND p.status = ? `
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND p.type = ? `
		args = append(args, filter.Type)
	}
	if filter.City != "" {
		query += ` AND p.city = ? COLLATE NOCASE `
		args = append(args, filter.City)
	}
	if filter.EmployeeID != nil {
		query += ` AND p.employee_id = ? `
		args = append(args, *filter.EmployeeID)
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		query += ` AND (p.title LIKE ? ESCAPE '\' OR p.listing_code LIKE ? ESCAPE '\' OR p.address LIKE ? ESCAPE '\') `
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY p.updated_at DESC, p.id DESC `

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []Property
	for rows.Next() {
		property, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("list properties: %w", err)
		}
		out = append(out, *property)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list properties: iterate: %w", err)
	}
	return out, nil
}

func (r *propertyRepository) Update(ctx context.Context, property *Property) error {
	if property == nil {
		return fmt.Errorf("update property: property is nil")
	}
	if property.ID == 0 {
		return validationErrorf("property id is required")
	}
	if err := validateProperty(property); err != nil {
		return err
	}

	property.UpdatedAt = nowUTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE properties
		SET listing_code = ?, type = ?, title = ?, description = ?, address = ?, city = ?, area = ?, price = ?,
			rooms = ?, bathrooms = ?, floor = ?, total_floors = ?, built_year = ?, status = ?, employee_id = ?,
			source_url = ?, updated_at = ?
		WHERE id = ?
	`, property.ListingCode, property.Type, property.Title, nullableString(property.Description),
		nullableString(property.Address), nullableString(property.City), fmtDecimal(property.Area), fmtDecimal(property.Price),
		nullableInt(property.Rooms), nullableInt(property.Bathrooms), nullableInt(property.Floor), nullableInt(property.TotalFloors),
		nullableInt(property.BuiltYear), string(property.Status), nullableID(property.EmployeeID), nullableString(property.SourceURL),
		fmtTime(property.UpdatedAt), property.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("responsible employee does not exist")
		}
		return fmt.Errorf("update property: %w", err)
	}
	return expectOneRow(result, "update property")
}

// Delete refuses while contracts or expenses reference the property.
// Otherwise the image rows, the image files and the property row go
// together: files are staged aside before commit and restored on failure.
func (r *propertyRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete property: begin tx: %w", err)
	}

	dependents, err := countDependents(ctx, tx, id, propertyDependents)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property: %w", err)
	}
	if len(dependents) > 0 {
		_ = tx.Rollback()
		return &ReferenceError{Entity: "property", ID: id, Dependents: dependents}
	}

	paths, err := imagePathsTx(ctx, tx, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM property_images WHERE property_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property: delete images: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property: %w", err)
	}
	if err := expectOneRow(result, "delete property"); err != nil {
		_ = tx.Rollback()
		return err
	}

	staged, err := stageFiles(paths)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property: %w", err)
	}
	if err := tx.Commit(); err != nil {
		r.unstage(staged)
		return fmt.Errorf("delete property: commit: %w", err)
	}
	r.purge(staged)
	return nil
}

// AddImages catalogs paths for a property in one transaction. When the
// property has no main image yet, the first path becomes main.
func (r *propertyRepository) AddImages(ctx context.Context, propertyID int64, paths []string) ([]PropertyImage, error) {
	if len(paths) == 0 {
		return nil, validationErrorf("at least one image path is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("add property images: begin tx: %w", err)
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE id = ?`, propertyID).Scan(&exists); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("add property images: check property: %w", err)
	}
	if exists == 0 {
		_ = tx.Rollback()
		return nil, ErrNotFound
	}

	var mains int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM property_images WHERE property_id = ? AND is_main = 1`, propertyID).Scan(&mains); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("add property images: check main image: %w", err)
	}

	now := nowUTC()
	images := make([]PropertyImage, 0, len(paths))
	for i, path := range paths {
		if strings.TrimSpace(path) == "" {
			_ = tx.Rollback()
			return nil, validationErrorf("image path %d is empty", i)
		}
		image := PropertyImage{
			PropertyID: propertyID,
			FilePath:   path,
			IsMain:     mains == 0 && i == 0,
			CreatedAt:  now,
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO property_images(property_id, file_path, is_main, created_at)
			VALUES(?, ?, ?, ?)
		`, propertyID, image.FilePath, boolToInt(image.IsMain), fmtTime(now))
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("add property images: insert: %w", err)
		}
		if image.ID, err = result.LastInsertId(); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("add property images: last insert id: %w", err)
		}
		images = append(images, image)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("add property images: commit: %w", err)
	}
	return images, nil
}

// ListImages returns the main image first, then the rest in insertion order.
func (r *propertyRepository) ListImages(ctx context.Context, propertyID int64) ([]PropertyImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, property_id, file_path, is_main, created_at
		FROM property_images
		WHERE property_id = ?
		ORDER BY is_main DESC, id ASC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list property images: %w", err)
	}
	defer rows.Close()

	var out []PropertyImage
	for rows.Next() {
		image, err := scanPropertyImage(rows)
		if err != nil {
			return nil, fmt.Errorf("list property images: %w", err)
		}
		out = append(out, *image)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list property images: iterate: %w", err)
	}
	return out, nil
}

func (r *propertyRepository) GetImage(ctx context.Context, imageID int64) (*PropertyImage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, property_id, file_path, is_main, created_at
		FROM property_images
		WHERE id = ?
	`, imageID)
	image, err := scanPropertyImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get property image: %w", err)
	}
	return image, nil
}

func (r *propertyRepository) SetMainImage(ctx context.Context, imageID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set main image: begin tx: %w", err)
	}

	var propertyID int64
	err = tx.QueryRowContext(ctx, `SELECT property_id FROM property_images WHERE id = ?`, imageID).Scan(&propertyID)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("set main image: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE property_images
		SET is_main = CASE WHEN id = ? THEN 1 ELSE 0 END
		WHERE property_id = ?
	`, imageID, propertyID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set main image: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set main image: commit: %w", err)
	}
	return nil
}

// DeleteImage removes the catalog row and its file. Deleting the main image
// promotes the oldest remaining one.
func (r *propertyRepository) DeleteImage(ctx context.Context, imageID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete property image: begin tx: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, property_id, file_path, is_main, created_at
		FROM property_images
		WHERE id = ?
	`, imageID)
	image, err := scanPropertyImage(row)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete property image: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM property_images WHERE id = ?`, imageID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property image: %w", err)
	}
	if image.IsMain {
		if _, err := tx.ExecContext(ctx, `
			UPDATE property_images SET is_main = 1
			WHERE id = (SELECT id FROM property_images WHERE property_id = ? ORDER BY id ASC LIMIT 1)
		`, image.PropertyID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete property image: promote main: %w", err)
		}
	}

	staged, err := stageFiles([]string{image.FilePath})
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete property image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		r.unstage(staged)
		return fmt.Errorf("delete property image: commit: %w", err)
	}
	r.purge(staged)
	return nil
}

func imagePathsTx(ctx context.Context, tx *sql.Tx, propertyID int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT file_path FROM property_images WHERE property_id = ? ORDER BY id ASC`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("query image paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan image path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image paths: %w", err)
	}
	return paths, nil
}

// stageFiles renames each existing file to its staged name. Missing files are
// skipped. On error every file staged so far is renamed back.
func stageFiles(paths []string) ([]string, error) {
	staged := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := os.Rename(path, path+stagedSuffix); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			for _, done := range staged {
				_ = os.Rename(done+stagedSuffix, done)
			}
			return nil, fmt.Errorf("stage image file %q: %w", path, err)
		}
		staged = append(staged, path)
	}
	return staged, nil
}

func (r *propertyRepository) unstage(staged []string) {
	for _, path := range staged {
		if err := os.Rename(path+stagedSuffix, path); err != nil {
			r.logger.Error("restore staged image file", "path", path, "error", err)
		}
	}
}

func (r *propertyRepository) purge(staged []string) {
	for _, path := range staged {
		if err := os.Remove(path + stagedSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("remove image file", "path", path, "error", err)
		}
	}
}

func validateProperty(property *Property) error {
	property.ListingCode = strings.TrimSpace(property.ListingCode)
	property.Title = strings.TrimSpace(property.Title)
	property.Type = strings.TrimSpace(property.Type)
	if property.ListingCode == "" {
		return validationErrorf("listing code is required")
	}
	if property.Title == "" {
		return validationErrorf("property title is required")
	}
	if property.Type == "" {
		return validationErrorf("property type is required")
	}
	if property.Status == "" {
		property.Status = PropertyStatusAvailable
	}
	if !property.Status.Valid() {
		return validationErrorf("unsupported property status %q", property.Status)
	}
	if property.Area.IsNegative() {
		return validationErrorf("area must not be negative")
	}
	if property.Price.IsNegative() {
		return validationErrorf("price must not be negative")
	}
	for name, value := range map[string]*int{
		"rooms":        property.Rooms,
		"bathrooms":    property.Bathrooms,
		"total floors": property.TotalFloors,
	} {
		if value != nil && *value < 0 {
			return validationErrorf("%s must not be negative", name)
		}
	}
	if property.Floor != nil && property.TotalFloors != nil && *property.Floor > *property.TotalFloors {
		return validationErrorf("floor %d exceeds total floors %d", *property.Floor, *property.TotalFloors)
	}
	return nil
}

func scanProperty(scanner rowScanner) (*Property, error) {
	var (
		property    Property
		description sql.NullString
		address     sql.NullString
		city        sql.NullString
		area        string
		price       string
		rooms       sql.NullInt64
		bathrooms   sql.NullInt64
		floor       sql.NullInt64
		totalFloors sql.NullInt64
		builtYear   sql.NullInt64
		status      string
		employeeID  sql.NullInt64
		sourceURL   sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(
		&property.ID, &property.ListingCode, &property.Type, &property.Title, &description, &address, &city, &area, &price,
		&rooms, &bathrooms, &floor, &totalFloors, &builtYear, &status, &employeeID,
		&property.EmployeeName, &sourceURL, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	property.Description = description.String
	property.Address = address.String
	property.City = city.String
	property.Rooms = intPtr(rooms)
	property.Bathrooms = intPtr(bathrooms)
	property.Floor = intPtr(floor)
	property.TotalFloors = intPtr(totalFloors)
	property.BuiltYear = intPtr(builtYear)
	property.Status = PropertyStatus(status)
	property.EmployeeID = idPtr(employeeID)
	property.SourceURL = sourceURL.String
	if property.Area, err = parseDecimal(area); err != nil {
		return nil, err
	}
	if property.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	if property.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if property.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &property, nil
}

func scanPropertyImage(scanner rowScanner) (*PropertyImage, error) {
	var (
		image     PropertyImage
		isMain    int
		createdAt string
	)
	if err := scanner.Scan(&image.ID, &image.PropertyID, &image.FilePath, &isMain, &createdAt); err != nil {
		return nil, err
	}
	image.IsMain = isMain != 0

	var err error
	if image.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &image, nil
}
