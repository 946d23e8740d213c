package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type companyRepository struct {
	db *sql.DB
}

// Get returns ErrNotFound until the company record has been saved once.
func (r *companyRepository) Get(ctx context.Context) (*CompanyInfo, error) {
	var (
		info      CompanyInfo
		address   sql.NullString
		phone     sql.NullString
		email     sql.NullString
		website   sql.NullString
		taxNumber sql.NullString
		logoPath  sql.NullString
		createdAt string
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, address, phone, email, website, tax_number, logo_path, created_at, updated_at
		FROM company_info
		WHERE id = 1
	`).Scan(&info.Name, &address, &phone, &email, &website, &taxNumber, &logoPath, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company info: %w", err)
	}

	info.Address = address.String
	info.Phone = phone.String
	info.Email = email.String
	info.Website = website.String
	info.TaxNumber = taxNumber.String
	info.LogoPath = logoPath.String
	if info.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if info.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &info, nil
}

// Save upserts the singleton row. The first save fixes created_at.
func (r *companyRepository) Save(ctx context.Context, info *CompanyInfo) error {
	if info == nil {
		return fmt.Errorf("save company info: info is nil")
	}
	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		return validationErrorf("company name is required")
	}

	now := nowUTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO company_info(id, name, address, phone, email, website, tax_number, logo_path, created_at, updated_at)
		VALUES(1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			phone = excluded.phone,
			email = excluded.email,
			website = excluded.website,
			tax_number = excluded.tax_number,
			logo_path = excluded.logo_path,
			updated_at = excluded.updated_at
	`, info.Name, nullableString(info.Address), nullableString(info.Phone), nullableString(info.Email),
		nullableString(info.Website), nullableString(info.TaxNumber), nullableString(info.LogoPath),
		fmtTime(now), fmtTime(now)); err != nil {
		return fmt.Errorf("save company info: %w", err)
	}

	saved, err := r.Get(ctx)
	if err != nil {
		return fmt.Errorf("save company info: reload: %w", err)
	}
	*info = *saved
	return nil
}
