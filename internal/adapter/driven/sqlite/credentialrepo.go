package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Secrets are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Upsert stores or replaces the credential for (tenant, vendor, environment).
// The stored row is always active after an upsert.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.ExternalCredential) error {
	encrypted, err := r.encrypt(cred.Secret)
	if err != nil {
		return err
	}

	environment := cred.Environment
	if environment == "" {
		environment = "production"
	}

	const query = `
		INSERT INTO external_credentials (
			tenant_id, vendor, environment, base_url, username, secret,
			company_id, employee_id, active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id, vendor, environment) DO UPDATE SET
			base_url = excluded.base_url,
			username = excluded.username,
			secret = excluded.secret,
			company_id = excluded.company_id,
			employee_id = excluded.employee_id,
			active = 1,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.TenantID, string(cred.Vendor), environment, cred.BaseURL, cred.Username,
		encrypted, cred.CompanyID, cred.EmployeeID,
	)
	if err != nil {
		return fmt.Errorf("upsert credential tenant %d %s: %w", cred.TenantID, cred.Vendor, err)
	}
	return nil
}

// Get returns the active credential for the tenant and vendor in the environment.
// Returns model.ErrNotFound if none is active.
func (r *CredentialRepo) Get(ctx context.Context, tenantID int64, vendor model.Vendor, environment string) (*model.ExternalCredential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT id, tenant_id, vendor, environment, base_url, username, secret,
		       company_id, employee_id, active, updated_at
		FROM external_credentials
		WHERE tenant_id = ? AND vendor = ? AND environment = ? AND active = 1
	`
	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, tenantID, string(vendor), environment))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential tenant %d %s/%s: %w", tenantID, vendor, environment, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential tenant %d %s: %w", tenantID, vendor, err)
	}
	return cred, nil
}

// ListActive returns all active credentials of the environment with decrypted secrets.
func (r *CredentialRepo) ListActive(ctx context.Context, environment string) ([]model.ExternalCredential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT id, tenant_id, vendor, environment, base_url, username, secret,
		       company_id, employee_id, active, updated_at
		FROM external_credentials
		WHERE environment = ? AND active = 1
		ORDER BY tenant_id, vendor
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, environment)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.ExternalCredential
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Deactivate marks the credential inactive.
func (r *CredentialRepo) Deactivate(ctx context.Context, tenantID int64, vendor model.Vendor, environment string) error {
	const query = `
		UPDATE external_credentials SET active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND vendor = ? AND environment = ?
	`
	_, err := r.db.Writer.ExecContext(ctx, query, tenantID, string(vendor), environment)
	if err != nil {
		return fmt.Errorf("deactivate credential tenant %d %s: %w", tenantID, vendor, err)
	}
	return nil
}

func (r *CredentialRepo) scanCredential(s scanner) (*model.ExternalCredential, error) {
	var cred model.ExternalCredential
	var vendor, encrypted, updatedAt string
	var active int

	err := s.Scan(
		&cred.ID, &cred.TenantID, &vendor, &cred.Environment, &cred.BaseURL, &cred.Username,
		&encrypted, &cred.CompanyID, &cred.EmployeeID, &active, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cred.Vendor = model.Vendor(vendor)
	cred.Active = active != 0

	cred.Secret, err = r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret for tenant %d %s: %w", cred.TenantID, vendor, err)
	}

	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
