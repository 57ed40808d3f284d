package library

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewAsset describes the inputs for creating an asset from raw bytes.
type NewAsset struct {
	Name      string
	MIMEType  string
	ProjectID string
	Source    Source
	Data      []byte
}

// CreateAsset writes the payload under the media directory and records the
// asset. The MIME type is sniffed from the payload when not supplied.
func (s *Store) CreateAsset(ctx context.Context, input NewAsset) (*Asset, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("create asset: payload is empty")
	}

	mimeType := strings.TrimSpace(input.MIMEType)
	if mimeType == "" {
		mimeType = http.DetectContentType(input.Data)
	}
	source := input.Source
	if source == "" {
		source = SourceUpload
	}

	id := uuid.NewString()
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = id
	}

	storagePath := filepath.Join(s.mediaDir, id+extensionFor(name, mimeType))
	if err := os.WriteFile(storagePath, input.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write asset payload: %w", err)
	}

	asset := &Asset{
		ID:          id,
		Name:        name,
		StoragePath: storagePath,
		MIMEType:    mimeType,
		SizeBytes:   int64(len(input.Data)),
		Kind:        KindFromMIME(mimeType),
		ProjectID:   strings.TrimSpace(input.ProjectID),
		Source:      source,
	}
	if err := s.insertAsset(ctx, asset); err != nil {
		_ = os.Remove(storagePath)
		return nil, err
	}
	return asset, nil
}

// RegisterAsset moves an existing file into the media directory and records
// it as an uploaded asset. Used by the inbox watcher.
func (s *Store) RegisterAsset(ctx context.Context, sourcePath, projectID string) (*Asset, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat asset source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("register asset: %q is a directory", sourcePath)
	}

	name := filepath.Base(sourcePath)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = sniffFile(sourcePath)
	}

	id := uuid.NewString()
	storagePath := filepath.Join(s.mediaDir, id+filepath.Ext(name))
	if err := moveFile(sourcePath, storagePath); err != nil {
		return nil, fmt.Errorf("move asset into media dir: %w", err)
	}

	asset := &Asset{
		ID:          id,
		Name:        name,
		StoragePath: storagePath,
		MIMEType:    mimeType,
		SizeBytes:   info.Size(),
		Kind:        KindFromMIME(mimeType),
		ProjectID:   strings.TrimSpace(projectID),
		Source:      SourceUpload,
	}
	if err := s.insertAsset(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *Store) insertAsset(ctx context.Context, asset *Asset) error {
	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (
            id, name, storage_path, mime_type, size_bytes, kind,
            project_id, source, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.Name,
		asset.StoragePath,
		nullableString(asset.MIMEType),
		asset.SizeBytes,
		asset.Kind,
		nullableString(asset.ProjectID),
		asset.Source,
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetAsset fetches an asset by identifier. Returns nil when not found.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// ListAssets returns assets, optionally filtered by project, ordered by
// creation time.
func (s *Store) ListAssets(ctx context.Context, projectID string) ([]*Asset, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(projectID) == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE project_id = ? ORDER BY created_at`, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

const assetColumns = "id, name, storage_path, mime_type, size_bytes, kind, project_id, source, created_at, updated_at"

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id         string
		name       string
		storage    string
		mimeType   sql.NullString
		sizeBytes  int64
		kindStr    string
		projectID  sql.NullString
		sourceStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&id,
		&name,
		&storage,
		&mimeType,
		&sizeBytes,
		&kindStr,
		&projectID,
		&sourceStr,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	asset := &Asset{
		ID:          id,
		Name:        name,
		StoragePath: storage,
		MIMEType:    mimeType.String,
		SizeBytes:   sizeBytes,
		Kind:        Kind(kindStr),
		ProjectID:   projectID.String,
		Source:      Source(sourceStr),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		asset.UpdatedAt = updated
	}
	return asset, nil
}

func extensionFor(name, mimeType string) string {
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}
	switch strings.ToLower(strings.SplitN(mimeType, ";", 2)[0]) {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func sniffFile(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	head := make([]byte, 512)
	n, err := file.Read(head)
	if n == 0 && err != nil {
		return ""
	}
	return http.DetectContentType(head[:n])
}

func moveFile(source, dest string) error {
	if err := os.Rename(source, dest); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy + remove.
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(source)
}
