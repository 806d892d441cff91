package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dorvan/medtide/internal/config"
)

// ErrDisabled is returned when no S3 destination is configured.
var ErrDisabled = errors.New("backup not configured")

const objectPrefix = "medtide/"

// s3Client is the slice of the S3 API the uploader needs; narrowed for
// testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Uploader snapshots the account database, encrypts it, and ships it
// to S3-compatible storage. One-shot: the CLI drives it.
type Uploader struct {
	cfg    config.BackupConfig
	db     *sql.DB
	client s3Client
	logger *slog.Logger
}

func NewUploader(cfg config.BackupConfig, db *sql.DB, logger *slog.Logger) *Uploader {
	u := &Uploader{cfg: cfg, db: db, logger: logger}
	if u.Enabled() {
		u.client = newS3Client(cfg)
	}
	return u
}

// Enabled reports whether a complete S3 destination is configured.
func (u *Uploader) Enabled() bool {
	return u.cfg.Bucket != "" && u.cfg.AccessKey != "" && u.cfg.SecretKey != ""
}

func newS3Client(cfg config.BackupConfig) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Backup uploads an encrypted snapshot and returns the object key.
func (u *Uploader) Backup(ctx context.Context, passphrase string) (string, error) {
	if !u.Enabled() {
		return "", ErrDisabled
	}

	snapshot, err := u.snapshot()
	if err != nil {
		return "", err
	}

	blob, err := Encrypt(snapshot, passphrase)
	if err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := fmt.Sprintf("%saccounts-%s.db.enc", objectPrefix, time.Now().UTC().Format("20060102-150405"))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}

	u.logger.Info("backup uploaded", "key", key, "bytes", len(blob))
	return key, nil
}

// Restore downloads and decrypts the named backup object, writing the
// database file to dstPath. The caller restarts against the restored
// file; the live database is never overwritten in place.
func (u *Uploader) Restore(ctx context.Context, key, passphrase, dstPath string) error {
	if !u.Enabled() {
		return ErrDisabled
	}

	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download backup: %w", err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	plaintext, err := Decrypt(blob, passphrase)
	if err != nil {
		return err
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored database: %w", err)
	}

	u.logger.Info("backup restored", "key", key, "path", dstPath)
	return nil
}

// snapshot produces a consistent copy of the database via VACUUM INTO,
// safe to take while the daemon holds the main file open.
func (u *Uploader) snapshot() ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "medtide-backup-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "snapshot.db")
	if _, err := u.db.Exec(`VACUUM INTO ?`, tmpPath); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}
