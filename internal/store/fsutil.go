package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// writeJSONAtomic replaces path with the encoded value via a scratch
// file and a same-directory rename. Readers observe either the previous
// content or the new content, never a partial write. Used only for
// in-place task rewrites performed under a held lease.
func writeJSONAtomic(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), ".tmp."+uuid.NewString())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write artifact scratch: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish artifact: %w", err)
	}

	return nil
}

// publishJSONExclusive publishes the encoded value at path only if
// nothing is there yet (write-temp-then-hard-link). fs.ErrExist from the
// link is surfaced so callers can treat duplicates as idempotent no-ops.
func publishJSONExclusive(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), ".tmp."+uuid.NewString())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write artifact scratch: %w", err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("publish artifact: %w", fs.ErrExist)
		}
		return fmt.Errorf("publish artifact: %w", err)
	}

	return nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTaskCorrupt, filepath.Base(path), err)
	}

	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ioRetry retries terminal artifact publication against transient
// filesystem errors (shared or network mounts). Permanent outcomes like
// fs.ErrExist are passed through untouched.
func ioRetry(ctx context.Context, logger *slog.Logger, opName string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	wrapped := func() error {
		err := op()
		if errors.Is(err, fs.ErrExist) || errors.Is(err, fs.ErrNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("retrying filesystem operation", "op", opName, "in", next, "error", err)
	}

	return backoff.RetryNotify(wrapped, backoff.WithContext(b, ctx), notify)
}
