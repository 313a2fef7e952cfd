package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/polkagate/poolkit/pkg/history"
)

// BundleVersion is the format version written by Export.
const BundleVersion = 1

var (
	ErrDigestMismatch = errors.New("backup: content does not match digest")
	ErrVersion        = errors.New("backup: unsupported bundle version")
)

// Bundle is the exported history of one account on one chain.
type Bundle struct {
	Version    int              `json:"version"`
	Chain      string           `json:"chain"`
	Account    string           `json:"account"`
	ExportedAt time.Time        `json:"exportedAt"`
	Records    []history.Record `json:"records"`
}

type Exporter struct {
	history history.Store
	store   Store
	now     func() time.Time
	logger  *slog.Logger
}

func NewExporter(h history.Store, store Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default().With("component", "backup")
	}
	return &Exporter{history: h, store: store, now: time.Now, logger: logger}
}

// WithClock overrides the export timestamp source.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Export writes the account's history as canonical JSON and returns its
// digest.
func (e *Exporter) Export(ctx context.Context, chainName, account string) (string, error) {
	records, err := e.history.List(ctx, chainName, account)
	if err != nil {
		return "", fmt.Errorf("backup: list history: %w", err)
	}
	if records == nil {
		records = []history.Record{}
	}
	raw, err := json.Marshal(Bundle{
		Version:    BundleVersion,
		Chain:      chainName,
		Account:    account,
		ExportedAt: e.now().UTC(),
		Records:    records,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("backup: canonicalize: %w", err)
	}
	digest, err := e.store.Put(ctx, canonical)
	if err != nil {
		return "", err
	}
	e.logger.InfoContext(ctx, "history exported",
		"chain", chainName, "account", account, "records", len(records), "digest", digest)
	return digest, nil
}

// Import loads the bundle at digest, verifies it and appends the records
// that are not in the history yet. Records are matched by tx hash. It
// returns the bundle and the number of records appended.
func (e *Exporter) Import(ctx context.Context, digest string) (*Bundle, int, error) {
	data, err := e.store.Get(ctx, digest)
	if err != nil {
		return nil, 0, err
	}
	if Digest(data) != digest {
		return nil, 0, fmt.Errorf("%w: %s", ErrDigestMismatch, digest)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, 0, fmt.Errorf("backup: decode bundle: %w", err)
	}
	if b.Version != BundleVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrVersion, b.Version)
	}

	existing, err := e.history.List(ctx, b.Chain, b.Account)
	if err != nil {
		return nil, 0, fmt.Errorf("backup: list history: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.TxHash] = true
	}
	var missing []history.Record
	for _, r := range b.Records {
		// records without a hash cannot be matched, so they are always appended
		if r.TxHash == "" {
			missing = append(missing, r)
			continue
		}
		if !seen[r.TxHash] {
			missing = append(missing, r)
			seen[r.TxHash] = true
		}
	}
	if len(missing) > 0 {
		if err := e.history.Append(ctx, b.Chain, b.Account, missing...); err != nil {
			return nil, 0, fmt.Errorf("backup: append history: %w", err)
		}
	}
	e.logger.InfoContext(ctx, "history imported",
		"chain", b.Chain, "account", b.Account, "appended", len(missing), "digest", digest)
	return &b, len(missing), nil
}
