// Package export writes a repository's catalog as a zstd-compressed
// JSON-lines archive.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/models"
	"github.com/marvil07/versioncontrol/internal/service"
	"github.com/marvil07/versioncontrol/internal/storage"
)

const batchSize = 200

// Record is one line of an export archive.
type Record struct {
	Operation models.Operation `json:"operation"`
	Items     []*models.Item   `json:"items"`
}

// Key returns the storage key of a repository's archive.
func Key(repoID int64) string {
	return fmt.Sprintf("repos/%d/catalog.jsonl.zst", repoID)
}

// Repository writes every operation of a repository, newest first, with
// its labels and member items. It returns the number of records written.
// The previous archive is kept when the export fails.
func Repository(ctx context.Context, cat *service.Catalog, repoID int64, dst storage.Backend) (n int, err error) {
	if _, err := cat.Repositories.Get(ctx, repoID); err != nil {
		return 0, err
	}
	w, err := dst.Create(ctx, Key(repoID))
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			w.Abort()
		}
	}()

	n, err = write(ctx, cat, repoID, w)
	if err != nil {
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("commit archive: %w", err)
	}
	slog.Info("catalog exported", "repo_id", repoID, "operations", n, "key", Key(repoID))
	return n, nil
}

func write(ctx context.Context, cat *service.Catalog, repoID int64, w io.Writer) (int, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("creating zstd encoder: %w", err)
	}
	buf := bufio.NewWriter(enc)
	lines := json.NewEncoder(buf)
	set := constraint.Set{constraint.KeyRepoIDs: []int64{repoID}}
	noSources := false

	n := 0
	for offset := 0; ; offset += batchSize {
		ops, err := cat.Operations.Query(ctx, set, constraint.Range(offset, batchSize))
		if err != nil {
			enc.Close()
			return n, err
		}
		for i := range ops {
			items, err := cat.Operations.Items(ctx, &ops[i], &noSources)
			if err != nil {
				enc.Close()
				return n, fmt.Errorf("items of operation %d: %w", ops[i].ID, err)
			}
			if err := lines.Encode(Record{Operation: ops[i], Items: items}); err != nil {
				enc.Close()
				return n, err
			}
			n++
		}
		if len(ops) < batchSize {
			break
		}
	}
	if err := buf.Flush(); err != nil {
		enc.Close()
		return n, err
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("closing encoder: %w", err)
	}
	return n, nil
}

// Read decodes an archive written by Repository.
func Read(r io.Reader) ([]Record, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	var records []Record
	lines := json.NewDecoder(dec)
	for {
		var rec Record
		if err := lines.Decode(&rec); err == io.EOF {
			return records, nil
		} else if err != nil {
			return records, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}
