// Package export writes a completed turn to disk and, when configured, to an
// object store: the executed statement, a Markdown report and optionally the
// result set as Parquet.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/storage"
)

type Record struct {
	Question    string
	SQL         string
	Columns     []string
	Rows        [][]any
	Explanation string
	At          time.Time
}

type Artifact struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

type Result struct {
	Stem      string     `json:"stem"`
	Artifacts []Artifact `json:"artifacts"`
}

type locator interface {
	Location(key string) string
}

type Exporter struct {
	dir        string
	slugMaxLen int
	parquet    bool
	store      storage.ObjectStore
	now        func() time.Time
}

// New builds an exporter. store may be nil, in which case artifacts are only
// written to cfg.Dir. An empty cfg.Dir with a store uploads only.
func New(cfg config.ExportConfig, store storage.ObjectStore) *Exporter {
	return &Exporter{
		dir:        strings.TrimSpace(cfg.Dir),
		slugMaxLen: cfg.SlugMaxLen,
		parquet:    cfg.Parquet,
		store:      store,
		now:        time.Now,
	}
}

type pendingArtifact struct {
	kind        string
	ext         string
	contentType string
	data        []byte
}

func (e *Exporter) Export(ctx context.Context, rec Record) (Result, error) {
	at := rec.At
	if at.IsZero() {
		at = e.now()
	}
	stem, err := storage.ExportStem(at, Slugify(rec.Question, e.slugMaxLen))
	if err != nil {
		return Result{}, err
	}

	sqlText := rec.SQL
	if !strings.HasSuffix(sqlText, "\n") {
		sqlText += "\n"
	}
	pending := []pendingArtifact{
		{kind: "sql", ext: "sql", contentType: "application/sql", data: []byte(sqlText)},
		{kind: "report", ext: "md", contentType: "text/markdown; charset=utf-8", data: []byte(RenderReport(Report{
			Question:    rec.Question,
			SQL:         rec.SQL,
			Columns:     rec.Columns,
			Rows:        rec.Rows,
			Explanation: rec.Explanation,
		}))},
	}
	if e.parquet {
		encoded, err := EncodeResultToParquet(rec.Columns, rec.Rows)
		if err != nil {
			return Result{}, fmt.Errorf("encode parquet export: %w", err)
		}
		pending = append(pending, pendingArtifact{kind: "parquet", ext: "parquet", contentType: "application/vnd.apache.parquet", data: encoded.Data})
	}

	result := Result{Stem: stem}
	if e.dir != "" {
		local, err := e.writeLocal(stem, pending)
		if err != nil {
			return Result{}, err
		}
		result.Artifacts = append(result.Artifacts, local...)
	}
	if e.store != nil {
		remote, err := e.upload(ctx, at, stem, pending)
		if err != nil {
			return result, err
		}
		result.Artifacts = append(result.Artifacts, remote...)
	}
	if e.dir == "" && e.store == nil {
		return Result{}, fmt.Errorf("export has neither a directory nor an object store")
	}
	return result, nil
}

func (e *Exporter) writeLocal(stem string, pending []pendingArtifact) ([]Artifact, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %q: %w", e.dir, err)
	}
	artifacts := make([]Artifact, 0, len(pending))
	for _, p := range pending {
		path := filepath.Join(e.dir, stem+"."+p.ext)
		if err := os.WriteFile(path, p.data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s export: %w", p.kind, err)
		}
		artifacts = append(artifacts, Artifact{Kind: p.kind, Location: path, Size: int64(len(p.data))})
	}
	return artifacts, nil
}

// upload puts every artifact concurrently. If any upload fails the ones that
// did land are deleted so an export is either complete or absent.
func (e *Exporter) upload(ctx context.Context, at time.Time, stem string, pending []pendingArtifact) ([]Artifact, error) {
	keys := make([]string, len(pending))
	for i, p := range pending {
		key, err := storage.BuildExportKey(at, stem, p.ext)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	artifacts := make([]Artifact, len(pending))
	uploaded := make([]bool, len(pending))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, p := range pending {
		group.Go(func() error {
			info, err := e.store.Put(groupCtx, keys[i], bytes.NewReader(p.data), int64(len(p.data)), storage.PutOptions{ContentType: p.contentType})
			if err != nil {
				return fmt.Errorf("upload %s export: %w", p.kind, err)
			}
			uploaded[i] = true
			location := keys[i]
			if l, ok := e.store.(locator); ok {
				location = l.Location(keys[i])
			}
			size := info.Size
			if size == 0 {
				size = int64(len(p.data))
			}
			artifacts[i] = Artifact{Kind: p.kind, Location: location, Size: size}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		for i, ok := range uploaded {
			if ok {
				_ = e.store.Delete(context.WithoutCancel(ctx), keys[i])
			}
		}
		return nil, err
	}
	return artifacts, nil
}
