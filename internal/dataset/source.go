// Package dataset loads company records from the directory's data store:
// a checkout of data/companies, an S3 bucket or a Postgres table.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/safeio"
)

// Source lists every company record it holds.
type Source interface {
	Name() string
	List(ctx context.Context) ([]entity.Company, error)
}

// Writer is a Source that can also store records.
type Writer interface {
	Source
	Put(ctx context.Context, c entity.Company) error
}

var ErrNotFound = errors.New("company not found")

// skipFile reports data files that are not company records.
func skipFile(name string) bool {
	base := strings.TrimSuffix(filepath.Base(name), ".json")
	return strings.HasPrefix(base, "_") || base == "schema" || !strings.HasSuffix(name, ".json")
}

// decodeRecord parses one data file and checks that its id matches the file name.
func decodeRecord(name string, data []byte) (entity.Company, error) {
	c, err := entity.DecodeCompany(data)
	if err != nil {
		return entity.Company{}, fmt.Errorf("%s: %w", name, err)
	}
	want := strings.TrimSuffix(filepath.Base(name), ".json")
	if c.ID == "" {
		c.ID = want
	}
	if c.ID != want {
		return entity.Company{}, fmt.Errorf("%s: id %q does not match file name", name, c.ID)
	}
	return c, nil
}

// FileSource reads data/companies/*.json from a directory.
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: strings.TrimSpace(dir)}
}

func (s *FileSource) Name() string { return "file:" + s.Dir }

func (s *FileSource) List(ctx context.Context) ([]entity.Company, error) {
	root, err := safeio.Open(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("open dataset dir: %w", err)
	}
	entries, err := root.ReadDir()
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || skipFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]entity.Company, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := root.ReadFile(name)
		if err != nil {
			return nil, err
		}
		c, err := decodeRecord(name, data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Put writes c as {id}.json in canonical form.
func (s *FileSource) Put(ctx context.Context, c entity.Company) error {
	data, err := entity.CanonicalJSON(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	root, err := safeio.Open(s.Dir)
	if err != nil {
		return err
	}
	return root.WriteFile(c.ID+".json", data, 0o644)
}
