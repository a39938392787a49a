package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"text2sparql/internal/sparql"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/knakk/rdf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const parseWorkers = 4

// GuessFormat maps a file extension to an RDF serialization. Unknown
// extensions are treated as turtle.
func GuessFormat(path string) rdf.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nt":
		return rdf.NTriples
	case ".rdf", ".xml":
		return rdf.RDFXML
	default:
		return rdf.Turtle
	}
}

func recognized(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttl", ".nt", ".rdf", ".xml":
		return true
	}
	return false
}

// LocalLoader assembles in-memory graphs from directories of RDF files and
// answers queries against them. Loaded graphs are immutable and shared
// between requests through an LRU keyed by directory.
type LocalLoader struct {
	log   *zap.Logger
	cache *lru.Cache[string, *sparql.Store]
	group singleflight.Group
}

func NewLocalLoader(cacheSize int, log *zap.Logger) (*LocalLoader, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, *sparql.Store](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("graph cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalLoader{log: log, cache: cache}, nil
}

// Execute loads dir (or reuses the cached graph) and runs query against it.
// A directory with no usable triples yields an empty success.
func (l *LocalLoader) Execute(ctx context.Context, query, dir string) QueryResult {
	store, err := l.Load(ctx, dir)
	if err != nil {
		return Failure(err.Error())
	}
	if store.Len() == 0 {
		return Success(nil)
	}
	res, err := store.Query(query)
	if err != nil {
		return Failure(err.Error())
	}
	// unbound cells are dropped, so a result made only of unbound OPTIONAL
	// cells classifies as empty
	return Success(res.Values())
}

// Load returns the graph for dir. Concurrent loads of the same directory are
// collapsed into one. Only a cancelled context produces an error; unreadable
// or malformed files are skipped.
func (l *LocalLoader) Load(ctx context.Context, dir string) (*sparql.Store, error) {
	key := filepath.Clean(dir)
	if s, ok := l.cache.Get(key); ok {
		return s, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		if s, ok := l.cache.Get(key); ok {
			return s, nil
		}
		s, err := l.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if s.Len() > 0 {
			l.cache.Add(key, s)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sparql.Store), nil
}

// Invalidate drops a cached graph so the next query reloads it from disk.
func (l *LocalLoader) Invalidate(dir string) {
	l.cache.Remove(filepath.Clean(dir))
}

func (l *LocalLoader) load(ctx context.Context, dir string) (*sparql.Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		l.log.Warn("local graph directory unavailable", zap.String("dir", dir), zap.Error(err))
		return sparql.NewStore(), nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !recognized(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		l.log.Warn("no rdf files found", zap.String("dir", dir))
		return sparql.NewStore(), nil
	}

	parsed := make([][]sparql.Triple, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseWorkers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			triples, err := parseFile(path)
			if err != nil {
				l.log.Warn("skipping rdf file", zap.String("file", path), zap.Error(err))
				return nil
			}
			parsed[i] = triples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	store := sparql.NewStore()
	for _, triples := range parsed {
		for _, t := range triples {
			store.Add(t)
		}
	}
	l.log.Info("local graph loaded",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("triples", store.Len()))
	return store, nil
}

// parseFile decodes one file completely; a file that fails partway contributes
// nothing.
func parseFile(path string) ([]sparql.Triple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := rdf.NewTripleDecoder(f, GuessFormat(path))
	var out []sparql.Triple
	for {
		t, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sparql.Triple{
			S: convertTerm(t.Subj),
			P: convertTerm(t.Pred),
			O: convertTerm(t.Obj),
		})
	}
}

func convertTerm(t rdf.Term) sparql.Term {
	switch v := t.(type) {
	case rdf.IRI:
		return sparql.NewIRI(v.String())
	case rdf.Blank:
		return sparql.NewBlank(strings.TrimPrefix(v.String(), "_:"))
	case rdf.Literal:
		return sparql.NewLiteral(v.String(), v.Lang(), v.DataType.String())
	}
	return sparql.NewLiteral(t.String(), "", "")
}
