package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/repository"
	"github.com/xenking/outlet-commerce/internal/seed"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

type options struct {
	dataDir     string
	databaseURL string
	expected    uint
	workers     int
	dryRun      bool
}

type upserter interface {
	Upsert(ctx context.Context, c coupon.Coupon) error
}

type stats struct {
	read       int
	written    int
	duplicates int
	invalid    int
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing *.jsonl.gz coupon dumps")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.expected, "expected", 1_000_000, "expected number of coupons, sizes the duplicate filter")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent database writers")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "validate dumps without writing")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list dumps")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", opts.dataDir)
	}
	sort.Strings(files)

	var dst upserter = discard{}
	if !opts.dryRun {
		slog.Info("connecting to database")
		pool, err := repository.NewPool(ctx, opts.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := repository.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		dst = repository.NewCouponRepository(pool)
	}

	st, err := importFiles(ctx, files, opts, dst)
	if err != nil {
		return err
	}
	slog.Info("import summary",
		slog.Int("read", st.read),
		slog.Int("written", st.written),
		slog.Int("duplicates", st.duplicates),
		slog.Int("invalid", st.invalid),
		slog.Bool("dry_run", opts.dryRun),
	)
	return nil
}

type discard struct{}

func (discard) Upsert(context.Context, coupon.Coupon) error { return nil }

// importFiles runs two passes. Pass 1 screens every code through a bloom
// filter and records the codes it may have seen before. Pass 2 writes
// coupons in file order; a code flagged in pass 1 is written only on its
// first occurrence.
func importFiles(ctx context.Context, files []string, opts options, dst upserter) (stats, error) {
	slog.Info("pass 1: screening duplicate codes", slog.Int("files", len(files)))

	candidates, err := screenDuplicates(ctx, files, opts.expected)
	if err != nil {
		return stats{}, errors.Wrap(err, "screen duplicates")
	}
	slog.Info("pass 1 complete", slog.Int("candidates", len(candidates)))

	slog.Info("pass 2: writing coupons")

	var (
		st      stats
		emitted = make(map[string]struct{}, len(candidates))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.workers, 1))

	for _, path := range files {
		err := streamFile(gctx, path, func(line []byte) error {
			st.read++
			c, err := parseCoupon(line)
			if err != nil {
				st.invalid++
				slog.Warn("skipping invalid coupon", slog.String("file", path), slog.String("error", err.Error()))
				return nil
			}

			key := codeKey(c.Code)
			if _, maybe := candidates[key]; maybe {
				if _, done := emitted[key]; done {
					st.duplicates++
					return nil
				}
				emitted[key] = struct{}{}
			}

			st.written++
			if st.written%progressEvery == 0 {
				slog.Info("write progress", slog.Int("written", st.written))
			}
			g.Go(func() error {
				if err := dst.Upsert(gctx, c); err != nil {
					return errors.Wrapf(err, "upsert coupon %s", c.Code)
				}
				return nil
			})
			return nil
		})
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return st, werr
			}
			return st, errors.Wrapf(err, "import %s", path)
		}
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	return st, nil
}

// screenDuplicates returns the codes whose bloom test hit. Every true
// duplicate is included; false positives only cost an exact lookup.
func screenDuplicates(ctx context.Context, files []string, expected uint) (map[string]struct{}, error) {
	var (
		mu         sync.Mutex
		filter     = bloom.NewWithEstimates(max(expected, 1), bloomFPR)
		candidates = make(map[string]struct{})
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var count int
			err := streamFile(ctx, path, func(line []byte) error {
				code, ok := peekCode(line)
				if !ok {
					return nil
				}
				count++

				mu.Lock()
				defer mu.Unlock()
				if filter.TestAndAddString(code) {
					candidates[code] = struct{}{}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "screen file %d", i+1)
			}
			slog.Info("screened file", slog.String("file", path), slog.Int("codes", count))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// streamFile opens a gzip-compressed JSON-lines file and calls fn for each
// non-empty line.
func streamFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return scanLines(ctx, gz, fn)
}

func scanLines(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

func parseCoupon(line []byte) (coupon.Coupon, error) {
	var rec seed.Coupon
	if err := json.Unmarshal(line, &rec); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "decode")
	}
	return rec.Domain()
}

// peekCode extracts the normalized code without full validation.
func peekCode(line []byte) (string, bool) {
	var rec struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(line, &rec); err != nil || strings.TrimSpace(rec.Code) == "" {
		return "", false
	}
	return codeKey(rec.Code), true
}

// codeKey matches the case-insensitive code lookup of the coupon store.
func codeKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
