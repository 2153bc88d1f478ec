package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pavel-fokin/form-data/internal/client"
	"github.com/pavel-fokin/form-data/internal/form"
	"github.com/pavel-fokin/form-data/internal/fs"
	"github.com/pavel-fokin/form-data/internal/s3"
	"github.com/pavel-fokin/form-data/internal/sqlite"
	"github.com/pavel-fokin/form-data/internal/uploads"
)

// ErrConflictingFlags is returned when more than one action is requested
var ErrConflictingFlags = errors.New("flags -url, -s3, -o and -history are mutually exclusive")

// ErrNoJournal is returned by -history when FORMDATA_JOURNAL is not set
var ErrNoJournal = errors.New("upload journal is not configured")

type Config struct {
	Token    string        `env:"FORMDATA_TOKEN"`
	Timeout  time.Duration `env:"FORMDATA_TIMEOUT" envDefault:"30s"`
	Root     string        `env:"FORMDATA_ROOT"`
	Journal  string        `env:"FORMDATA_JOURNAL"`
	LogLevel slog.Level    `env:"FORMDATA_LOG_LEVEL" envDefault:"info"`
}

type flags struct {
	url              string
	out              string
	archive          string
	history          bool
	printContentType bool
}

// Run executes the command line in args. The encoded document or the
// command's JSON output goes to stdout, logs go to stderr.
func Run(ctx context.Context, cfg *Config, args []string, stdout, stderr io.Writer) error {
	fl, fields, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	// Logs go to stderr since stdout may carry the document
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	storage := fs.NewStorage(cfg.Root)

	var journal uploads.Journal
	if cfg.Journal != "" {
		repo, err := sqlite.NewRepository(cfg.Journal)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer repo.Close()
		journal = repo
	}

	if fl.history {
		if journal == nil {
			return ErrNoJournal
		}
		svc := uploads.NewService(nil, nil, journal, storage)
		list, err := svc.History()
		if err != nil {
			return err
		}
		return writeJSON(stdout, list)
	}

	f, err := form.Parse(fields)
	if err != nil {
		return err
	}

	switch {
	case fl.url != "":
		// Fail before the request starts rather than halfway through the body
		for _, path := range f.Paths() {
			if !storage.Exists(path) {
				return fmt.Errorf("form file %q: %w", path, os.ErrNotExist)
			}
		}
		svc := uploads.NewService(client.New(cfg.Token, cfg.Timeout, storage), nil, journal, storage)
		upload, err := svc.Submit(ctx, fl.url, f)
		if upload != nil {
			slog.Info("Form submitted", "upload_id", upload.ID, "status", upload.Status, "size", upload.Size)
		}
		if err != nil {
			return err
		}
		return writeJSON(stdout, upload)

	case fl.archive != "":
		bucket, key, err := s3.ParseURL(fl.archive)
		if err != nil {
			return err
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}
		sink := s3.New(awss3.NewFromConfig(awsCfg), bucket, "")

		svc := uploads.NewService(nil, sink, journal, storage)
		upload, err := svc.Archive(ctx, key, f)
		if err != nil {
			return err
		}
		slog.Info("Form archived", "upload_id", upload.ID, "target", upload.Target, "size", upload.Size)
		return writeJSON(stdout, upload)

	default:
		svc := uploads.NewService(nil, nil, journal, storage)
		return export(svc, fl, f, stdout, stderr)
	}
}

func parseFlags(args []string, stderr io.Writer) (flags, []string, error) {
	var fl flags
	fset := flag.NewFlagSet("formdata", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() {
		fmt.Fprintln(stderr, "usage: formdata [flags] name=value | name=<path | name=@path[;type=...][;filename=...] ...")
		fset.PrintDefaults()
	}
	fset.StringVar(&fl.url, "url", "", "submit the form to `URL` with a POST request")
	fset.StringVar(&fl.out, "o", "", "write the document to `FILE` instead of stdout")
	fset.StringVar(&fl.archive, "s3", "", "archive the document at `s3://bucket/key`")
	fset.BoolVar(&fl.history, "history", false, "list recorded uploads from the journal")
	fset.BoolVar(&fl.printContentType, "print-content-type", false, "print the Content-Type header value to stderr")
	if err := fset.Parse(args); err != nil {
		return flags{}, nil, err
	}

	actions := 0
	for _, set := range []bool{fl.url != "", fl.out != "", fl.archive != "", fl.history} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return flags{}, nil, ErrConflictingFlags
	}

	return fl, fset.Args(), nil
}

func export(svc *uploads.Service, fl flags, f form.Form, stdout, stderr io.Writer) error {
	if fl.out == "" || fl.out == "-" {
		return exportTo(svc, stdout, f, fl.printContentType, stderr)
	}

	file, err := os.Create(fl.out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := exportTo(svc, file, f, fl.printContentType, stderr); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

func exportTo(svc *uploads.Service, w io.Writer, f form.Form, printContentType bool, stderr io.Writer) error {
	contentType, err := svc.Export(w, f)
	if err != nil {
		return err
	}
	if printContentType {
		fmt.Fprintln(stderr, contentType)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
