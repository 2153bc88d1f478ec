package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/pavel-fokin/form-data/internal/form"
	"github.com/pavel-fokin/form-data/internal/formdata"
)

// ErrNoArchiver is returned by Archive when no archive destination is configured
var ErrNoArchiver = errors.New("no archive destination configured")

// Service provides application-level form operations
type Service struct {
	submitter Submitter
	archiver  Archiver
	journal   Journal
	opener    form.Opener
	now       func() time.Time
}

// NewService creates a new upload service. The archiver and journal are
// optional.
func NewService(submitter Submitter, archiver Archiver, journal Journal, opener form.Opener) *Service {
	return &Service{
		submitter: submitter,
		archiver:  archiver,
		journal:   journal,
		opener:    opener,
		now:       time.Now,
	}
}

// Submit posts the form to url and records the attempt. A submission
// answered with an error status is recorded and its error returned.
func (s *Service) Submit(ctx context.Context, url string, f form.Form) (*Upload, error) {
	resp, err := s.submitter.Submit(ctx, url, f)
	if resp == nil {
		return nil, fmt.Errorf("failed to submit form: %w", err)
	}

	upload := s.newUpload(url, resp.ContentType, len(f), resp.Size)
	upload.Status = resp.Status
	if jerr := s.record(upload); jerr != nil {
		return nil, jerr
	}
	if err != nil {
		return upload, fmt.Errorf("failed to submit form: %w", err)
	}
	return upload, nil
}

// Export writes the encoded form to w and returns the document's content type.
func (s *Service) Export(w io.Writer, f form.Form) (string, error) {
	doc, err := formdata.New(w, formdata.WithOpener(s.opener))
	if err != nil {
		return "", err
	}
	if err := s.encode(doc, f); err != nil {
		return "", err
	}
	return doc.ContentType(), nil
}

// Archive encodes the form and stores the document under key.
func (s *Service) Archive(ctx context.Context, key string, f form.Form) (*Upload, error) {
	if s.archiver == nil {
		return nil, ErrNoArchiver
	}

	doc, err := formdata.New(&bytes.Buffer{}, formdata.WithOpener(s.opener))
	if err != nil {
		return nil, err
	}
	if err := f.Encode(doc, s.opener); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	buf, err := doc.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	target, err := s.archiver.Archive(ctx, key, doc.ContentType(), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to archive form: %w", err)
	}

	upload := s.newUpload(target, doc.ContentType(), len(f), int64(buf.Len()))
	if err := s.record(upload); err != nil {
		return nil, err
	}
	return upload, nil
}

// History lists the recorded uploads, newest first.
func (s *Service) History() ([]*Upload, error) {
	if s.journal == nil {
		return nil, nil
	}
	uploads, err := s.journal.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// Get returns the recorded upload with the given ID.
func (s *Service) Get(id string) (*Upload, error) {
	if s.journal == nil {
		return nil, ErrNotFound
	}
	upload, err := s.journal.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to find upload: %w", err)
	}
	return upload, nil
}

func (s *Service) encode(doc *formdata.FormData[io.Writer], f form.Form) error {
	if err := f.Encode(doc, s.opener); err != nil {
		return fmt.Errorf("failed to encode form: %w", err)
	}
	if _, err := doc.Finish(); err != nil {
		return fmt.Errorf("failed to encode form: %w", err)
	}
	return nil
}

func (s *Service) newUpload(target, contentType string, fields int, size int64) *Upload {
	return &Upload{
		ID:          uuid.NewString(),
		Target:      target,
		ContentType: contentType,
		Fields:      fields,
		Size:        size,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *Service) record(upload *Upload) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.Create(upload); err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}
