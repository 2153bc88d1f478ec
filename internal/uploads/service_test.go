package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/form-data/internal/client"
	"github.com/pavel-fokin/form-data/internal/form"
)

type fakeSubmitter struct {
	resp *client.Response
	err  error
	url  string
}

func (s *fakeSubmitter) Submit(_ context.Context, url string, _ form.Form) (*client.Response, error) {
	s.url = url
	return s.resp, s.err
}

type fakeArchiver struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (a *fakeArchiver) Archive(_ context.Context, key, contentType string, data []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.key, a.contentType, a.data = key, contentType, data
	return "s3://bucket/" + key, nil
}

type memJournal struct {
	uploads []*Upload
	err     error
}

func (j *memJournal) Create(upload *Upload) error {
	if j.err != nil {
		return j.err
	}
	j.uploads = append(j.uploads, upload)
	return nil
}

func (j *memJournal) FindByID(id string) (*Upload, error) {
	for _, u := range j.uploads {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (j *memJournal) List() ([]*Upload, error) {
	return j.uploads, nil
}

type fakeOpener map[string]string

func (o fakeOpener) Open(path string) (io.ReadCloser, error) {
	content, ok := o[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

var testForm = form.Form{
	{Kind: form.Text, Name: "cute", Value: "yes"},
	{Kind: form.File, Name: "ferris", Path: "ferris.png", ContentType: "image/png"},
}

func TestServiceSubmit(t *testing.T) {
	sub := &fakeSubmitter{resp: &client.Response{
		Status:      201,
		ContentType: "multipart/form-data; boundary=x",
		Size:        42,
	}}
	journal := &memJournal{}
	s := NewService(sub, nil, journal, fakeOpener{})
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	upload, err := s.Submit(context.Background(), "http://example.com/upload", testForm)

	require.NoError(t, err)
	assert.Equal(t, "http://example.com/upload", sub.url)
	assert.NotEmpty(t, upload.ID)
	assert.Equal(t, "http://example.com/upload", upload.Target)
	assert.Equal(t, "multipart/form-data; boundary=x", upload.ContentType)
	assert.Equal(t, 2, upload.Fields)
	assert.Equal(t, int64(42), upload.Size)
	assert.Equal(t, 201, upload.Status)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), upload.CreatedAt)
	assert.Equal(t, []*Upload{upload}, journal.uploads)

	got, err := s.Get(upload.ID)
	require.NoError(t, err)
	assert.Equal(t, upload, got)
}

func TestServiceSubmitErrorStatusIsRecorded(t *testing.T) {
	statusErr := &client.StatusError{Status: 401, Body: "Unauthorized"}
	sub := &fakeSubmitter{resp: &client.Response{Status: 401}, err: statusErr}
	journal := &memJournal{}
	s := NewService(sub, nil, journal, fakeOpener{})

	upload, err := s.Submit(context.Background(), "http://example.com", testForm)

	assert.ErrorIs(t, err, statusErr)
	require.NotNil(t, upload)
	assert.Equal(t, 401, upload.Status)
	assert.Len(t, journal.uploads, 1)
}

func TestServiceSubmitTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	journal := &memJournal{}
	s := NewService(&fakeSubmitter{err: boom}, nil, journal, fakeOpener{})

	upload, err := s.Submit(context.Background(), "http://example.com", testForm)

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, upload)
	assert.Empty(t, journal.uploads)
}

func TestServiceSubmitJournalError(t *testing.T) {
	boom := errors.New("database is locked")
	sub := &fakeSubmitter{resp: &client.Response{Status: 200}}
	s := NewService(sub, nil, &memJournal{err: boom}, fakeOpener{})

	_, err := s.Submit(context.Background(), "http://example.com", testForm)

	assert.ErrorIs(t, err, boom)
}

func TestServiceExport(t *testing.T) {
	s := NewService(nil, nil, nil, fakeOpener{"ferris.png": "\xff\xd8"})
	var buf bytes.Buffer

	contentType, err := s.Export(&buf, testForm)
	require.NoError(t, err)

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	r := multipart.NewReader(&buf, params["boundary"])

	p, err := r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "cute", p.FormName())

	p, err = r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "ferris", p.FormName())
	assert.Equal(t, "ferris.png", p.FileName())
	body, err := io.ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, "\xff\xd8", string(body))

	_, err = r.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServiceExportMissingFile(t *testing.T) {
	s := NewService(nil, nil, nil, fakeOpener{})

	_, err := s.Export(io.Discard, testForm)

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServiceArchive(t *testing.T) {
	archiver := &fakeArchiver{}
	journal := &memJournal{}
	s := NewService(nil, archiver, journal, fakeOpener{"ferris.png": "\xff\xd8"})

	upload, err := s.Archive(context.Background(), "forms/1.bin", testForm)

	require.NoError(t, err)
	assert.Equal(t, "forms/1.bin", archiver.key)
	assert.Equal(t, upload.ContentType, archiver.contentType)
	assert.Equal(t, "s3://bucket/forms/1.bin", upload.Target)
	assert.Equal(t, int64(len(archiver.data)), upload.Size)
	assert.True(t, bytes.HasSuffix(archiver.data, []byte("--\r\n")))
	assert.Len(t, journal.uploads, 1)
}

func TestServiceArchiveErrors(t *testing.T) {
	t.Run("no archiver", func(t *testing.T) {
		s := NewService(nil, nil, nil, fakeOpener{})
		_, err := s.Archive(context.Background(), "k", testForm)
		assert.ErrorIs(t, err, ErrNoArchiver)
	})

	t.Run("archiver fails", func(t *testing.T) {
		boom := errors.New("access denied")
		s := NewService(nil, &fakeArchiver{err: boom}, nil, fakeOpener{"ferris.png": ""})
		_, err := s.Archive(context.Background(), "k", testForm)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("missing file", func(t *testing.T) {
		archiver := &fakeArchiver{}
		s := NewService(nil, archiver, nil, fakeOpener{})
		_, err := s.Archive(context.Background(), "k", testForm)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Empty(t, archiver.key)
	})
}

func TestServiceHistoryWithoutJournal(t *testing.T) {
	s := NewService(nil, nil, nil, fakeOpener{})

	uploads, err := s.History()
	require.NoError(t, err)
	assert.Empty(t, uploads)

	_, err = s.Get("x")
	assert.ErrorIs(t, err, ErrNotFound)
}
