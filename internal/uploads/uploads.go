package uploads

import (
	"context"
	"errors"
	"time"

	"github.com/pavel-fokin/form-data/internal/client"
	"github.com/pavel-fokin/form-data/internal/form"
)

// ErrNotFound is returned when no upload has the requested ID
var ErrNotFound = errors.New("upload not found")

// Upload is the journal record of a submitted or archived document
type Upload struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	ContentType string    `json:"content_type"`
	Fields      int       `json:"fields"`
	Size        int64     `json:"size"`
	Status      int       `json:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Journal defines the interface for storing upload records
type Journal interface {
	Create(upload *Upload) error
	FindByID(id string) (*Upload, error)
	List() ([]*Upload, error)
}

// Submitter sends a form to a URL
type Submitter interface {
	Submit(ctx context.Context, url string, f form.Form) (*client.Response, error)
}

// Archiver stores an encoded document under a key
type Archiver interface {
	Archive(ctx context.Context, key, contentType string, data []byte) (target string, err error)
}
