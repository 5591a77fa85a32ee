// Package upload validates inbound invoice documents and stores them under a
// private directory with generated names.
package upload

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultMaxBytes is the largest accepted document (5 MiB).
const DefaultMaxBytes int64 = 5 << 20

const (
	pdfMIME      = "application/pdf"
	pdfExtension = ".pdf"
	sniffLen     = 3072
)

// ValidationError reports an upload the caller can correct.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// File is an inbound upload. Name is the client-supplied filename and is
// only used for extension checks and notes.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CSRF pairs the token submitted with the form and the token the session
// expects. Both must be present and equal.
type CSRF struct {
	Submitted string
	Expected  string
}

// Valid compares the two tokens in constant time.
func (c CSRF) Valid() bool {
	if c.Submitted == "" || c.Expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Submitted), []byte(c.Expected)) == 1
}

// NewCSRFToken returns a random 32-byte hex token.
func NewCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", eris.Wrap(err, "upload: generate csrf token")
	}
	return hex.EncodeToString(b), nil
}

// StoredFile is a document accepted and written to the upload directory.
type StoredFile struct {
	UniqueName   string
	Path         string
	OriginalName string
	Size         int64
}

// Gateway accepts uploads into dir.
type Gateway struct {
	dir      string
	maxBytes int64
	newName  func() string
	log      *zap.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMaxBytes overrides the size limit.
func WithMaxBytes(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxBytes = n
		}
	}
}

// WithNameFunc overrides the unique name generator.
func WithNameFunc(fn func() string) Option {
	return func(g *Gateway) { g.newName = fn }
}

// NewGateway creates a Gateway, creating dir with owner-only permissions.
func NewGateway(dir string, opts ...Option) (*Gateway, error) {
	if dir == "" {
		return nil, eris.New("upload: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, eris.Wrapf(err, "upload: create directory %s", dir)
	}
	g := &Gateway{
		dir:      dir,
		maxBytes: DefaultMaxBytes,
		newName:  func() string { return "upload_" + strings.ToLower(ulid.Make().String()) + pdfExtension },
		log:      zap.L().With(zap.String("component", "upload")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dir returns the upload directory.
func (g *Gateway) Dir() string {
	return g.dir
}

// MaxBytes returns the size limit.
func (g *Gateway) MaxBytes() int64 {
	return g.maxBytes
}

// Accept validates f and writes it under a generated name.
func (g *Gateway) Accept(f *File, csrf CSRF) (*StoredFile, error) {
	if f == nil || f.Body == nil {
		return nil, &ValidationError{Reason: "Erro: Requisição inválida."}
	}
	if !csrf.Valid() {
		return nil, &ValidationError{Reason: "Erro: Requisição inválida."}
	}
	if f.Size > g.maxBytes {
		return nil, &ValidationError{Reason: "Arquivo excede o tamanho máximo permitido."}
	}
	if !isPDFContentType(f.ContentType) {
		return nil, &ValidationError{Reason: "Tipo de arquivo não permitido."}
	}
	if strings.ToLower(filepath.Ext(f.Name)) != pdfExtension {
		return nil, &ValidationError{Reason: "Extensão de arquivo não permitida."}
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, eris.Wrap(err, "upload: read body")
	}
	head = head[:n]
	if n == 0 || !mimetype.Detect(head).Is(pdfMIME) {
		return nil, &ValidationError{Reason: "Tipo de arquivo não permitido."}
	}

	name := g.newName()
	path := filepath.Join(g.dir, name)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, eris.Wrap(err, "upload: create file")
	}

	body := io.MultiReader(bytes.NewReader(head), f.Body)
	written, err := io.Copy(out, io.LimitReader(body, g.maxBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, eris.Wrap(err, "upload: write file")
	}
	if written > g.maxBytes {
		_ = os.Remove(path)
		return nil, &ValidationError{Reason: "Arquivo excede o tamanho máximo permitido."}
	}

	g.log.Debug("upload stored",
		zap.String("file", name),
		zap.String("original", filepath.Base(f.Name)),
		zap.Int64("bytes", written),
	)
	return &StoredFile{
		UniqueName:   name,
		Path:         path,
		OriginalName: filepath.Base(f.Name),
		Size:         written,
	}, nil
}

func isPDFContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == pdfMIME
}
