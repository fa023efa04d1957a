package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"repochat/internal/domain"
	"repochat/internal/infra/tracer"
)

// FileRecord describes one file as it was emitted into a corpus.
type FileRecord struct {
	Path      string
	Binary    bool
	Ambiguous bool
	Size      int
}

// Corpus is a repository subtree flattened into one text document.
type Corpus struct {
	Text  string
	Files []FileRecord
	// Warnings holds ClassificationAmbiguous errors. They never fail a walk.
	Warnings []error
}

// BinaryCount returns how many files were emitted as binary markers.
func (c *Corpus) BinaryCount() int {
	n := 0
	for _, f := range c.Files {
		if f.Binary {
			n++
		}
	}
	return n
}

// Flattener walks a repository tree depth-first and concatenates text files.
type Flattener struct {
	repos    domain.RepositoryProvider
	logger   *slog.Logger
	maxBytes int64
}

// NewFlattener creates a flattener. maxBytes of 0 means no corpus size limit.
func NewFlattener(repos domain.RepositoryProvider, logger *slog.Logger, maxBytes int64) *Flattener {
	return &Flattener{repos: repos, logger: logger, maxBytes: maxBytes}
}

// Flatten fetches every file under root (the repository root when empty) in
// listing order. Directories are expanded where they appear. Any fetch
// failure aborts the walk with a KindUpstreamFetchFailed error and no
// partial corpus.
func (f *Flattener) Flatten(ctx context.Context, token, owner, repo, root string) (*Corpus, error) {
	ctx, span := tracer.StartSpan(ctx, "flatten.walk",
		trace.WithAttributes(tracer.RepoAttrs(owner, repo, root)...),
	)
	defer span.End()

	w := &walk{f: f, token: token, owner: owner, repo: repo, corpus: &Corpus{}}
	if err := w.visit(ctx, root); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewKindError(domain.KindUpstreamFetchFailed, "Flattener.Flatten", err, owner+"/"+repo)
	}

	w.corpus.Text = w.buf.String()
	span.SetAttributes(
		tracer.IntAttr("corpus.files", len(w.corpus.Files)),
		tracer.IntAttr("corpus.binary_files", w.corpus.BinaryCount()),
		tracer.IntAttr("corpus.bytes", len(w.corpus.Text)),
	)
	tracer.SetOK(span)
	return w.corpus, nil
}

type walk struct {
	f      *Flattener
	token  string
	owner  string
	repo   string
	buf    strings.Builder
	corpus *Corpus
}

// visit fetches p and emits it as a file or expands it as a directory.
func (w *walk) visit(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamFetch, displayPath(p), err)
	}

	res, err := w.f.repos.GetContent(ctx, w.token, w.owner, w.repo, p)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamFetch, displayPath(p), err)
	}

	if !res.IsDir() {
		return w.emitFile(res.File.Path, res.File.Content)
	}
	for _, entry := range res.Entries {
		switch entry.Type {
		case domain.NodeDir:
			if err := w.visit(ctx, entry.Path); err != nil {
				return err
			}
		case domain.NodeFile:
			if HasBinaryExtension(entry.Path) {
				if err := w.emitBinary(entry.Path, entry.Size, false); err != nil {
					return err
				}
				continue
			}
			if err := w.visitFile(ctx, entry.Path); err != nil {
				return err
			}
		default:
			// Symlinks and submodules have no content to flatten.
			w.f.logger.Debug("skipping repository entry", "path", entry.Path, "type", entry.Type)
		}
	}
	return nil
}

func (w *walk) visitFile(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamFetch, p, err)
	}
	res, err := w.f.repos.GetContent(ctx, w.token, w.owner, w.repo, p)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamFetch, p, err)
	}
	if res.IsDir() {
		return fmt.Errorf("%w: %s: listed as file but returned a directory", domain.ErrUpstreamFetch, p)
	}
	return w.emitFile(p, res.File.Content)
}

func (w *walk) emitFile(p string, content []byte) error {
	c := Classify(p, content)
	if c.Ambiguous {
		w.corpus.Warnings = append(w.corpus.Warnings, domain.NewKindError(
			domain.KindClassificationAmbiguous, "Flattener.Classify", domain.ErrAmbiguous,
			fmt.Sprintf("%s: nul ratio %.3f over %d bytes", p, c.NulRatio, len(content)),
		))
		w.f.logger.Debug("ambiguous binary classification", "path", p, "nul_ratio", c.NulRatio, "binary", c.Binary)
	}
	if c.Binary {
		return w.emitBinary(p, len(content), c.Ambiguous)
	}

	w.buf.WriteString("File: ")
	w.buf.WriteString(p)
	w.buf.WriteString("\n")
	w.buf.Write(content)
	w.buf.WriteString("\n\n")
	w.corpus.Files = append(w.corpus.Files, FileRecord{Path: p, Ambiguous: c.Ambiguous, Size: len(content)})
	return w.checkSize()
}

func (w *walk) emitBinary(p string, size int, ambiguous bool) error {
	w.buf.WriteString("Binary content for ")
	w.buf.WriteString(p)
	w.buf.WriteString("\n\n")
	w.corpus.Files = append(w.corpus.Files, FileRecord{Path: p, Binary: true, Ambiguous: ambiguous, Size: size})
	return w.checkSize()
}

func (w *walk) checkSize() error {
	if w.f.maxBytes > 0 && int64(w.buf.Len()) > w.f.maxBytes {
		return fmt.Errorf("%w: %w: corpus exceeds %d bytes", domain.ErrUpstreamFetch, domain.ErrLimitReached, w.f.maxBytes)
	}
	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
