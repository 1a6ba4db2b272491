// Package fixtures writes batches of signed request bodies to disk so stress
// tools can replay them against a collector.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"hamustro/builder"
	"hamustro/codec"
	"hamustro/metrics"
	"hamustro/models"
	"hamustro/signature"
)

// DefaultTimestamp is the X-Hamustro-Time fixtures are signed with when the
// Writer has to create its own Builder.
const DefaultTimestamp = "1454514088"

var ErrIOFailure = errors.New("fixture i/o failure")

// IOError reports the message index and file that could not be written.
// Index 0 means the output directory itself.
type IOError struct {
	Index int
	Path  string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fixture %d: %s: %v", e.Index, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIOFailure }

// Writer produces numbered fixture files in Dir. Builder is optional; when
// nil a randomly seeded one pinned to DefaultTimestamp is used.
type Writer struct {
	Dir     string
	Secret  string
	Version models.Version
	Formats []codec.Format
	Builder *builder.Builder
	Workers int
	Metrics *metrics.Metrics
}

// Names returns the body and signature file names of message i.
func Names(v models.Version, i int, f codec.Format) (body, sig string) {
	body = strconv.Itoa(i) + "." + f.Ext()
	if v == models.V1 {
		return body, strconv.Itoa(i) + ".signature"
	}
	return body, body + ".signature"
}

func (w *Writer) formats() ([]codec.Format, error) {
	formats := w.Formats
	if len(formats) == 0 {
		formats = []codec.Format{codec.FormatProtobuf}
	}
	for _, f := range formats {
		if err := codec.Supports(w.Version, f); err != nil {
			return nil, err
		}
	}
	return formats, nil
}

// WriteBatch builds count messages and writes every requested format of each
// together with its signature. The first failure aborts the batch; files
// already written are left in place.
func (w *Writer) WriteBatch(ctx context.Context, count int, randomPayloadCount bool) error {
	formats, err := w.formats()
	if err != nil {
		return err
	}
	signer, err := signature.New(w.Version, w.Secret)
	if err != nil {
		return err
	}

	b := w.Builder
	if b == nil {
		b = builder.New(w.Version, builder.WithTimestamp(builder.FixedTimestamp(DefaultTimestamp)))
	}
	if b.Version() != w.Version {
		return fmt.Errorf("fixtures: builder produces %s messages, writer expects %s", b.Version(), w.Version)
	}

	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return &IOError{Path: w.Dir, Err: err}
	}

	workers := w.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// Messages are built on this goroutine only, so a seeded Builder yields
	// the same files whatever the worker count.
	for i := 1; i <= count; i++ {
		if gctx.Err() != nil {
			break
		}
		msg := b.Build(randomPayloadCount)
		g.Go(func() error {
			return w.writeMessage(gctx, i, msg, formats, signer)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Printf("Fixtures: wrote %d %s messages to %s (workers=%d)", count, w.Version, w.Dir, workers)
	return nil
}

func (w *Writer) writeMessage(ctx context.Context, i int, msg *models.Message, formats []codec.Format, signer *signature.Signer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, f := range formats {
		body, err := codec.Marshal(msg.Collection, f)
		if err != nil {
			return fmt.Errorf("fixture %d: %w", i, err)
		}
		bodyName, sigName := Names(w.Version, i, f)

		bodyPath := filepath.Join(w.Dir, bodyName)
		if err := os.WriteFile(bodyPath, body, 0644); err != nil {
			return &IOError{Index: i, Path: bodyPath, Err: err}
		}
		sigPath := filepath.Join(w.Dir, sigName)
		if err := os.WriteFile(sigPath, []byte(signer.Sign(body, msg.Time)), 0644); err != nil {
			return &IOError{Index: i, Path: sigPath, Err: err}
		}
		w.Metrics.ObserveBody(string(f), len(body))
	}

	w.Metrics.ObserveMessage(w.Version.String(), len(msg.Collection.Payloads))
	return nil
}
