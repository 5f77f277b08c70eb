package classify

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/noteport/noteport/internal/types"
)

// DefaultWorkers bounds concurrent sample reads.
const DefaultWorkers = 8

// ReadSample returns up to SampleSize leading bytes of path.
func ReadSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, SampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Label classifies one file from its sample.
func Label(f types.FileInfo) (types.FileInfo, error) {
	sample, err := ReadSample(f.AbsolutePath)
	if err != nil {
		return f, err
	}
	ct := Detect(sample, f.Extension)
	return f.WithContentType(ct, MimeType(ct, f.Name, sample)), nil
}

// LabelAll classifies files concurrently. Sample reads are independent and
// read-only; results keep the input order. A file whose sample cannot be
// read comes back unlabelled and its error is stored at the same index.
func LabelAll(ctx context.Context, files []types.FileInfo, workers int) ([]types.FileInfo, []error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make([]types.FileInfo, len(files))
	errs := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i], errs[i] = files[i], err
				return nil
			}
			out[i], errs[i] = Label(files[i])
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}
