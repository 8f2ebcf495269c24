package conversion

import (
	"compress/gzip"
	"context"
	"io"

	"github.com/sourcegraph/lsif-server/internal/bundles"
)

// internalVersion stamps dumps with the generation of this importer,
// independent of the LSIF version of the input.
const internalVersion = "0.1.0"

// Convert reads a gzipped stream of LSIF lines and produces everything the
// dump store and the cross-repo index record for one upload. Failures
// caused by the content itself are reported as invalid payloads; see
// IsInvalidPayload.
func Convert(ctx context.Context, r io.Reader) (*bundles.GroupedBundleData, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, invalidPayloadf("invalid gzip stream: %s", err)
	}

	state, err := correlate(ctx, gzipReader)
	if err != nil {
		return nil, err
	}

	canonicalize(state)

	return groupBundleData(state), nil
}
