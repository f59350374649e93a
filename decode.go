package buildio

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// DecoderFunc wraps an encoded body in a decoding reader
type DecoderFunc func(r io.Reader) (io.ReadCloser, error)

// Content coding names
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingXGzip    = "x-gzip"
	EncodingDeflate  = "deflate"
	EncodingZstd     = "zstd"
	EncodingLZ4      = "lz4"
)

func defaultDecoders() map[string]DecoderFunc {
	return map[string]DecoderFunc{
		EncodingIdentity: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
		EncodingGzip:    decodeGzip,
		EncodingXGzip:   decodeGzip,
		EncodingDeflate: decodeDeflate,
		EncodingZstd:    decodeZstd,
		EncodingLZ4: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	}
}

func decodeGzip(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func decodeDeflate(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}

func decodeZstd(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// parseCodings splits a Content-Encoding or Transfer-Encoding value into
// coding names in the order they were applied. "chunked" is handled by the
// HTTP layer and skipped.
func parseCodings(values []string) []string {
	var codings []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" || name == "chunked" {
				continue
			}
			codings = append(codings, name)
		}
	}
	return codings
}

// decoderChain resolves every coding before any body byte is read, so an
// unknown coding is a setup failure.
type decoderChain []DecoderFunc

func resolveDecoders(registry map[string]DecoderFunc, codings []string) (decoderChain, error) {
	chain := make(decoderChain, 0, len(codings))
	for i := len(codings) - 1; i >= 0; i-- {
		fn, ok := registry[codings[i]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, codings[i])
		}
		if codings[i] == EncodingIdentity {
			continue
		}
		chain = append(chain, fn)
	}
	return chain, nil
}

// wrap stacks the decoders over r, last applied coding first. Decoder
// construction reads the body, so it runs in the transfer worker and its
// failures are deferred.
func (c decoderChain) wrap(r io.Reader) (io.Reader, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}
	for _, fn := range c {
		rc, err := fn(r)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, rc)
		r = rc
	}
	return r, closeAll, nil
}

func decoderNames(registry map[string]DecoderFunc) []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
