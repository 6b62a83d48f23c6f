package host

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// segmentSize matches the gateway client's chunk size so a simulated
// multi-segment transfer actually exercises more than one transfer call
// for realistically sized documents.
const segmentSize = 1 << 20

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Parse(err, "host: invalid zlib stream")
	}
	defer r.Close()
	return io.ReadAll(r)
}

func chunk(s string, size int) []string {
	if len(s) == 0 {
		return []string{""}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	out = append(out, s)
	return out
}
