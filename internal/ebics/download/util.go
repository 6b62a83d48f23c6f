package download

import (
	"bytes"
	"compress/zlib"
	"io"
	"strconv"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Parse(err, "download: invalid integer %q", s)
	}
	return n, nil
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Parse(err, "download: invalid zlib stream")
	}
	defer r.Close()
	return io.ReadAll(r)
}
