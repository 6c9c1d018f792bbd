package gateway

import (
	"bytes"
	"io"
	"net/http"
)

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}
