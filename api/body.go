package api

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// maxBodySize caps the decoded (decompressed) request payload.
const maxBodySize = 64 << 10

const (
	msgBodyTooLarge = "Request body too large"
	msgBadEncoding  = "Invalid gzip body"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errBodyEncoding = errors.New("invalid content encoding")
)

// decodeBody reads the JSON payload of a wish request, unwrapping gzip when the
// client sent Content-Encoding: gzip. Malformed JSON leaves out untouched so
// the caller reports the missing fields. Only oversized or undecodable
// payloads are returned as errBodyTooLarge or errBodyEncoding.
func decodeBody(c echo.Context, out any) error {
	req := c.Request()
	if req.Body == nil {
		return io.EOF
	}

	var r io.Reader = req.Body
	if gzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
		zr, err := gzip.NewReader(req.Body)
		if err != nil {
			return errBodyEncoding
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		if r != req.Body {
			return errBodyEncoding
		}
		return err
	}
	if len(data) > maxBodySize {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return io.EOF
	}
	return sonic.ConfigStd.Unmarshal(data, out)
}

// rejectBody answers payloads that could not be read at all. It reports false
// for everything else, including malformed JSON.
func rejectBody(c echo.Context, metrics *wishRequestMetrics, err error) (bool, error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		metrics.SetErrorStage("decode")
		return true, c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: msgBodyTooLarge})
	case errors.Is(err, errBodyEncoding):
		metrics.SetErrorStage("decode")
		return true, c.JSON(http.StatusBadRequest, errorResponse{Error: msgBadEncoding})
	}
	return false, nil
}

func gzipEncoded(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}
