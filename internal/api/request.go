package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sidingops/rakeserial/internal/serial"
	"github.com/sidingops/rakeserial/internal/services"
)

// MaxBodySize is the maximum allowed request body size (1 MB).
const MaxBodySize = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// DecodeJSON reads and decodes a JSON request body into dst.
// It returns user-friendly error messages instead of leaking Go internals.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errEmptyBody
	}
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return friendlyDecodeError(dec.Decode(dst))
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted;
// an absent or empty body leaves dst untouched.
func DecodeOptionalJSON(r *http.Request, dst interface{}) error {
	err := DecodeJSON(r, dst)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

func friendlyDecodeError(err error) error {
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, unmarshalTypeErr.Type)
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", MaxBodySize)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return fmt.Errorf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return errors.New("invalid JSON in request body")
	}
}

// PathSerial returns the serial in the {serial} path segment. Clients encode
// its slashes as underscores.
func PathSerial(r *http.Request) (string, error) {
	raw := serial.DecodePath(r.PathValue("serial"))
	s, err := serial.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalidSerial, err)
	}
	return s.String(), nil
}

// QueryScope reads the indent_number query parameter; absent means the parent scope.
func QueryScope(r *http.Request) serial.Scope {
	return serial.Indent(r.URL.Query().Get("indent_number"))
}

// QuerySeconds reads a positive whole number of seconds from the query,
// falling back to def.
func QuerySeconds(r *http.Request, key string, def time.Duration) time.Duration {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
