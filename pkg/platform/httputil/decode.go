package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "contactsvc/pkg/domain-errors"
)

// Preparable is a request body that can clean and check itself.
type Preparable[T any] interface {
	*T
	Normalize()
	Validate() error
}

// DecodeAndPrepare decodes a JSON body of at most maxBytes into T, then
// normalizes and validates it. Malformed JSON is a bad request; an empty
// body decodes to the zero value.
func DecodeAndPrepare[T any, PT Preparable[T]](w http.ResponseWriter, r *http.Request, maxBytes int64) (*T, error) {
	var req T
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body too large")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
