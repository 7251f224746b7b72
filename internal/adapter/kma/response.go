package kma

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/running-index-service/internal/domain"
)

// KMA result codes.
const (
	ResultOK     = "00"
	ResultNoData = "03"
)

var (
	// ErrNoData means the batch has no items yet, usually because it has
	// not been published.
	ErrNoData = errors.New("kma: no data")

	// ErrMissingAuthKey means no KMA_SERVICE_KEY is configured.
	ErrMissingAuthKey = errors.New("KMA_SERVICE_KEY missing")

	// ErrUnavailable means the circuit breaker is rejecting requests.
	ErrUnavailable = errors.New("kma: provider unavailable")
)

// APIError is a non-success resultCode from the provider.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kma API error: %s %s", e.Code, e.Message)
}

// ServerSide reports whether the code describes a provider fault rather than
// a bad request or credential.
func (e *APIError) ServerSide() bool {
	switch e.Code {
	case "01", "02", "04", "05", "99":
		return true
	default:
		return false
	}
}

// Response is the JSON envelope of every village forecast operation.
type Response struct {
	Response struct {
		Header Header `json:"header"`
		Body   Body   `json:"body"`
	} `json:"response"`
}

// Header carries the provider result code.
type Header struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
}

// Body carries the paged items.
type Body struct {
	DataType   string `json:"dataType,omitempty"`
	Items      Items  `json:"items"`
	PageNo     int    `json:"pageNo,omitempty"`
	NumOfRows  int    `json:"numOfRows,omitempty"`
	TotalCount int    `json:"totalCount,omitempty"`
}

// Items wraps the item list. The provider sends an empty string instead of
// an object when there is nothing to return.
type Items struct {
	Item []domain.Item `json:"item"`
}

// UnmarshalJSON accepts an object, an empty string or null.
func (it *Items) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*it = Items{}
		return nil
	}
	type plain Items
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*it = Items(p)
	return nil
}

// NewResponse builds a successful envelope around items.
func NewResponse(items []domain.Item) Response {
	var r Response
	r.Response.Header = Header{ResultCode: ResultOK, ResultMsg: "NORMAL_SERVICE"}
	r.Response.Body = Body{
		DataType:   "JSON",
		Items:      Items{Item: items},
		PageNo:     1,
		NumOfRows:  1000,
		TotalCount: len(items),
	}
	return r
}
