package metrics

import (
	"fmt"
	"strconv"
)

type Requests struct {
	Success uint64
	Error   uint64
}

// Average is the mean processing time of successful requests. Known is false
// when the payload carried no duration sum.
type Average struct {
	Seconds float64
	Known   bool
}

func (a Average) String() string {
	if !a.Known {
		return "unknown"
	}
	return strconv.FormatFloat(a.Seconds, 'f', 3, 64)
}

// Summary is the client-side view of one metrics payload.
type Summary struct {
	Requests      Requests
	AvgProcessing Average
}

func (s Summary) Total() uint64 {
	return s.Requests.Success + s.Requests.Error
}

// FetchError reports a transport failure or a non-2xx metrics response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metrics: fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("metrics: fetching %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a payload that is not exposition text.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "metrics: unparseable payload: " + e.Reason
}
