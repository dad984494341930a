package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
)

// Status tags a Response
type Status string

const (
	StatusNeedsClarification Status = "needs_clarification"
	StatusSuccess            Status = "success"
	StatusError              Status = "error"
)

// Response is the outcome of one request: a clarification question, a
// successful result, or an error. Only the fields of its status are set.
type Response struct {
	Status      Status
	Question    string
	SQL         string
	Result      *executor.Result
	Explanation string
	Error       string
	// Code classifies errors for logs and metrics; it is not serialized
	Code errors.ErrorCode
}

// NeedsClarification builds a question response
func NeedsClarification(question string) *Response {
	return &Response{Status: StatusNeedsClarification, Question: question}
}

// Success builds a result response
func Success(sql string, result *executor.Result, explanation string) *Response {
	return &Response{Status: StatusSuccess, SQL: sql, Result: result, Explanation: explanation}
}

// Failure builds an error response. sql is empty when no statement was
// accepted for execution.
func Failure(code errors.ErrorCode, sql, message string) *Response {
	return &Response{Status: StatusError, Code: code, SQL: sql, Error: message}
}

type clarificationJSON struct {
	Status   Status `json:"status"`
	Question string `json:"question"`
}

type successJSON struct {
	Status      Status           `json:"status"`
	SQL         string           `json:"sql"`
	Result      *executor.Result `json:"result"`
	Explanation string           `json:"explanation"`
}

type errorJSON struct {
	Status Status  `json:"status"`
	SQL    *string `json:"sql"`
	Error  string  `json:"error"`
}

// MarshalJSON emits exactly the fields of the response's status
func (r *Response) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusNeedsClarification:
		return json.Marshal(clarificationJSON{Status: r.Status, Question: r.Question})
	case StatusSuccess:
		result := r.Result
		if result == nil {
			result = &executor.Result{Data: []map[string]interface{}{}}
		}
		return json.Marshal(successJSON{Status: r.Status, SQL: r.SQL, Result: result, Explanation: r.Explanation})
	case StatusError:
		out := errorJSON{Status: r.Status, Error: r.Error}
		if r.SQL != "" {
			sql := r.SQL
			out.SQL = &sql
		}
		return json.Marshal(out)
	default:
		return nil, fmt.Errorf("unknown response status %q", r.Status)
	}
}

// UnmarshalJSON accepts any of the three shapes
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status      Status           `json:"status"`
		Question    string           `json:"question"`
		SQL         *string          `json:"sql"`
		Result      *executor.Result `json:"result"`
		Explanation string           `json:"explanation"`
		Error       string           `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Status {
	case StatusNeedsClarification, StatusSuccess, StatusError:
	default:
		return fmt.Errorf("unknown response status %q", raw.Status)
	}
	*r = Response{
		Status:      raw.Status,
		Question:    raw.Question,
		Result:      raw.Result,
		Explanation: raw.Explanation,
		Error:       raw.Error,
	}
	if raw.SQL != nil {
		r.SQL = *raw.SQL
	}
	return nil
}
