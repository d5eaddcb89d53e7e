package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "essaygrade/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{InvalidParams, "Invalid parameters"},
		{AnswerTooLong, "Answer exceeds the question's character limit"},
		{TerminalJobError, "Batch job finished with an error"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{RequiredFieldEmpty, 400},
		{AnswerTooLong, 400},
		{UnsupportedFormat, 400},
		{NotFound, 404},
		{JobImmutable, 409},
		{TransientNetwork, 503},
		{Timeout, 504},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(ResultNotScored)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Code != ResultNotScored {
		t.Errorf("Code = %v, want %v", err.Code, ResultNotScored)
	}
	if err.Error() != ResultNotScored.Message() {
		t.Errorf("Error() = %q, want %q", err.Error(), ResultNotScored.Message())
	}
	if err.Details == nil {
		t.Error("Details should be initialized")
	}
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := Wrap(base, TransientNetwork)

	if err.Code != TransientNetwork {
		t.Errorf("Code = %v, want %v", err.Code, TransientNetwork)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to the original")
	}
	if Wrap(nil, TransientNetwork) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	again := Wrap(err, StorageError)
	if again != err || again.Code != StorageError {
		t.Error("wrapping an *Error should update its code in place")
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(JobImmutable))

	if !Is(err, JobImmutable) {
		t.Error("Is should see through fmt wrapping")
	}
	if Is(err, NotFound) {
		t.Error("Is should not match a different code")
	}
	if Is(nil, JobImmutable) {
		t.Error("Is(nil) should be false")
	}
	if GetCode(fmt.Errorf("plain")) != InternalServerError {
		t.Error("plain errors should map to InternalServerError")
	}
	if GetCode(nil) != Success {
		t.Error("nil should map to Success")
	}
}

func TestClassification(t *testing.T) {
	transient := Transient(fmt.Errorf("timeout"), "GET /health")
	if !IsTransient(transient) {
		t.Error("Transient() should be transient")
	}
	if IsValidation(transient) {
		t.Error("transport errors are not validation errors")
	}

	rejection := Rejection(422, "exam not found")
	if IsTransient(rejection) {
		t.Error("a rejection is not transient")
	}
	if rejection.Error() != "exam not found" {
		t.Errorf("rejection message = %q", rejection.Error())
	}
	if rejection.Details["status"] != 422 {
		t.Errorf("rejection status detail = %v", rejection.Details["status"])
	}
	if Rejection(500, "").Error() != ServiceRejection.Message() {
		t.Error("empty detail should fall back to the default message")
	}

	for _, err := range []error{
		ValidationError("candidate_id", "must not be blank"),
		New(AnswerTooLong),
		RangeError(30, 25),
		New(RequiredFieldEmpty),
	} {
		if !IsValidation(err) {
			t.Errorf("%v should be a validation error", err)
		}
	}
	if IsValidation(New(TerminalJobError)) {
		t.Error("a terminal job error is not a validation error")
	}
}

func TestValidationErrorDetails(t *testing.T) {
	err := ValidationError("exam_id", "must be greater than 0")

	if err.Details["field"] != "exam_id" {
		t.Errorf("field detail = %v", err.Details["field"])
	}
	if err.Error() != "exam_id: must be greater than 0" {
		t.Errorf("message = %q", err.Error())
	}
}
