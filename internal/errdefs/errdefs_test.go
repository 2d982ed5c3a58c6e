package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryAndReasonSurviveWrapping(t *testing.T) {
	err := NotFound(ReasonChunkPending, "chunk 3 not uploaded yet")
	wrapped := fmt.Errorf("fetch failed: %w", err)

	if !IsNotFound(wrapped) {
		t.Fatal("wrapped not-found error lost its category")
	}
	if ReasonOf(wrapped) != ReasonChunkPending {
		t.Fatalf("ReasonOf = %q, want %q", ReasonOf(wrapped), ReasonChunkPending)
	}
}

func TestIsMatchesByCategoryAndOptionalReason(t *testing.T) {
	err := NotFound(ReasonTransferUnknown, "no such transfer")

	if !errors.Is(err, &Error{Category: CategoryNotFound}) {
		t.Error("category-only target should match")
	}
	if !errors.Is(err, &Error{Category: CategoryNotFound, Reason: ReasonTransferUnknown}) {
		t.Error("matching reason should match")
	}
	if errors.Is(err, &Error{Category: CategoryNotFound, Reason: ReasonChunkPending}) {
		t.Error("different reason should not match")
	}
	if errors.Is(err, &Error{Category: CategoryIOFailure}) {
		t.Error("different category should not match")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NetworkFailure(errors.New("connection refused"), "upload failed")) {
		t.Error("network failures should be retryable")
	}
	if IsRetryable(NotFound(ReasonTransferUnknown, "gone")) {
		t.Error("not-found should not be retryable")
	}
	if IsRetryable(InvalidInput("bad manifest")) {
		t.Error("invalid input should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("untyped errors should not be retryable")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IOFailure(cause, "failed to write chunk")
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through Unwrap")
	}
}
