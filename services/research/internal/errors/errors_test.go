package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestDomainErrorMessage(t *testing.T) {
	cause := stderrors.New("connection refused")
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{"with cause", ExchangeUnavailable("fetching rates", cause), "EXCHANGE_UNAVAILABLE: fetching rates: connection refused"},
		{"without cause", InsufficientTrainingData("no labeled listings", nil), "INSUFFICIENT_TRAINING_DATA: no labeled listings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if len(tt.err.StackTrace()) == 0 {
				t.Error("expected a captured stack")
			}
		})
	}
}

func TestIsTypeWalksChain(t *testing.T) {
	inner := ListingFetchFailed("fetching listing 7", stderrors.New("timeout"))
	outer := fmt.Errorf("worker: %w", Internal("collecting", inner))

	if !IsType(outer, ErrTypeListingFetchFailed) {
		t.Error("expected LISTING_FETCH_FAILED in chain")
	}
	if !IsType(outer, ErrTypeInternal) {
		t.Error("expected INTERNAL in chain")
	}
	if IsType(outer, ErrTypeCacheIO) {
		t.Error("did not expect CACHE_IO in chain")
	}

	got, ok := TypeOf(outer)
	if !ok || got != ErrTypeInternal {
		t.Errorf("got %v, want %v", got, ErrTypeInternal)
	}
	if !stderrors.Is(outer, inner) {
		t.Error("expected Unwrap to reach the inner error")
	}
}

func TestIsTypeOnPlainError(t *testing.T) {
	if IsType(stderrors.New("plain"), ErrTypeInternal) {
		t.Error("plain errors carry no type")
	}
	if _, ok := TypeOf(nil); ok {
		t.Error("nil has no type")
	}
}
