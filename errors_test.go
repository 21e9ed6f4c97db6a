package mqttmsgr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestRefusedError(t *testing.T) {
	seen := map[string]uint8{}
	for code := uint8(1); code <= 5; code++ {
		err := &RefusedError{Code: code}
		if prev, ok := seen[err.Error()]; ok {
			t.Fatalf("codes %d and %d share message %q", prev, code, err.Error())
		}
		seen[err.Error()] = code

		wantRetry := code <= 3
		if err.Retryable() != wantRetry {
			t.Fatalf("code %d retryable = %v", code, err.Retryable())
		}
		if errors.Is(err, ErrReauthRequired) == wantRetry {
			t.Fatalf("code %d reauth classification wrong", code)
		}
		if retryable(fmt.Errorf("wrapped: %w", err)) != wantRetry {
			t.Fatalf("code %d not classified through wrapping", code)
		}
	}

	if got := (&RefusedError{Code: 9}).Error(); got != "connection refused: unknown return code 9" {
		t.Fatal(got)
	}
	if !errors.Is(&RefusedError{Code: 9}, ErrReauthRequired) {
		t.Fatal("unknown codes should require a new session")
	}
}

func TestRetryable(t *testing.T) {
	for _, err := range []error{io.EOF, ErrConnectTimeout, ErrKeepAliveTimeout, errors.New("dial tcp: refused")} {
		if !retryable(err) {
			t.Fatal("expected retryable:", err)
		}
	}
}

func TestSubscribeError(t *testing.T) {
	err := error(&SubscribeError{Topic: "/t_ms", Code: 0x80})
	if err.Error() != `subscription to "/t_ms" refused with return code 0x80` {
		t.Fatal(err)
	}
}
