package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubClient(fn roundTripperFunc) *http.Client {
	return &http.Client{Transport: fn}
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}
}

func TestSendMagicLink(t *testing.T) {
	var sent postmarkEmail
	var gotToken string

	c := NewClient("server-token", "hello@larder.app", "https://larder.example.com",
		WithHTTPClient(stubClient(func(r *http.Request) (*http.Response, error) {
			gotToken = r.Header.Get("X-Postmark-Server-Token")
			if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			return okResponse(), nil
		})))

	if err := c.SendMagicLink(context.Background(), "alice@example.com", "tok123"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotToken != "server-token" {
		t.Errorf("server token header = %q", gotToken)
	}
	if sent.To != "alice@example.com" || sent.From != "hello@larder.app" {
		t.Errorf("addressing = %+v", sent)
	}
	if !strings.Contains(sent.TextBody, "https://larder.example.com/auth/verify?token=tok123") {
		t.Errorf("text body missing link: %q", sent.TextBody)
	}
}

func TestSendMagicLinkRetriesServerErrors(t *testing.T) {
	calls := 0
	c := NewClient("server-token", "hello@larder.app", "https://larder.example.com",
		WithHTTPClient(stubClient(func(r *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return &http.Response{
					StatusCode: http.StatusInternalServerError,
					Body:       io.NopCloser(strings.NewReader(``)),
				}, nil
			}
			return okResponse(), nil
		})))

	if err := c.SendMagicLink(context.Background(), "alice@example.com", "tok123"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestSendMagicLinkDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	c := NewClient("server-token", "hello@larder.app", "https://larder.example.com",
		WithHTTPClient(stubClient(func(r *http.Request) (*http.Response, error) {
			calls++
			return &http.Response{
				StatusCode: http.StatusUnprocessableEntity,
				Body:       io.NopCloser(strings.NewReader(``)),
			}, nil
		})))

	if err := c.SendMagicLink(context.Background(), "alice@example.com", "tok123"); err == nil {
		t.Fatal("expected an error for a 4xx response")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSendMagicLinkUnconfigured(t *testing.T) {
	c := NewClient("", "hello@larder.app", "https://larder.example.com")
	if err := c.SendMagicLink(context.Background(), "alice@example.com", "tok123"); err == nil {
		t.Fatal("expected an error without a server token")
	}
}
