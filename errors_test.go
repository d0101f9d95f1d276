package moka

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/blockberries/moka/types"
)

func TestClassifyRemote(t *testing.T) {
	cases := []struct {
		class string
		check func(error) bool
	}{
		{"io.hotmoka.beans.TransactionRejectedException", func(err error) bool { _, ok := IsRejected(err); return ok }},
		{"io.hotmoka.network.thin.client.exceptions.TransactionRejectedException", func(err error) bool { _, ok := IsRejected(err); return ok }},
		{"io.hotmoka.beans.TransactionException", func(err error) bool { _, ok := IsFailed(err); return ok }},
		{"io.hotmoka.beans.CodeExecutionException", func(err error) bool { _, ok := IsFailed(err); return ok }},
		{"java.util.NoSuchElementException", func(err error) bool { _, ok := IsNotFound(err); return ok }},
		{"io.hotmoka.network.internal.services.NetworkException", func(err error) bool { _, ok := IsRemote(err); return ok }},
	}
	for _, c := range cases {
		err := ClassifyRemote(http.StatusBadRequest, types.ErrorModel{Message: "boom", ExceptionClassName: c.class})
		if !c.check(err) {
			t.Errorf("%s: unexpected classification %T", c.class, err)
		}
		if c.class != "io.hotmoka.network.internal.services.NetworkException" && err.Error() != "boom" {
			t.Errorf("%s: message not preserved: %q", c.class, err.Error())
		}
	}
}

func TestRejectedMessageVerbatim(t *testing.T) {
	msg := "io.takamaka.code.verification.VerificationException: lambdas.jar: illegal call to non-white-listed method"
	err := ClassifyRemote(http.StatusBadRequest, types.ErrorModel{
		Message:            msg,
		ExceptionClassName: "io.hotmoka.beans.TransactionRejectedException",
	})
	r, ok := IsRejected(err)
	if !ok {
		t.Fatal("expected IsRejected to return true")
	}
	if r.Message != msg {
		t.Errorf("expected %q, got %q", msg, r.Message)
	}
}

func TestIsHelpersUnwrap(t *testing.T) {
	inner := &TransportError{Op: "POST", Endpoint: "/add/jarStoreTransaction", Err: errors.New("connection refused")}
	wrapped := fmt.Errorf("wrapped: %w", inner)

	te, ok := IsTransport(wrapped)
	if !ok {
		t.Fatal("expected IsTransport to unwrap wrapped error")
	}
	if te.Endpoint != "/add/jarStoreTransaction" {
		t.Errorf("unexpected endpoint %q", te.Endpoint)
	}

	if _, ok := IsRejected(wrapped); ok {
		t.Fatal("expected IsRejected to return false for a transport error")
	}
	if _, ok := IsPollTimeout(nil); ok {
		t.Fatal("expected IsPollTimeout to return false for nil")
	}
}

func TestDecodeReply(t *testing.T) {
	var out types.TransactionReference
	err := DecodeReply("/get/takamakaCode", http.StatusOK, []byte(`{"type":"local","hash":"ab"}`), &out)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if out.Hash != "ab" {
		t.Errorf("unexpected hash %q", out.Hash)
	}

	err = DecodeReply("/get/takamakaCode", http.StatusOK, []byte(`{`), &out)
	if _, ok := IsProtocol(err); !ok {
		t.Fatalf("expected ProtocolError, got %v", err)
	}

	err = DecodeReply("/get/response", http.StatusBadRequest,
		[]byte(`{"message":"unknown transaction reference ab","exceptionClassName":"java.util.NoSuchElementException"}`), &out)
	if nf, ok := IsNotFound(err); !ok || nf.Message != "unknown transaction reference ab" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	err = DecodeReply("/get/manifest", http.StatusBadGateway, []byte("<html>"), &out)
	if re, ok := IsRemote(err); !ok || re.Status != http.StatusBadGateway {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}
