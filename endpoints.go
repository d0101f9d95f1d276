package moka

import (
	"strings"

	"github.com/blockberries/moka/types"
)

// Node endpoints.
const (
	EndpointTakamakaCode       = "/get/takamakaCode"
	EndpointManifest           = "/get/manifest"
	EndpointSignatureAlgorithm = "/get/signatureAlgorithmForRequests"
	EndpointState              = "/get/state"
	EndpointClassTag           = "/get/classTag"
	EndpointRequest            = "/get/request"
	EndpointResponse           = "/get/response"
	EndpointPolledResponse     = "/get/polledResponse"
)

// Submission modes.
const (
	ModeAdd  = "add"
	ModePost = "post"
	ModeRun  = "run"
)

// SubmitEndpoint returns the endpoint submitting requests of kind k in
// mode, for instance "/add/jarStoreTransaction". The second result is
// false if the node offers no such endpoint: only add accepts initial
// requests, and only method calls can be run.
func SubmitEndpoint(mode string, k types.RequestKind) (string, bool) {
	switch mode {
	case ModeAdd:
	case ModePost:
		if k.IsInitial() {
			return "", false
		}
	case ModeRun:
		if k != types.RequestInstanceMethodCall && k != types.RequestStaticMethodCall {
			return "", false
		}
	default:
		return "", false
	}
	name := k.String()
	if strings.HasPrefix(name, "unknown") {
		return "", false
	}
	return "/" + mode + "/" + strings.ToLower(name[:1]) + name[1:] + "Transaction", true
}

// ParseSubmitEndpoint is the inverse of SubmitEndpoint.
func ParseSubmitEndpoint(endpoint string) (mode string, k types.RequestKind, ok bool) {
	for _, m := range []string{ModeAdd, ModePost, ModeRun} {
		for _, kind := range types.RequestKinds {
			if e, valid := SubmitEndpoint(m, kind); valid && e == endpoint {
				return m, kind, true
			}
		}
	}
	return "", 0, false
}
