// internal/gateway/errors.go
// Error kinds used internally by the router/resolver engine, and their
// mapping onto the wire error envelope (§6/§7 of the design). Per-request
// errors are never fatal: they become a response envelope on the originating
// connection. Per-connection errors close only that connection.
package gateway

import "fmt"

// Kind classifies a router-level failure so callers can both log
// appropriately (§7 classification) and map it onto a wire code.
type Kind int

const (
    KindUnauthorized Kind = iota
    KindMethodNotFound
    KindPermissionDenied
    KindBadRequest
    KindBackendUnavailable
    KindBackendError
    KindIllegalState
    KindShutdown
)

func (k Kind) String() string {
    switch k {
    case KindUnauthorized:
        return "Unauthorized"
    case KindMethodNotFound:
        return "MethodNotFound"
    case KindPermissionDenied:
        return "PermissionDenied"
    case KindBadRequest:
        return "BadRequest"
    case KindBackendUnavailable:
        return "BackendUnavailable"
    case KindBackendError:
        return "BackendError"
    case KindIllegalState:
        return "IllegalState"
    case KindShutdown:
        return "Shutdown"
    default:
        return "Unknown"
    }
}

// RouteError is the error type returned by the resolver engine's internal
// dispatch helpers. message carries additional, human-readable detail;
// code, when non-zero, is a backend-originated wire code that should pass
// through untranslated (§6: "Backend-originated errors pass through with
// their code and message").
type RouteError struct {
    Kind    Kind
    Message string
    Code    int // 0 means "use the kind's default wire code"
}

func (e *RouteError) Error() string {
    if e.Message == "" {
        return e.Kind.String()
    }
    return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newRouteError(k Kind, msg string) *RouteError {
    return &RouteError{Kind: k, Message: msg}
}

// Wire error codes (§6). Errors carrying a non-zero Code (backend errors
// with their own code/message) bypass this table entirely.
const (
    wireCodeMethodNotFound   = 32601
    wireCodePermissionDenied = 32603
    wireCodeBadRequest       = 32600
)

// wireEnvelope is what gets serialized onto the connection as an error
// response. Field names are deliberately generic (code/message) so both the
// v1 and v2 framing in D can wrap it identically.
type wireEnvelope struct {
    Code    int    `json:"code"`
    Message string `json:"message"`
}

// toWireEnvelope maps a RouteError onto the wire shape described in §6.
func toWireEnvelope(err *RouteError) wireEnvelope {
    if err.Code != 0 {
        return wireEnvelope{Code: err.Code, Message: err.Message}
    }
    switch err.Kind {
    case KindMethodNotFound:
        return wireEnvelope{Code: wireCodeMethodNotFound, Message: "method not found"}
    case KindPermissionDenied:
        return wireEnvelope{Code: wireCodePermissionDenied, Message: "permission denied"}
    case KindBadRequest:
        msg := err.Message
        if msg == "" {
            msg = "bad request"
        }
        return wireEnvelope{Code: wireCodeBadRequest, Message: msg}
    case KindBackendUnavailable:
        return wireEnvelope{Code: wireCodeBadRequest, Message: "backend unavailable: " + err.Message}
    default:
        msg := err.Message
        if msg == "" {
            msg = err.Kind.String()
        }
        return wireEnvelope{Code: wireCodeBadRequest, Message: msg}
    }
}
