package session

import (
	"errors"

	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/llm"
	"github.com/zombar/litmatrix/internal/normalizer"
)

// Error kinds returned by UserMessage
const (
	KindConfiguration = "configuration"
	KindAuth          = "auth"
	KindBalance       = "balance"
	KindRateLimit     = "rate_limit"
	KindTransport     = "transport"
	KindUpstream      = "upstream"
	KindParse         = "parse"
	KindValidation    = "validation"
	KindSuperseded    = "superseded"
	KindNotFound      = "not_found"
	KindExport        = "export"
	KindInternal      = "internal"
)

// UserMessage maps an error onto a kind and remediation text fit to show the user
func UserMessage(err error) (kind, text string) {
	var (
		cfgErr       *llm.ConfigurationError
		authErr      *llm.AuthError
		quotaErr     *llm.QuotaError
		transportErr *llm.TransportError
		upstreamErr  *llm.UpstreamError
		parseErr     *normalizer.ParseError
		exportErr    *export.ExportError
	)

	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration, "No API key is configured. Open settings and enter your API key."
	case errors.As(err, &authErr):
		return KindAuth, "The API key was rejected. Check that it is correct and still active."
	case errors.As(err, &quotaErr):
		if quotaErr.Reason == llm.QuotaBalance {
			return KindBalance, "The account balance is exhausted. Top up the account and try again."
		}
		return KindRateLimit, "Too many requests. Wait a moment and try again."
	case errors.As(err, &transportErr):
		return KindTransport, "Could not reach the inference service. Check your network connection; browser clients may also be blocked by CORS."
	case errors.As(err, &upstreamErr):
		return KindUpstream, "The inference service returned an error: " + upstreamErr.Message
	case errors.As(err, &parseErr):
		return KindParse, "The model returned malformed data. Please retry."
	case errors.Is(err, ErrIncompleteInput):
		return KindValidation, "Please fill in both the case facts and the claims."
	case errors.Is(err, ErrInvalidStyle), errors.Is(err, export.ErrUnsupportedFormat):
		return KindValidation, err.Error()
	case errors.Is(err, ErrSuperseded):
		return KindSuperseded, "A newer analysis was started; this result was discarded."
	case errors.Is(err, ErrEvidenceNotFound):
		return KindNotFound, "That evidence item no longer exists."
	case errors.Is(err, export.ErrNoReport):
		return KindNotFound, "There is no report yet. Run an analysis first."
	case errors.As(err, &exportErr):
		return KindExport, "Export failed, your report is unaffected: " + exportErr.Err.Error()
	}
	return KindInternal, "Something went wrong: " + err.Error()
}
