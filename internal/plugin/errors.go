package plugin

import (
	"context"
	"errors"
	"net"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/extract"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/llm"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/mapper"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
)

const ProviderID = "google"

// ErrPrecondition marks input the pipeline refuses before calling out.
var ErrPrecondition = errors.New("precondition failed")

// mapError turns a pipeline error into the payload the UI shows.
func mapError(phase, subphase string, err error) *errinfo.ErrorInfo {
	var info *errinfo.ErrorInfo
	switch {
	case errors.As(err, &info):
		return info
	case errors.Is(err, llm.ErrEgressBlocked):
		info = errinfo.EgressBlocked(phase, "provider endpoint not allowed")
	case errors.Is(err, llm.ErrUnexpectedShape),
		errors.Is(err, llm.ErrMalformedPayload),
		errors.Is(err, mapper.ErrFormat):
		info = errinfo.ResponseFormatInvalid(phase, err.Error())
	case errors.Is(err, llm.ErrUnauthorized):
		info = errinfo.ProviderAuthFailed(phase, err.Error())
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, llm.ErrRateLimited):
		info = errinfo.ProviderUnavailable(phase, err.Error())
	case errors.Is(err, context.Canceled):
		info = errinfo.UserCanceled(phase, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, llm.ErrTransport):
		info = errinfo.NetworkUnavailable(phase, err.Error())
	case errors.Is(err, extract.ErrNoSelection),
		errors.Is(err, extract.ErrIndexOutOfRange),
		errors.Is(err, extract.ErrDuplicateIndex):
		info = errinfo.PreconditionFailed(phase, err.Error(), errinfo.ActionSelectSegments)
	case errors.Is(err, prompt.ErrInvalidVariantCount),
		errors.Is(err, prompt.ErrEmptyText),
		errors.Is(err, ErrPrecondition):
		info = errinfo.PreconditionFailed(phase, err.Error())
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			info = errinfo.NetworkUnavailable(phase, err.Error())
		} else {
			info = errinfo.ValidationFailed(phase, err.Error())
		}
	}
	info.Subphase = subphase
	info.ProviderID = ProviderID
	return info
}
