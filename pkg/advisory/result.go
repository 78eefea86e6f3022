package advisory

import "time"

// NoticeCode tags non-fatal conditions surfaced with a result.
type NoticeCode string

const (
	NoticeDataInsufficient    NoticeCode = "data_insufficient"
	NoticeProviderUnavailable NoticeCode = "provider_unavailable"
	NoticeLowConfidence       NoticeCode = "low_confidence"
	NoticeNoGuidance          NoticeCode = "no_guidance"
)

// Notice is a human-readable flag attached to a result; it is not an error.
type Notice struct {
	Code       NoticeCode `json:"code"`
	MessageKey string     `json:"message_key"`
	Text       string     `json:"text,omitempty"`
}

// AdvisoryResult is the ranked, localized output of one request.
type AdvisoryResult struct {
	RequestID    string       `json:"request_id"`
	Language     string       `json:"language"`
	Actions      []Action     `json:"actions"`
	Notices      []Notice     `json:"notices,omitempty"`
	SessionDelta SessionDelta `json:"session_context_delta"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// Top returns the highest-ranked action, if any.
func (r AdvisoryResult) Top() (Action, bool) {
	if len(r.Actions) == 0 {
		return Action{}, false
	}
	return r.Actions[0].Clone(), true
}

// HasNotice reports whether a notice with the given code is attached.
func (r AdvisoryResult) HasNotice(code NoticeCode) bool {
	for _, n := range r.Notices {
		if n.Code == code {
			return true
		}
	}
	return false
}
