package core

import "time"

// ConsultRequest starts or continues a consultation. SessionID empty means
// "start a new session", which requires ProblemDescription plus CodeContext
// or at least one attached file.
type ConsultRequest struct {
	SessionID          string            `json:"session_id,omitempty"`
	ProblemDescription string            `json:"problem_description,omitempty"`
	CodeContext        string            `json:"code_context,omitempty"`
	AttachedFiles      []string          `json:"attached_files,omitempty"`
	FileDescriptions   map[string]string `json:"file_descriptions,omitempty"`
	Question           string            `json:"specific_question"`
	AdditionalContext  string            `json:"additional_context,omitempty"`
	PreferredApproach  string            `json:"preferred_approach,omitempty"`
	// Timeout bounds the rate-limit wait plus the model call. Zero uses the
	// engine default.
	Timeout time.Duration `json:"-"`
}

// FileRequests pairs AttachedFiles with their optional descriptions.
func (r ConsultRequest) FileRequests() []FileRequest {
	if len(r.AttachedFiles) == 0 {
		return nil
	}
	reqs := make([]FileRequest, 0, len(r.AttachedFiles))
	seen := make(map[string]struct{}, len(r.AttachedFiles))
	for _, p := range r.AttachedFiles {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		reqs = append(reqs, FileRequest{Path: p, Description: r.FileDescriptions[p]})
	}
	return reqs
}

// ConsultResult is returned for every successful turn. FileErrors lists the
// attachments that could not be used; the turn still succeeded.
type ConsultResult struct {
	SessionID  string       `json:"session_id"`
	TurnNumber int          `json:"turn_number"`
	Answer     string       `json:"answer"`
	Files      []CachedFile `json:"files,omitempty"`
	FileErrors []FileError  `json:"file_errors,omitempty"`
}
