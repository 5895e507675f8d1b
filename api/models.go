package api

// PuzzleSummary is one entry of GET /puzzles.
type PuzzleSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// PuzzleDetailResponse is returned from GET /puzzle/{id}. At most one of the
// artifact fields is set, chosen by the puzzle type.
type PuzzleDetailResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Email       string `json:"email,omitempty"`
	JSCode      string `json:"js_code,omitempty"`
	PNGBase64   string `json:"png_b64,omitempty"`
}

// SubmitAnswerRequest is the JSON body for POST /submit_answer/{id}.
type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

// SubmitAnswerResponse is returned from POST /submit_answer/{id}.
type SubmitAnswerResponse struct {
	Correct    bool   `json:"correct"`
	RewardFlag string `json:"reward_flag,omitempty"`
}

// SubmitFlagRequest is the JSON body for POST /submit_flag.
type SubmitFlagRequest struct {
	Flag string `json:"flag"`
}

// SubmitFlagResponse is returned from POST /submit_flag. Already and Flag are
// omitted when the flag is not valid.
type SubmitFlagResponse struct {
	Valid   bool   `json:"valid"`
	Already *bool  `json:"already,omitempty"`
	Flag    string `json:"flag,omitempty"`
}

// CheckVaultResponse is returned from GET /check_vault.
type CheckVaultResponse struct {
	Opened    bool     `json:"opened"`
	FinalFlag string   `json:"final_flag,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}

// ResetResponse is returned from DELETE /session.
type ResetResponse struct {
	Reset bool `json:"reset"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
