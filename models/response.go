package models

// ErrorResponse is the body of non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StartResponse is returned by the generation start endpoints. Business
// failures are reported with Success=false and a reason in Error.
type StartResponse struct {
	Success    bool   `json:"success"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TryOnStartResponse is returned by POST /try-ons.
type TryOnStartResponse struct {
	Success bool   `json:"success"`
	TryOnID string `json:"try_on_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// AuthResponse is returned by signup, login and the Google callback.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// CreditsResponse is the caller's balance after the weekly reset is applied.
type CreditsResponse struct {
	Credits
	Available int `json:"available"`
}

// ItemPage is one page of the catalog.
type ItemPage struct {
	Items       []Item `json:"items"`
	Total       int64  `json:"total"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
}
