package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeRelayError writes the relay's {message, detail} error body.
func writeRelayError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, RelayErrorResponse{Message: message, Detail: detail})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RelayErrorResponse is the error body of the relay endpoints. The relay
// client turns it into the message shown next to a failed key.
type RelayErrorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SessionResponse carries the CSRF token for the caller's session.
type SessionResponse struct {
	Token string `json:"token"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// KeysResponse is the JSON view of the collection. Secrets are masked and
// passwords omitted.
type KeysResponse struct {
	Keys     []KeyResponse    `json:"keys"`
	Totals   *UsageResponse   `json:"totals,omitempty"`
	Cooldown CooldownResponse `json:"cooldown"`
}

// KeyResponse is the JSON representation of one stored key.
type KeyResponse struct {
	ID       string         `json:"id"`
	Key      string         `json:"key"`
	Email    string         `json:"email,omitempty"`
	Usage    *UsageResponse `json:"usage,omitempty"`
	Error    string         `json:"error,omitempty"`
	Checking bool           `json:"checking"`
}

// UsageResponse is character usage with its derived percentage and level.
type UsageResponse struct {
	CharacterCount int64   `json:"character_count"`
	CharacterLimit int64   `json:"character_limit"`
	Percent        float64 `json:"percent"`
	Level          string  `json:"level"`
}

// CooldownResponse reports the global check cooldown.
type CooldownResponse struct {
	Cooling   bool `json:"cooling"`
	Remaining int  `json:"remaining"`
}

func toUsageResponse(u model.Usage) *UsageResponse {
	return &UsageResponse{
		CharacterCount: u.CharacterCount,
		CharacterLimit: u.CharacterLimit,
		Percent:        u.Percent(),
		Level:          string(u.Level()),
	}
}

// toKeysResponse projects a state snapshot for the API.
func toKeysResponse(s *application.AppState) KeysResponse {
	resp := KeysResponse{
		Keys: make([]KeyResponse, 0, len(s.Keys)),
		Cooldown: CooldownResponse{
			Cooling:   s.Cooldown.IsCooling(),
			Remaining: s.Cooldown.Remaining,
		},
	}

	for _, k := range s.Keys {
		kr := KeyResponse{
			ID:       k.ID,
			Key:      k.MaskedSecret(),
			Email:    k.Email,
			Error:    k.LastError,
			Checking: s.Busy[k.ID],
		}
		if k.Usage != nil {
			kr.Usage = toUsageResponse(*k.Usage)
		}
		resp.Keys = append(resp.Keys, kr)
	}

	if used, limit, ok := s.Keys.Totals(); ok {
		resp.Totals = toUsageResponse(model.Usage{CharacterCount: used, CharacterLimit: limit})
	}
	return resp
}
