package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"dukapay-billing-api/models"
	"dukapay-billing-api/services/auth"
	"dukapay-billing-api/utils"
)

type AuthHandler struct {
	jwtService *auth.JWTService
}

func NewAuthHandler(js *auth.JWTService) *AuthHandler {
	return &AuthHandler{jwtService: js}
}

// IssueToken handles POST /api/auth/token: backend callers trade the
// deployment shared key for a bearer token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	resp, err := h.jwtService.IssueToken(req.ClientID, req.SharedKey)
	if err != nil {
		if err == auth.ErrInvalidSharedKey {
			log.Printf("Token request with invalid shared key from %s (client_id=%s)", r.RemoteAddr, req.ClientID)
			utils.SendErrorResponse(w, http.StatusUnauthorized, "Invalid shared key")
			return
		}
		utils.SendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("Issued service token for client %s", req.ClientID)
	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Token issued",
		Data:    resp,
	})
}
