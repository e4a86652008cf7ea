package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/redecaete/matupiri/internal/account"
)

type personRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	id, err := s.accounts.CreatePerson(r.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		s.log.Warn("person account creation failed", zap.String("username", req.Username), zap.Error(err))
		respondError(w, http.StatusConflict, "account could not be created")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type collectiveRequest struct {
	CNPJ     string `json:"cnpj"`
	Contact  string `json:"contact"`
	Password string `json:"password"`
}

func (s *Server) handleCreateCollective(w http.ResponseWriter, r *http.Request) {
	var req collectiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CNPJ == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "cnpj and password are required")
		return
	}

	id, err := s.accounts.CreateCollective(r.Context(), req.CNPJ, req.Contact, req.Password)
	if err != nil {
		s.log.Warn("collective account creation failed", zap.String("cnpj", req.CNPJ), zap.Error(err))
		respondError(w, http.StatusConflict, "account could not be created")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleLoginPerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := s.accounts.AuthenticatePerson(r.Context(), req.Username, req.Password)
	s.respondLogin(w, acct, err)
}

func (s *Server) handleLoginCollective(w http.ResponseWriter, r *http.Request) {
	var req collectiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := s.accounts.AuthenticateCollective(r.Context(), req.CNPJ, req.Password)
	s.respondLogin(w, acct, err)
}

func (s *Server) respondLogin(w http.ResponseWriter, acct *account.Account, err error) {
	if eris.Is(err, account.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.log.Error("login failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

type profileRequest struct {
	OwnerID int64          `json:"owner_id"`
	Data    map[string]any `json:"data"`
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID == 0 || req.Data == nil {
		respondError(w, http.StatusBadRequest, "owner_id and data are required")
		return
	}

	id, err := s.accounts.SaveProfile(r.Context(), req.OwnerID, req.Data)
	if err != nil {
		s.log.Error("profile save failed", zap.Int64("owner_id", req.OwnerID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "profile save failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handleUpdateProfile rewrites one profile version. An ownership mismatch is
// a user-visible denial, not an internal error.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	profileID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID == 0 || req.Data == nil {
		respondError(w, http.StatusBadRequest, "owner_id and data are required")
		return
	}

	err = s.accounts.UpdateProfile(r.Context(), profileID, req.OwnerID, req.Data)
	if eris.Is(err, account.ErrNotOwner) {
		respondError(w, http.StatusForbidden, "profile belongs to another account")
		return
	}
	if err != nil {
		s.log.Error("profile update failed", zap.Int64("profile_id", profileID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner_id"), 10, 64)
	if err != nil || ownerID == 0 {
		respondError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	profiles, err := s.accounts.ListProfiles(r.Context(), ownerID)
	if err != nil {
		s.log.Error("profile list failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "profile list failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (s *Server) handleLoadProfile(w http.ResponseWriter, r *http.Request) {
	profileID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	data, err := s.accounts.LoadProfile(r.Context(), profileID)
	if err != nil {
		s.log.Error("profile load failed", zap.Int64("profile_id", profileID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "profile load failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}
