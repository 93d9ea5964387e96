package fakeapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ukydev/fleet-console/internal/models"
)

// AddUser stores an account directly, bypassing validation. It is meant for
// seeding.
func (s *Server) AddUser(u models.User, password string) (models.User, error) {
	hash, err := s.issuer.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	now := s.stamp()
	u.CreatedAt, u.UpdatedAt = now, now
	s.accounts = append(s.accounts, &account{user: u, passwordHash: hash})
	return u, nil
}

// accountByID returns the account with id. Callers hold s.mu.
func (s *Server) accountByID(id string) *account {
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (s *Server) accountByName(username string) *account {
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.user.Username, username) {
			return acc
		}
	}
	return nil
}

func (s *Server) accountByEmail(email string) *account {
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.user.Email, email) {
			return acc
		}
	}
	return nil
}

func validateAccount(username, email, password string) string {
	switch {
	case len(username) < 3:
		return "username must be at least 3 characters long"
	case len(username) > 50:
		return "username must be less than 50 characters"
	case !strings.Contains(email, "@") || !strings.Contains(email, "."):
		return "invalid email format"
	case len(password) < 8:
		return "password must be at least 8 characters long"
	}
	return ""
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	s.mu.RLock()
	acc := s.accountByName(req.Username)
	var user models.User
	var hash string
	if acc != nil {
		user, hash = acc.user, acc.passwordHash
	}
	s.mu.RUnlock()

	if acc == nil || !s.issuer.CheckPassword(req.Password, hash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.issuer.GenerateToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{Success: true, Message: "Login successful", Token: token, User: user})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := validateAccount(req.Username, req.Email, req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, status, msg := s.insertAccount(models.User{
		Username: req.Username,
		Email:    req.Email,
		Role:     models.RoleUser,
		Profile:  req.Profile,
	}, req.Password)
	if status != http.StatusCreated {
		writeError(w, status, msg)
		return
	}

	token, err := s.issuer.GenerateToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusCreated, models.AuthResponse{Success: true, Message: "Registration successful", Token: token, User: user})
}

func (s *Server) insertAccount(u models.User, password string) (models.User, int, string) {
	hash, err := s.issuer.HashPassword(password)
	if err != nil {
		return models.User{}, http.StatusInternalServerError, "Failed to hash password"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountByName(u.Username) != nil {
		return models.User{}, http.StatusConflict, "Username already exists"
	}
	if s.accountByEmail(u.Email) != nil {
		return models.User{}, http.StatusConflict, "Email already exists"
	}
	u.ID = newID()
	now := s.stamp()
	u.CreatedAt, u.UpdatedAt = now, now
	s.accounts = append(s.accounts, &account{user: u, passwordHash: hash})
	return u, http.StatusCreated, ""
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetUserFromContext(r.Context())
	s.mu.RLock()
	acc := s.accountByID(claims.UserID)
	s.mu.RUnlock()
	if acc == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acc.user})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	users := make([]models.User, 0, len(s.accounts))
	for _, acc := range s.accounts {
		users = append(users, acc.user)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var draft models.UserDraft
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if draft.Username == "" {
		draft.Username, _, _ = strings.Cut(draft.Email, "@")
	}
	if draft.Role == "" {
		draft.Role = models.RoleDriver
	}
	if !models.IsValidRole(draft.Role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if msg := validateAccount(draft.Username, draft.Email, draft.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, status, msg := s.insertAccount(models.User{
		Username: draft.Username,
		Email:    draft.Email,
		Role:     draft.Role,
		Profile:  draft.Profile,
	}, draft.Password)
	if status != http.StatusCreated {
		writeError(w, status, msg)
		return
	}
	s.hub.Broadcast(EventUserUpdated, user)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type userPatch struct {
	Username         *string      `json:"username"`
	Email            *string      `json:"email"`
	Password         *string      `json:"password"`
	Role             *models.Role `json:"role"`
	Name             *string      `json:"name"`
	Phone            *string      `json:"phone"`
	Address          *string      `json:"address"`
	LicenseNumber    *string      `json:"licenseNumber"`
	EmergencyContact *string      `json:"emergencyContact"`
}

func (s *Server) editUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetUserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	if claims.UserID != id && !claims.Role.Can(models.CapManageUsers) {
		writeError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	var patch userPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if patch.Role != nil && *patch.Role != "" && !claims.Role.Can(models.CapManageUsers) {
		writeError(w, http.StatusForbidden, "Only managers can change roles")
		return
	}
	if patch.Role != nil && *patch.Role != "" && !models.IsValidRole(*patch.Role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	var hash string
	if patch.Password != nil && *patch.Password != "" {
		if len(*patch.Password) < 8 {
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters long")
			return
		}
		h, err := s.issuer.HashPassword(*patch.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}
		hash = h
	}

	s.mu.Lock()
	acc := s.accountByID(id)
	if acc == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if patch.Username != nil && *patch.Username != "" && !strings.EqualFold(*patch.Username, acc.user.Username) {
		if s.accountByName(*patch.Username) != nil {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "Username already exists")
			return
		}
		acc.user.Username = *patch.Username
	}
	if patch.Email != nil && *patch.Email != "" && !strings.EqualFold(*patch.Email, acc.user.Email) {
		if s.accountByEmail(*patch.Email) != nil {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "Email already exists")
			return
		}
		acc.user.Email = *patch.Email
	}
	if patch.Role != nil && *patch.Role != "" {
		acc.user.Role = *patch.Role
	}
	setString(&acc.user.Name, patch.Name)
	setString(&acc.user.Phone, patch.Phone)
	setString(&acc.user.Address, patch.Address)
	setString(&acc.user.LicenseNumber, patch.LicenseNumber)
	setString(&acc.user.EmergencyContact, patch.EmergencyContact)
	if hash != "" {
		acc.passwordHash = hash
	}
	acc.user.UpdatedAt = s.stamp()
	user := acc.user
	s.mu.Unlock()

	s.hub.Broadcast(EventUserUpdated, user)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, acc := range s.accounts {
		if acc.user.ID == id {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "User not found")
}
