package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bij27/hohm.studio/internal/database"
	"github.com/bij27/hohm.studio/internal/models"
	"github.com/bij27/hohm.studio/internal/posture"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var userSessions = make(map[string]int)

var corsOrigin = "*"

// SetCORSOrigin configures the origin echoed in CORS headers.
func SetCORSOrigin(origin string) {
	if origin != "" {
		corsOrigin = origin
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func generateSessionID(email string) string {
	return email + "-" + time.Now().Format("20060102150405") + "-" + uuid.NewString()
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 255
}

func validatePassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}
	hasLetter := false
	hasNumber := false
	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}

func validateUsername(username string) bool {
	if len(username) < 3 || len(username) > 30 {
		return false
	}
	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	return usernameRegex.MatchString(username)
}

func getUserIDFromCookie(r *http.Request) (int, bool) {
	cookie, err := r.Cookie("session_id")
	if err != nil {
		return 0, false
	}
	userID, exists := userSessions[cookie.Value]
	return userID, exists
}

func enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie")
	w.Header().Set("Content-Type", "application/json")
}

func Register(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		http.Error(w, "All fields are required", http.StatusBadRequest)
		return
	}

	if !validateEmail(req.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if !validatePassword(req.Password) {
		http.Error(w, "Password must be 8-72 characters with at least one letter and one number", http.StatusBadRequest)
		return
	}

	if !validateUsername(req.Username) {
		http.Error(w, "Username must be 3-30 characters, alphanumeric and underscore only", http.StatusBadRequest)
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("Password hashing error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var userID int
	err = database.DB.QueryRowContext(r.Context(),
		"INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id",
		req.Email, req.Username, passwordHash,
	).Scan(&userID)
	if err != nil {
		log.Printf("Registration failed: %v", err)
		errMsg := err.Error()
		if strings.Contains(errMsg, "users_username_key") {
			http.Error(w, "Username already taken", http.StatusConflict)
		} else if strings.Contains(errMsg, "users_email_key") {
			http.Error(w, "Email already registered", http.StatusConflict)
		} else {
			http.Error(w, "User already exists", http.StatusConflict)
		}
		return
	}

	user := models.User{
		ID:        userID,
		Email:     req.Email,
		Username:  req.Username,
		CreatedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
	log.Printf("User registered: %s", req.Email)
}

func Login(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	if !validateEmail(req.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	var user models.User
	var storedHash string
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	err := database.DB.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1",
		req.Email,
	).Scan(&user.ID, &user.Email, &user.Username, &storedHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	} else if err != nil {
		log.Printf("Login error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password))
	if err != nil {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	for sessionKey, userID := range userSessions {
		if userID == user.ID {
			delete(userSessions, sessionKey)
		}
	}

	oldCookie, err := r.Cookie("session_id")
	if err == nil {
		delete(userSessions, oldCookie.Value)
		http.SetCookie(w, &http.Cookie{
			Name:     "session_id",
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	sessionID := generateSessionID(req.Email)
	userSessions[sessionID] = user.ID

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    sessionID,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
	log.Printf("User logged in: %s", req.Email)
}

func Logout(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	cookie, err := r.Cookie("session_id")
	if err == nil {
		delete(userSessions, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Logged out"))
}

func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, exists := getUserIDFromCookie(r)
	if !exists {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	err := database.DB.QueryRowContext(ctx,
		"SELECT id, email, username, created_at FROM users WHERE id = $1",
		userID,
	).Scan(&user.ID, &user.Email, &user.Username, &user.CreatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Printf("GetCurrentUser error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// GetSessions lists saved practice sessions. Логин не обязателен:
// anonymous clients see anonymous sessions only.
func GetSessions(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var owner *int
	if userID, exists := getUserIDFromCookie(r); exists {
		owner = &userID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	sessions, err := database.GetSessions(ctx, owner)
	if err != nil {
		log.Printf("GetSessions error: %v", err)
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []models.PracticeSession{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func validSessionID(id string) bool {
	if id == "" || len(id) > 50 {
		return false
	}
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 4
}

// SessionReview returns a saved session with its logs, the ranked
// common issues, and recommendation strings.
func SessionReview(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		DeleteSession(w, r)
		return
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("id")
	if !validSessionID(sessionID) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	session, err := database.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("SessionReview error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	logs, err := database.GetSessionLogs(ctx, sessionID)
	if err != nil {
		log.Printf("SessionReview logs error: %v", err)
	}
	if logs == nil {
		logs = []models.PostureLog{}
	}

	commonIssues := identifyCommonIssues(logs)
	recommendations := posture.Recommendations(commonIssues)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":         session,
		"logs":            logs,
		"common_issues":   commonIssues,
		"recommendations": recommendations,
	})
}

// identifyCommonIssues ranks issue names across all log entries by
// frequency, most common first.
func identifyCommonIssues(logs []models.PostureLog) []string {
	counts := make(map[string]int)
	for _, l := range logs {
		for _, issue := range l.Issues {
			counts[issue]++
		}
	}

	issues := make([]string, 0, len(counts))
	for issue := range counts {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		if counts[issues[i]] != counts[issues[j]] {
			return counts[issues[i]] > counts[issues[j]]
		}
		return issues[i] < issues[j]
	})
	return issues
}

func DeleteSession(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("id")
	if !validSessionID(sessionID) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := database.DeleteSession(ctx, sessionID)
	if err == sql.ErrNoRows {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Printf("Failed to delete session: %v", err)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Session deleted"))
	log.Printf("Session deleted: %s", sessionID)
}

func ClearSessions(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := database.ClearSessions(ctx); err != nil {
		log.Printf("Failed to clear sessions: %v", err)
		http.Error(w, "Failed to clear sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}
