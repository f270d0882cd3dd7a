// internal/fakedemoqa/server.go

// Package fakedemoqa is an in-memory stand-in for the target's Account and BookStore
// APIs. Tests point API sessions at it instead of the live site.
package fakedemoqa

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
)

const passwordRuleMessage = "Passwords must have at least one non alphanumeric character, one digit ('0'-'9'), one uppercase ('A'-'Z'), one lowercase ('a'-'z'), one special character and Password must be eight characters or longer."

type user struct {
	id       string
	name     string
	password string
}

// Server serves the fake API.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	users  map[string]user
	calls  map[string]int
	secret []byte
	// failRegistration forces POST /Account/v1/User to answer with this status when non-zero.
	failRegistration int
	delay            time.Duration

	// Fake UI settings and session accounting, see page.go.
	captcha            bool
	loginErrorSelector string
	uiDelay            time.Duration
	openSessions       int
	sessionsOpened     int
}

// Books is the catalog served by GET /BookStore/v1/Books.
var Books = []map[string]any{
	{"isbn": "9781449325862", "title": "Git Pocket Guide", "author": "Richard E. Silverman", "pages": 234},
	{"isbn": "9781449331818", "title": "Learning JavaScript Design Patterns", "author": "Addy Osmani", "pages": 254},
	{"isbn": "9781449337711", "title": "Designing Evolvable Web APIs with ASP.NET", "author": "Glenn Block et al.", "pages": 238},
}

// New starts a fake server. Close it with Server.Close.
func New() *Server {
	s := &Server{
		users:              map[string]user{},
		calls:              map[string]int{},
		secret:             []byte(uuid.NewString()),
		loginErrorSelector: "#name",
		uiDelay:            20 * time.Millisecond,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Account/v1/User", s.register)
	mux.HandleFunc("POST /Account/v1/GenerateToken", s.generateToken)
	mux.HandleFunc("POST /Account/v1/Login", s.login)
	mux.HandleFunc("GET /Account/v1/User/{id}", s.getUser)
	mux.HandleFunc("GET /BookStore/v1/Books", s.books)
	s.Server = httptest.NewServer(s.count(mux))
	return s
}

// FailRegistration makes user registration answer with status. Zero restores normal behavior.
func (s *Server) FailRegistration(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRegistration = status
}

// SetDelay applies a delay before every response.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how often a route ("POST /Account/v1/User") was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Seed adds an existing account and returns its id.
func (s *Server) Seed(name, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user{id: uuid.NewString(), name: name, password: password}
	s.users[name] = u
	return u.id
}

// HasUser reports whether an account exists.
func (s *Server) HasUser(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[name]
	return ok
}

// PasswordOf returns the password an account was registered with.
func (s *Server) PasswordOf(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	return u.password, ok
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/Account/v1/User/") {
			route = r.Method + " /Account/v1/User/{id}"
		}
		s.mu.Lock()
		s.calls[route]++
		delay := s.delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		next.ServeHTTP(w, r)
	})
}

type credentials struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.UserName == "" || c.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "1200", "message": "UserName and Password required."})
		return
	}

	status, body := s.createUser(c.UserName, c.Password)
	writeJSON(w, status, body)
}

// createUser applies the registration rules shared by the API and the fake UI.
func (s *Server) createUser(name, password string) (int, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRegistration != 0 {
		return s.failRegistration, map[string]any{"message": "upstream unavailable"}
	}
	if !passwordOK(password) {
		return http.StatusBadRequest, map[string]any{"code": "1300", "message": passwordRuleMessage}
	}
	if _, exists := s.users[name]; exists {
		return http.StatusNotAcceptable, map[string]any{"code": "1204", "message": "User exists!"}
	}
	u := user{id: uuid.NewString(), name: name, password: password}
	s.users[name] = u
	return http.StatusCreated, map[string]any{"userID": u.id, "username": u.name, "books": []any{}}
}

// passwordOK mirrors the target's password policy.
func passwordOK(p string) bool {
	if len(p) < 8 {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	return lower && upper && digit && special
}

func (s *Server) lookup(c credentials) (user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.UserName]
	return u, ok && u.password == c.Password
}

func (s *Server) sign(u user) (string, time.Time) {
	exp := time.Now().Add(7 * 24 * time.Hour)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userName": u.name,
		"password": u.password,
		"iat":      time.Now().Unix(),
		"exp":      exp.Unix(),
	})
	signed, _ := tok.SignedString(s.secret)
	return signed, exp
}

func (s *Server) generateToken(w http.ResponseWriter, r *http.Request) {
	var c credentials
	_ = json.NewDecoder(r.Body).Decode(&c)
	u, ok := s.lookup(c)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"token": nil, "expires": nil, "status": "Failed", "result": "User authorization failed."})
		return
	}
	tok, exp := s.sign(u)
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires": exp.Format(time.RFC3339), "status": "Success", "result": "User authorized successfully."})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	_ = json.NewDecoder(r.Body).Decode(&c)
	u, ok := s.lookup(c)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "1207", "message": "User not found!"})
		return
	}
	tok, exp := s.sign(u)
	writeJSON(w, http.StatusOK, map[string]any{"userId": u.id, "username": u.name, "token": tok, "expires": exp.Format(time.RFC3339)})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.secret, nil }); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "1200", "message": "User not authorized!"})
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.id == id && u.name == claims["userName"] {
			writeJSON(w, http.StatusOK, map[string]any{"userId": u.id, "username": u.name, "books": []any{}})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "1207", "message": "User not found!"})
}

func (s *Server) books(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"books": Books})
}
