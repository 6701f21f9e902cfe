// Package auth implements the account registration and login channel.
//
// A client opens a connection, sends one JSON request record and reads one
// line holding a single status digit.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/collabocanvas/internal/log"
)

// Request actions.
const (
	ActionRegister = "REGISTER"
	ActionLogin    = "LOGIN"
)

const maxUsernameLength = 32

// Status is the single-digit reply to a request.
type Status int

// Reply codes.
const (
	StatusOK          Status = 0
	StatusBadUsername Status = 1
	StatusBadEmail    Status = 2
	StatusBadPassword Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadUsername:
		return "bad username"
	case StatusBadEmail:
		return "bad email"
	case StatusBadPassword:
		return "bad password"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseStatus reads a reply line.
func ParseStatus(line string) (Status, error) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < int(StatusOK) || n > int(StatusBadPassword) {
		return 0, errors.New("auth: invalid status reply " + strconv.Quote(line))
	}
	return Status(n), nil
}

// Request is one register or login attempt.
type Request struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Service validates requests against a Store.
type Service struct {
	store    Store
	cost     int
	validate *validator.Validate
}

// Option configures a Service.
type Option func(*Service)

// WithCost sets the bcrypt cost used for new accounts.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cost:     bcrypt.DefaultCost,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle dispatches req by action. Unknown actions are answered as a bad
// username.
func (s *Service) Handle(ctx context.Context, req Request) Status {
	switch strings.ToUpper(strings.TrimSpace(req.Action)) {
	case ActionRegister:
		return s.Register(ctx, req)
	case ActionLogin:
		return s.Login(ctx, req)
	default:
		log.Debug("unknown auth action", "action", req.Action)
		return StatusBadUsername
	}
}

// Register creates an account. Checks run username, email, password.
func (s *Service) Register(ctx context.Context, req Request) Status {
	if !s.validUsername(req.Username) {
		return StatusBadUsername
	}
	if _, exists, err := s.store.Lookup(ctx, req.Username); err != nil || exists {
		return StatusBadUsername
	}
	if !s.validEmail(req.Email) {
		return StatusBadEmail
	}
	if req.Password == "" {
		return StatusBadPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		log.Debug("password rejected", "user", req.Username, "err", err)
		return StatusBadPassword
	}

	err = s.store.Add(ctx, Credential{
		Username: req.Username,
		Email:    strings.TrimSpace(req.Email),
		Hash:     hash,
	})
	if err != nil {
		if !errors.Is(err, ErrUserExists) {
			log.Error("failed to store credential", "user", req.Username, "err", err)
		}
		return StatusBadUsername
	}

	log.Info("account registered", "user", req.Username)
	return StatusOK
}

// Login checks a username and password.
func (s *Service) Login(ctx context.Context, req Request) Status {
	if !s.validUsername(req.Username) {
		return StatusBadUsername
	}
	c, ok, err := s.store.Lookup(ctx, req.Username)
	if err != nil || !ok {
		return StatusBadUsername
	}
	if req.Password == "" {
		return StatusBadPassword
	}
	if err := bcrypt.CompareHashAndPassword(c.Hash, []byte(req.Password)); err != nil {
		return StatusBadPassword
	}
	return StatusOK
}

func (s *Service) validUsername(name string) bool {
	if err := s.validate.Var(name, "required,max="+strconv.Itoa(maxUsernameLength)); err != nil {
		return false
	}
	return !strings.ContainsFunc(name, unicode.IsSpace)
}

func (s *Service) validEmail(email string) bool {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
