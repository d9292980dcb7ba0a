package regapi

import (
	"context"
	"strconv"
	"sync"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

// Static is an in-memory Registration API used when no base URL is configured.
// Registrations it accepts are reported as registered on later checks.
type Static struct {
	mu         sync.Mutex
	registered map[string]registration.RegisteredUser
	submitted  []registration.RegisterRequest
}

// NewStatic returns an empty in-memory API, optionally seeded with registered users.
func NewStatic(seed map[string]registration.RegisteredUser) *Static {
	s := &Static{registered: make(map[string]registration.RegisteredUser, len(seed))}
	for id, u := range seed {
		s.registered[id] = u
	}
	return s
}

// CheckRegistration reports users seeded or registered through this instance.
func (s *Static) CheckRegistration(_ context.Context, lineUserID string) (registration.RegistrationStatus, error) {
	if lineUserID == "" {
		return registration.RegistrationStatus{}, ErrMissingUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.registered[lineUserID]
	if !ok {
		return registration.RegistrationStatus{}, nil
	}
	return registration.RegistrationStatus{Registered: true, User: u}, nil
}

// Register records req and acknowledges it.
func (s *Static) Register(ctx context.Context, req registration.RegisterRequest) (registration.Ack, error) {
	if err := ctx.Err(); err != nil {
		return registration.Ack{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, req)
	s.registered[req.LineUserID] = userFromRequest(req)
	return registration.Ack{Status: "success"}, nil
}

// Submitted returns the requests received so far.
func (s *Static) Submitted() []registration.RegisterRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registration.RegisterRequest, len(s.submitted))
	copy(out, s.submitted)
	return out
}

func userFromRequest(req registration.RegisterRequest) registration.RegisteredUser {
	text := func(p *string) registration.Text {
		if p == nil {
			return ""
		}
		return registration.Text(*p)
	}
	u := registration.RegisteredUser{
		Name:          text(req.Name),
		LastName:      text(req.LastName),
		FirstName:     text(req.FirstName),
		LastFurigana:  text(req.LastFurigana),
		FirstFurigana: text(req.FirstFurigana),
		Email:         registration.Text(req.Email),
		BirthDate:     registration.Text(req.BirthDate),
		OldName:       registration.Text(req.OldName),
	}
	if req.GraduationYear != nil {
		u.GraduationYear = registration.Text(strconv.Itoa(*req.GraduationYear))
	}
	return u
}
