// Package identity resolves who the logged-in moderator is from a signed
// token and maps their role onto staff access.
package identity

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Identity is the resolved view of the logged-in user.
type Identity struct {
	// Ready is true once claims have been resolved.
	Ready bool

	// LoggedIn is true for a non-anonymous session.
	LoggedIn bool

	// Username is the user's chat handle, or "" when the claim is absent.
	// Trackers that need it arm only once it is present.
	Username string

	// Role is the raw role claim, or "".
	Role string

	// Staff is true when the role grants moderation access.
	Staff bool
}

// Claims is the expected token claim shape.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds verification settings.
type Config struct {
	// Secret is the HS256 signing secret.
	Secret string

	// Issuer, when set, is required to match the token's issuer claim.
	Issuer string

	// StaffRoles lists the roles granted moderation access.
	StaffRoles []string
}

// DefaultConfig returns defaults with the standard staff roles.
func DefaultConfig() Config {
	return Config{
		StaffRoles: []string{"moderator", "admin"},
	}
}

// Verifier validates tokens and maps claims onto an Identity.
type Verifier struct {
	config Config
}

// NewVerifier creates a Verifier with the given configuration.
func NewVerifier(config Config) *Verifier {
	if len(config.StaffRoles) == 0 {
		config.StaffRoles = DefaultConfig().StaffRoles
	}
	return &Verifier{config: config}
}

// Verify validates the token and returns the resolved identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var opts []jwt.ParserOption
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(v.config.Secret), nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		Ready:    true,
		LoggedIn: true,
		Username: claims.Username,
		Role:     claims.Role,
		Staff:    v.isStaff(claims.Role),
	}, nil
}

func (v *Verifier) isStaff(role string) bool {
	for _, staff := range v.config.StaffRoles {
		if role == staff {
			return true
		}
	}
	return false
}

// Provider yields the current identity.
type Provider interface {
	Identity() (Identity, error)
}

// TokenProvider resolves a fixed token through a Verifier.
type TokenProvider struct {
	verifier *Verifier
	token    string
}

// NewTokenProvider creates a provider for a session token.
func NewTokenProvider(verifier *Verifier, token string) *TokenProvider {
	return &TokenProvider{verifier: verifier, token: token}
}

// Identity implements Provider.
func (p *TokenProvider) Identity() (Identity, error) {
	if p.token == "" {
		// Anonymous session: ready, not logged in.
		return Identity{Ready: true}, nil
	}
	return p.verifier.Verify(p.token)
}

// Static is a fixed identity, for tests and development.
type Static struct {
	Value Identity
}

// Identity implements Provider.
func (s Static) Identity() (Identity, error) {
	return s.Value, nil
}
