package services

import (
	"fmt"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/jwt"
	"github.com/getmentor/consultations-api/pkg/logger"
	"go.uber.org/zap"
)

// SessionService mints actor session tokens. Identity is owned by the calling
// platform; it vouches for the actor with the service API token.
type SessionService struct {
	config       *config.Config
	tokenManager *jwt.TokenManager
}

// NewSessionService creates a new SessionService
func NewSessionService(cfg *config.Config) *SessionService {
	return &SessionService{
		config: cfg,
		tokenManager: jwt.NewTokenManager(
			cfg.Auth.JWTSecret,
			cfg.Auth.JWTIssuer,
			cfg.Auth.SessionTTLHours,
		),
	}
}

// IssueSession signs a token for the actor described by payload
func (s *SessionService) IssueSession(payload *models.IssueSessionPayload) (*models.IssueSessionResponse, error) {
	token, err := s.tokenManager.GenerateToken(payload.ActorID, string(payload.Role), payload.Name)
	if err != nil {
		logger.Error("Failed to generate session token",
			zap.String("actor_id", payload.ActorID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	// Read the claims back so the response matches what the middleware will see
	claims, err := s.tokenManager.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to read back session token: %w", err)
	}

	logger.Info("Actor session issued",
		zap.String("actor_id", claims.ActorID),
		zap.String("role", claims.Role))

	return &models.IssueSessionResponse{
		Token: token,
		Session: models.ActorSession{
			ActorID:   claims.ActorID,
			Role:      models.ActorRole(claims.Role),
			Name:      claims.Name,
			ExpiresAt: claims.ExpiresAt.Unix(),
			IssuedAt:  claims.IssuedAt.Unix(),
		},
		ExpiresIn: s.GetSessionTTL(),
	}, nil
}

// GetSessionTTL returns the session lifetime in seconds
func (s *SessionService) GetSessionTTL() int {
	return s.config.Auth.SessionTTLHours * 3600
}

// GetTokenManager returns the manager the session middleware validates with
func (s *SessionService) GetTokenManager() *jwt.TokenManager {
	return s.tokenManager
}
