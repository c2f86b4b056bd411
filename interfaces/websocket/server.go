package websocket

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenValidator checks a bearer token and returns the user it belongs to.
// The relay treats credentials as opaque; whoever wires the server decides
// what a token means.
type TokenValidator func(token string) (userID string, err error)

// Server upgrades HTTP requests into relayed WebSocket connections.
type Server struct {
	hub           *Hub
	upgrader      websocket.Upgrader
	validateToken TokenValidator
	logger        *zap.Logger
}

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// In production, implement proper origin checking
			return true
		},
	}
}

// NewServer creates a new WebSocket server
func NewServer(hub *Hub, validateToken TokenValidator, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		validateToken: validateToken,
		logger:        logger,
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticateRequest(r)
	if err != nil {
		s.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(userID, s.hub, conn, s.logger)
	client.Start()

	s.logger.Info("New WebSocket connection established",
		zap.String("userID", userID),
		zap.String("connectionID", client.GetID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// authenticateRequest extracts the bearer token from the request and
// resolves it to a user ID.
func (s *Server) authenticateRequest(r *http.Request) (string, error) {
	// Query parameter first; browsers cannot set headers on WebSocket dials.
	token := r.URL.Query().Get("token")

	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		return "", errors.New("no authentication token provided")
	}

	userID, err := s.validateToken(token)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", errors.New("token resolved to empty user")
	}
	return userID, nil
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *Hub {
	return s.hub
}
