package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/repository"
)

const jwtExpDays = 365

// DeviceService handles device registration and token validation
type DeviceService struct {
	deviceRepo *repository.DeviceRepository
	jwtSecret  string
}

// NewDeviceService creates a new device service
func NewDeviceService(deviceRepo *repository.DeviceRepository, jwtSecret string) *DeviceService {
	return &DeviceService{
		deviceRepo: deviceRepo,
		jwtSecret:  jwtSecret,
	}
}

// Register creates a new anonymous device and mints its bearer token
func (s *DeviceService) Register(ctx context.Context, pushToken *string) (*models.Device, error) {
	deviceID := uuid.New().String()

	token, err := s.GenerateJWT(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	device := &models.Device{
		ID:        deviceID,
		Token:     token,
		PushToken: pushToken,
		CreatedAt: time.Now(),
	}
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

// SetPushToken attaches or clears the APNs token for a device
func (s *DeviceService) SetPushToken(ctx context.Context, deviceID string, pushToken *string) error {
	return s.deviceRepo.UpdatePushToken(ctx, deviceID, pushToken)
}

// GenerateJWT generates a JWT token for a device
func (s *DeviceService) GenerateJWT(deviceID string) (string, error) {
	claims := jwt.MapClaims{
		"device_id": deviceID,
		"exp":       time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the device ID
func (s *DeviceService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	deviceID, ok := claims["device_id"].(string)
	if !ok {
		return "", fmt.Errorf("device_id not found in token")
	}
	return deviceID, nil
}
