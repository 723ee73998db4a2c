package services

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/shared"
)

// TokenService issues and verifies the signed capability tokens that gate
// media delivery, plus the session cookie used by browser clients. Tokens
// are self-contained; verification needs only the shared secret.
type TokenService struct {
	context.DefaultService

	secret          []byte
	watchBaseURL    string
	downloadBaseURL string

	// Expiry of download tokens. Long enough to start a transfer, short
	// enough that a leaked link goes stale quickly.
	DownloadTokenDuration time.Duration
	SessionCookieDuration time.Duration

	clockSvc *ClockService
}

// DeliveryClaims binds one content reference to one action for one caller.
type DeliveryClaims struct {
	ContentID string `json:"content_id"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	ApiKey    string `json:"api_key"`
	Action    string `json:"action"`
	jwt.RegisteredClaims
}

type sessionClaims struct {
	ApiKey string `json:"api_key"`
	jwt.RegisteredClaims
}

const TOKEN_SVC = "token_svc"

const defaultWatchMinutes = 60

var errTokenInvalid = errors.New("invalid or expired token")

func (svc TokenService) Id() string {
	return TOKEN_SVC
}

func (svc *TokenService) Configure(ctx *context.Context) error {
	svc.secret = []byte(os.Getenv("TOKEN_SECRET"))

	svc.watchBaseURL = os.Getenv("BASE_URL")
	if svc.watchBaseURL == "" {
		svc.watchBaseURL = "http://localhost:8000"
	}

	svc.downloadBaseURL = os.Getenv("DOWNLOAD_BASE_URL")
	if svc.downloadBaseURL == "" {
		svc.downloadBaseURL = svc.watchBaseURL
	}

	svc.DownloadTokenDuration = 5 * time.Minute
	svc.SessionCookieDuration = 30 * 24 * time.Hour

	return svc.DefaultService.Configure(ctx)
}

func (svc *TokenService) Start() error {
	svc.clockSvc = svc.Service(CLOCK_SVC).(*ClockService)

	if len(svc.secret) == 0 {
		return errors.New("TOKEN_SECRET is not set")
	}
	return nil
}

// ==================== DELIVERY TOKENS ====================

// Issue signs a capability token. Watch tokens live for the content's
// runtime in minutes, bounding a play session to roughly the length of the
// title; download tokens get the fixed short window.
func (svc *TokenService) Issue(contentID, title, kind, apiKey, action string, runtimeMinutes int) (string, error) {
	now := svc.clockSvc.Now()

	var ttl time.Duration
	if action == shared.ActionDownload {
		ttl = svc.DownloadTokenDuration
	} else {
		if runtimeMinutes <= 0 {
			runtimeMinutes = defaultWatchMinutes
		}
		ttl = time.Duration(runtimeMinutes) * time.Minute
	}

	claims := &DeliveryClaims{
		ContentID: contentID,
		Title:     title,
		Kind:      kind,
		ApiKey:    apiKey,
		Action:    action,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "wustream",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(svc.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return signed, nil
}

// IssueLinks produces the watch and download URLs handed back at catalog
// resolution time.
func (svc *TokenService) IssueLinks(req dto.IssueLinksRequest, apiKey string) (*dto.IssueLinksResponse, error) {
	watchToken, err := svc.Issue(req.ContentID, req.Title, req.Kind, apiKey, shared.ActionWatch, req.RuntimeMinutes)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to issue watch token")
	}

	downloadToken, err := svc.Issue(req.ContentID, req.Title, req.Kind, apiKey, shared.ActionDownload, 0)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to issue download token")
	}

	return &dto.IssueLinksResponse{
		WatchURL:    fmt.Sprintf("%s/watch/%s", svc.watchBaseURL, watchToken),
		DownloadURL: fmt.Sprintf("%s/download/%s", svc.downloadBaseURL, downloadToken),
	}, nil
}

// Verify fails closed: parse errors, bad signatures, elapsed expiry and
// missing claims all collapse into one generic rejection.
func (svc *TokenService) Verify(tokenString string) (*DeliveryClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeliveryClaims{}, svc.signingKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.clockSvc.Now),
	)
	if err != nil || !token.Valid {
		return nil, errTokenInvalid
	}

	claims, ok := token.Claims.(*DeliveryClaims)
	if !ok {
		return nil, errTokenInvalid
	}

	if claims.ContentID == "" || claims.Title == "" || claims.Kind == "" || claims.ApiKey == "" {
		return nil, errTokenInvalid
	}

	return claims, nil
}

func (svc *TokenService) signingKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return svc.secret, nil
}

// ==================== SESSION COOKIE ====================

// IssueSessionCookie signs a long-lived cookie value carrying the API key so
// browser clients do not resend the key on every request.
func (svc *TokenService) IssueSessionCookie(apiKey string) (string, error) {
	now := svc.clockSvc.Now()

	claims := &sessionClaims{
		ApiKey: apiKey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(svc.SessionCookieDuration)),
			Issuer:    "wustream",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(svc.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %v", err)
	}

	return signed, nil
}

func (svc *TokenService) VerifySessionCookie(cookie string) (string, error) {
	token, err := jwt.ParseWithClaims(cookie, &sessionClaims{}, svc.signingKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.clockSvc.Now),
	)
	if err != nil || !token.Valid {
		return "", errTokenInvalid
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || claims.ApiKey == "" {
		return "", errTokenInvalid
	}

	return claims.ApiKey, nil
}
