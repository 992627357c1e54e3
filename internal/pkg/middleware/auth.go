package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	accessTokenRequired string = "error.token.required"
	accessTokenInvalid  string = "error.token.invalid"

	tokenQueryParam = "access_token"
)

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

var verifier TokenVerifier

// UseVerifier sets the verifier VerifyAuthToken checks tokens with.
func UseVerifier(v TokenVerifier) {
	verifier = v
}

// VerifyAuthToken authenticates the caller and stores their wallet address in
// the request context. Browsers cannot set headers on websocket upgrades, so
// the token may also come as a query parameter.
func VerifyAuthToken(c *gin.Context) {
	rawToken := bearerToken(c)
	if rawToken == "" || verifier == nil {
		log.Warn().Msg("Token missing: 401")
		c.AbortWithStatusJSON(
			http.StatusUnauthorized,
			reject.NewProblem().
				WithTitle("Missing access token").
				WithStatus(http.StatusUnauthorized).
				WithCode(accessTokenRequired).
				Build())
		return
	}

	token, err := verifier.VerifyIDToken(c.Request.Context(), rawToken)
	if err != nil {
		log.Warn().Err(err).Msg("Error verifying token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, invalidTokenProblem(err.Error()))
		return
	}

	participant, err := utils.WalletClaim(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, invalidTokenProblem("token carries no wallet address"))
		return
	}

	utils.SetAccessTokenCtx(&utils.AccessToken{Token: *token, RawToken: rawToken}, c)
	utils.SetParticipantCtx(participant, c)
	c.Next()
}

// RequireAdmin must run after VerifyAuthToken.
func RequireAdmin(c *gin.Context) {
	if !utils.IsAdmin(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, reject.ForbiddenProblem())
		return
	}
	c.Next()
}

func invalidTokenProblem(detail string) reject.Problem {
	return reject.NewProblem().
		WithTitle("Cannot verify access token").
		WithStatus(http.StatusUnauthorized).
		WithCode(accessTokenInvalid).
		WithDetail(detail).
		Build()
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query(tokenQueryParam)
}

// DevVerifier accepts tokens of the form "<wallet>" or "<wallet>:admin"
// without any signature. It is only meant for local runs with AUTH_DISABLED.
type DevVerifier struct{}

func (DevVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	wallet, role, _ := strings.Cut(idToken, ":")
	wallet, err := utils.CanonicalAddress(wallet)
	if err != nil {
		return nil, err
	}
	return &auth.Token{
		Subject: wallet,
		Claims: map[string]interface{}{
			"wallet": wallet,
			"admin":  role == "admin",
		},
	}, nil
}
