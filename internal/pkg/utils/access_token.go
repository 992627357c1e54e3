package utils

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/onflow/flow-go-sdk"
)

const (
	walletClaimKey    string = "wallet"
	adminClaimKey     string = "admin"
	tokenCtxKey       string = "accessToken"
	participantCtxKey string = "participant"
)

var ErrInvalidAddress = errors.New("invalid flow address")

type AccessToken struct {
	Token    auth.Token
	RawToken string
}

func GetAccessToken(ctx *gin.Context) auth.Token {
	at := getAccessToken(ctx)
	return at.Token
}

func getAccessToken(ctx *gin.Context) AccessToken {
	at, _ := getCtxValue(tokenCtxKey, ctx).(AccessToken)
	return at
}

// GetParticipant returns the canonical wallet address of the caller.
func GetParticipant(ctx *gin.Context) string {
	participant, _ := getCtxValue(participantCtxKey, ctx).(string)
	return participant
}

func IsAdmin(ctx *gin.Context) bool {
	token := GetAccessToken(ctx)
	admin, _ := token.Claims[adminClaimKey].(bool)
	return admin
}

// WalletClaim extracts the wallet address a token was issued for.
func WalletClaim(token *auth.Token) (string, error) {
	wallet, _ := token.Claims[walletClaimKey].(string)
	return CanonicalAddress(wallet)
}

// CanonicalAddress normalises a Flow address to 0x followed by 16 lowercase
// hex digits. The empty address is rejected.
func CanonicalAddress(value string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(value)), "0x")
	if len(trimmed)%2 == 1 {
		trimmed = "0" + trimmed
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) == 0 || len(decoded) > flow.AddressLength {
		return "", ErrInvalidAddress
	}
	address := flow.BytesToAddress(decoded)
	if address == flow.EmptyAddress {
		return "", ErrInvalidAddress
	}
	return "0x" + address.Hex(), nil
}

func getCtxValue(key string, ctx *gin.Context) any {
	value, exists := ctx.Get(key)
	if !exists {
		ctx.AbortWithStatus(http.StatusInternalServerError)
	}
	return value
}

func SetAccessTokenCtx(token *AccessToken, ctx *gin.Context) {
	ctx.Set(tokenCtxKey, *token)
}

func SetParticipantCtx(participant string, ctx *gin.Context) {
	ctx.Set(participantCtxKey, participant)
}
