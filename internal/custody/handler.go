package custody

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/utils"
)

const invalidCreditAmount string = "error.custody.invalid-amount"

type balanceHandler struct {
	ledger Ledger
}

func RegisterRoutes(rg *gin.RouterGroup, ledger Ledger) {
	handler := balanceHandler{ledger: ledger}

	routes := rg.Group("/balance")
	routes.POST("/credit", middleware.VerifyAuthToken, middleware.RequireAdmin, handler.credit)
	routes.GET("/:token", middleware.VerifyAuthToken, handler.getBalance)
}

type BalanceResponse struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func (h balanceHandler) getBalance(c *gin.Context) {
	participant := utils.GetParticipant(c)
	token := c.Param("token")

	amount, err := h.ledger.Balance(c.Request.Context(), participant, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		Account: participant,
		Token:   token,
		Amount:  strconv.FormatUint(amount, 10),
	})
}

type CreditRequest struct {
	Account string `json:"account" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// credit mints test funds into an account.
func (h balanceHandler) credit(c *gin.Context) {
	body := CreditRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	account, err := utils.CanonicalAddress(body.Account)
	if err != nil {
		c.JSON(http.StatusBadRequest, reject.RequestValidationProblem())
		return
	}
	amount, err := strconv.ParseUint(body.Amount, 10, 64)
	if err == nil {
		err = h.ledger.Credit(c.Request.Context(), account, body.Token, amount)
	}
	if errors.Is(err, ErrInvalidAmount) || errors.Is(err, strconv.ErrSyntax) || errors.Is(err, strconv.ErrRange) {
		c.JSON(http.StatusBadRequest, reject.NewProblem().
			WithTitle("Credit amount must be a positive integer").
			WithStatus(http.StatusBadRequest).
			WithCode(invalidCreditAmount).
			Build())
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}

	c.Status(http.StatusNoContent)
}
