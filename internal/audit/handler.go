package audit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
)

const gameNotSettled string = "error.audit.not-settled"

type auditHandler struct {
	auditor *Auditor
}

func RegisterRoutes(rg *gin.RouterGroup, auditor *Auditor) {
	handler := auditHandler{auditor: auditor}

	routes := rg.Group("/audit")
	routes.GET("/root", handler.getRoot)
	routes.GET("/proof/:id", handler.getProof)
}

func (h auditHandler) getRoot(c *gin.Context) {
	root, err := h.auditor.Root(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}

	c.JSON(http.StatusOK, root)
}

func (h auditHandler) getProof(c *gin.Context) {
	gameId, parseErr := strconv.ParseUint(c.Param("id"), 10, 64)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return
	}

	proof, err := h.auditor.Proof(c.Request.Context(), gameId)
	if errors.Is(err, ErrNotSettled) {
		c.JSON(http.StatusNotFound, reject.NewProblem().
			WithTitle("Game is not settled").
			WithStatus(http.StatusNotFound).
			WithCode(gameNotSettled).
			Build())
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}

	c.JSON(http.StatusOK, proof)
}
