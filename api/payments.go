package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/service/payment"
)

type PaymentHandler struct {
	service payment.PaymentUseCase
}

type processPaymentRequest struct {
	Method     string `json:"method" binding:"required"`
	CardType   string `json:"card_type"`
	CardNumber string `json:"card_number"`
	CardExpiry string `json:"card_expiry"`
}

func NewPaymentHandler(service payment.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments/:reservationId", h.process)
}

func (h *PaymentHandler) process(c *gin.Context) {
	id, ok := paramID(c, "reservationId")
	if !ok {
		return
	}
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	p, err := h.service.ProcessPayment(c.Request.Context(), payment.ProcessPaymentInput{
		ReservationID: id,
		UserID:        actorFrom(c).UserID,
		Method:        domain.PaymentMethod(req.Method),
		CardType:      req.CardType,
		CardNumber:    req.CardNumber,
		CardExpiry:    req.CardExpiry,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}
