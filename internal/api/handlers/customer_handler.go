package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/utils"
)

type CustomerHandler struct {
	svc services.CustomerService
}

func NewCustomerHandler(svc services.CustomerService) *CustomerHandler {
	return &CustomerHandler{svc: svc}
}

// Register creates or replaces a customer record. Credentials are hashed
// before they are stored.
func (h *CustomerHandler) Register(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	var req services.RegisterCustomerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CustomerHandler.Register", "invalid request body", err))
		return
	}

	cust, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cust)
}

func (h *CustomerHandler) GetByPhone(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	phone := c.Query("phone")
	if phone == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CustomerHandler.GetByPhone", "missing phone", nil))
		return
	}
	cust, err := h.svc.FindByPhone(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}
