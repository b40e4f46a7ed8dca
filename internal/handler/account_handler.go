package handler

import (
	"context"
	"net/http"

	"github.com/finances/accounts-service/shared/cqrs"
	"github.com/finances/accounts-service/shared/middleware"
	"github.com/finances/accounts-service/shared/models"
	"github.com/finances/accounts-service/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	CreateAccount(context.Context, cqrs.CreateAccountCommand) (*models.Account, error)
	UpdateAccount(context.Context, cqrs.UpdateAccountCommand) (*models.Account, error)
	DeleteAccount(context.Context, cqrs.DeleteAccountCommand) error
	LinkAlias(context.Context, cqrs.LinkAliasCommand) (*models.Account, error)
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(context.Context, cqrs.GetAccountQuery) (*models.AccountView, error)
	ListAccounts(context.Context, cqrs.ListAccountsQuery) ([]models.Account, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

// AccountRequest is the body of both create and update.
type AccountRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	IBAN     string  `json:"iban" validate:"required,max=255"`
	Nickname string  `json:"nickname" validate:"required,max=255"`
	ParentID *string `json:"parent_id" validate:"omitempty,account_id"`
}

type LinkAliasRequest struct {
	AccountID string `json:"account_id" validate:"required,account_id"`
	AliasID   string `json:"alias_id" validate:"required,account_id"`
}

type ListAccountsRequest struct {
	Name     string `form:"name" validate:"max=255"`
	IBAN     string `form:"iban" validate:"max=255"`
	Nickname string `form:"nickname" validate:"max=255"`
	All      bool   `form:"all"`
}

type DeleteAccountResponse struct {
	OK bool `json:"ok"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	req, ok := bindAccountRequest(c)
	if !ok {
		return
	}

	account, err := h.commands.CreateAccount(c.Request.Context(), cqrs.CreateAccountCommand{
		Name:     req.Name,
		IBAN:     req.IBAN,
		Nickname: req.Nickname,
		ParentID: req.ParentID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	var req ListAccountsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	accounts, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{
		Name:           req.Name,
		IBAN:           req.IBAN,
		Nickname:       req.Nickname,
		IncludeAliases: req.All,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, accounts)
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := accountIDParam(c)
	if !ok {
		return
	}

	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{AccountID: id})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := accountIDParam(c)
	if !ok {
		return
	}
	req, ok := bindAccountRequest(c)
	if !ok {
		return
	}

	account, err := h.commands.UpdateAccount(c.Request.Context(), cqrs.UpdateAccountCommand{
		AccountID: id,
		Name:      req.Name,
		IBAN:      req.IBAN,
		Nickname:  req.Nickname,
		ParentID:  req.ParentID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := accountIDParam(c)
	if !ok {
		return
	}

	if err := h.commands.DeleteAccount(c.Request.Context(), cqrs.DeleteAccountCommand{AccountID: id}); err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteAccountResponse{OK: true})
}

func (h *AccountHandler) LinkAlias(c *gin.Context) {
	var req LinkAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	targetID, _ := utils.NormalizeAccountID(req.AccountID)
	aliasID, _ := utils.NormalizeAccountID(req.AliasID)

	alias, err := h.commands.LinkAlias(c.Request.Context(), cqrs.LinkAliasCommand{
		AccountID: targetID,
		AliasID:   aliasID,
	})
	if err != nil {
		log.Debug().Err(err).Str("account_id", targetID).Str("alias_id", aliasID).Msg("alias link refused")
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, alias)
}

func bindAccountRequest(c *gin.Context) (*AccountRequest, bool) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return nil, false
	}
	if req.ParentID != nil {
		normalized, _ := utils.NormalizeAccountID(*req.ParentID)
		req.ParentID = &normalized
	}
	return &req, true
}

// accountIDParam reads the :id path segment in canonical form, answering 400
// when it is not a UUID.
func accountIDParam(c *gin.Context) (string, bool) {
	id, ok := utils.NormalizeAccountID(c.Param("id"))
	if !ok {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid account id")
		return "", false
	}
	return id, true
}
