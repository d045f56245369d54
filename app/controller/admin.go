package controller

import (
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/service"
	"github.com/vibast-solutions/ms-go-account/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AdminController struct {
	adminService service.AdminService
}

func NewAdminController(adminService service.AdminService) *AdminController {
	return &AdminController{adminService: adminService}
}

func (c *AdminController) ListAccounts(ctx echo.Context) error {
	req, err := types.NewListAccountsRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind list accounts request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid query parameters"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	views, err := c.adminService.ListAccounts(ctx.Request().Context(), req)
	if err != nil {
		return respondError(ctx, "admin_list_accounts", err)
	}
	return ctx.JSON(http.StatusOK, httpdto.AccountListResponse{Accounts: views, Count: len(views)})
}

func (c *AdminController) FindAccountByEmail(ctx echo.Context) error {
	view, err := c.adminService.FindAccountByEmail(ctx.Request().Context(), ctx.Param("email"))
	if err != nil {
		return respondError(ctx, "admin_find_account", err)
	}
	return ctx.JSON(http.StatusOK, httpdto.AccountResponse{Account: view})
}

func (c *AdminController) SetPassword(ctx echo.Context) error {
	req, err := types.NewAdminSetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind admin set password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	if err = c.adminService.SetPassword(ctx.Request().Context(), req); err != nil {
		return respondError(ctx, "admin_set_password", err)
	}
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password updated"})
}

func (c *AdminController) DeleteAccount(ctx echo.Context) error {
	if err := c.adminService.DeleteAccount(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return respondError(ctx, "admin_delete_account", err)
	}
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "account deleted"})
}
