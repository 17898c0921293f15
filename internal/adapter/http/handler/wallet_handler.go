package handler

import (
	"fmt"
	"strconv"
	"strings"

	"wallet-registry/internal/adapter/http/dto"
	"wallet-registry/internal/core/domain"
	"wallet-registry/internal/core/ports"
	"wallet-registry/pkg/apperror"
	"wallet-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler exposes the wallet resource over REST.
type WalletHandler struct {
	svc      ports.WalletService
	maint    ports.IndexMaintainer
	basePath string
}

// NewWalletHandler creates a WalletHandler. basePath prefixes Location headers.
// maint may be nil, in which case Reindex is not routed.
func NewWalletHandler(svc ports.WalletService, maint ports.IndexMaintainer, basePath string) *WalletHandler {
	return &WalletHandler{
		svc:      svc,
		maint:    maint,
		basePath: strings.TrimRight(basePath, "/"),
	}
}

// Create handles POST {base}/wallets.
func (h *WalletHandler) Create(c *gin.Context) {
	req, ok := bindWallet(c)
	if !ok {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), req.ToDomain())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Alert(c, result.Notification.Key(), result.Notification.Param())
	response.Created(c, fmt.Sprintf("%s/wallets/%d", h.basePath, result.Notification.ID), result.Wallet)
}

// Update handles PUT {base}/wallets.
func (h *WalletHandler) Update(c *gin.Context) {
	req, ok := bindWallet(c)
	if !ok {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), req.ToDomain())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Alert(c, result.Notification.Key(), result.Notification.Param())
	response.OK(c, result.Wallet)
}

// List handles GET {base}/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	wallets, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallets)
}

// Get handles GET {base}/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	lookup, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !lookup.Found {
		response.Error(c, apperror.ErrNotFound(domain.EntityName))
		return
	}
	response.OK(c, lookup.Wallet)
}

// Delete handles DELETE {base}/wallets/:id.
func (h *WalletHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Alert(c, result.Notification.Key(), result.Notification.Param())
	response.Empty(c)
}

// Search handles GET {base}/_search/wallets?query=.
func (h *WalletHandler) Search(c *gin.Context) {
	query, present := c.GetQuery("query")
	if !present {
		response.Error(c, apperror.ErrMissingQuery())
		return
	}

	wallets, err := h.svc.Search(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallets)
}

// Reindex handles POST {base}/_reindex/wallets.
func (h *WalletHandler) Reindex(c *gin.Context) {
	n, err := h.maint.ReindexAll(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	response.OK(c, dto.ReindexResponse{Indexed: n})
}

func bindWallet(c *gin.Context) (dto.WalletRequest, bool) {
	var req dto.WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return req, false
	}
	dto.TrimStruct(&req)
	return req, true
}

func pathID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.Error(c, apperror.ErrInvalidID(raw))
		return 0, false
	}
	return id, true
}
