package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/treasurydash/ledgersync/internal/provider"
	"github.com/treasurydash/ledgersync/internal/service"
)

type syncReq struct {
	WalletID      *uint64 `json:"wallet_id"`
	ForceFullSync bool    `json:"force_full_sync"`
}

func syncHandler(svc *service.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncReq
		// empty body means "sync everything incrementally"
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
		}
		summary, err := svc.Sync(c, service.SyncRequest{
			WalletID:      req.WalletID,
			ForceFullSync: req.ForceFullSync,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrNoWallets) || errors.Is(err, provider.ErrNoProviderConfigured) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
	}
}

func walletsHandler(svc *service.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallets, err := svc.Wallets(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, wallets)
	}
}

func transactionsHandler(svc *service.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID, _ := strconv.ParseUint(c.DefaultQuery("wallet_id", "0"), 10, 64)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		txs, err := svc.Transactions(c, walletID, limit)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrNoWallets) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}
