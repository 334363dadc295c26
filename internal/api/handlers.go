package api

import (
	"net/http"

	"hierarchical-kvstore/internal/node"
	"hierarchical-kvstore/internal/txn"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler fronts one node's RPC surface.
type Handler struct {
	node   *node.Node
	logger *logrus.Entry
}

// NewHandler builds a Handler for n.
func NewHandler(n *node.Node) *Handler {
	return &Handler{node: n, logger: n.Logger()}
}

// Register mounts the four RPC endpoints (§6.1) on r.
func (h *Handler) Register(r *gin.Engine) {
	rpc := r.Group("/rpc")
	rpc.POST("/execute-transaction", h.ExecuteTransaction)
	rpc.POST("/propagate-update", h.PropagateUpdate)
	rpc.POST("/sync-updates", h.SyncUpdates)
	rpc.GET("/node-status", h.GetNodeStatus)
}

// ExecuteTransaction handles POST /rpc/execute-transaction.
//
// The response envelope always carries success/results or
// success/error_message (§7's "user-visible behaviour") — the HTTP
// status is 200 either way; a non-2xx status is reserved for requests
// that couldn't even be parsed.
func (h *Handler) ExecuteTransaction(c *gin.Context) {
	var t txn.Transaction
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.node.Executor().Execute(c.Request.Context(), t)
	if err != nil {
		h.logger.WithError(err).Warn("transaction execution failed")
	}
	c.JSON(http.StatusOK, resp)
}

// PropagateUpdate handles POST /rpc/propagate-update: a single eagerly
// replicated item from a core peer, or from this node's own tier
// primary.
func (h *Handler) PropagateUpdate(c *gin.Context) {
	var n txn.UpdateNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		ack txn.AckResponse
		err error
	)
	switch {
	case h.node.Core() != nil:
		err = h.node.Core().Receive(n.Data)
		ack = txn.AckResponse{Success: err == nil}
	case h.node.Passive() != nil:
		ack, err = h.node.Passive().HandlePropagate(n)
	}
	if err != nil {
		h.logger.WithError(err).WithField("key", n.Data.Key).Warn("propagated update rejected")
		ack.Message = err.Error()
	}
	c.JSON(http.StatusOK, ack)
}

// SyncUpdates handles POST /rpc/sync-updates: a count- or
// time-triggered batch from upstream. Only valid at a tier-1/tier-2
// primary; a core node or a backup rejects it.
func (h *Handler) SyncUpdates(c *gin.Context) {
	var group txn.UpdateGroup
	if err := c.ShouldBindJSON(&group); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.node.Passive() == nil {
		c.JSON(http.StatusOK, txn.AckResponse{Success: false, Message: "sync rejected: not a tier primary"})
		return
	}

	ack, err := h.node.Passive().HandleSync(c.Request.Context(), group)
	if err != nil {
		h.logger.WithError(err).WithField("source_node", group.SourceNode).Warn("sync rejected")
	}
	c.JSON(http.StatusOK, ack)
}

// GetNodeStatus handles GET /rpc/node-status: identity, tier, and the
// node's complete current data set.
func (h *Handler) GetNodeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, txn.NodeStatus{
		NodeID:      h.node.NodeID(),
		Tier:        h.node.Config().Tier,
		CurrentData: h.node.Store().GetAll(),
	})
}
