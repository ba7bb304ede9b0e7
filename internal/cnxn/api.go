package cnxn

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/concave-dev/ensemble/internal/metrics"
	"github.com/concave-dev/ensemble/internal/node"
	"github.com/concave-dev/ensemble/internal/version"
	"github.com/gin-gonic/gin"
)

// maxValueSize bounds a single PUT body.
const maxValueSize = 1 << 20

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Leader     bool   `json:"leader"`
	LeaderID   string `json:"leaderId,omitempty"`
	LeaderAddr string `json:"leaderAddr,omitempty"`
	Secure     bool   `json:"secure"`
	Keys       int    `json:"keys"`
	TickTime   string `json:"tickTime"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	LeaderID   string `json:"leaderId,omitempty"`
	LeaderAddr string `json:"leaderAddr,omitempty"`
}

type handler struct {
	node    Node
	secure  bool
	started time.Time
}

func newRouter(factory string, secure bool, n Node) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(loggingMiddleware())
	router.Use(metricsMiddleware(factory))
	router.Use(gin.Recovery())

	h := &handler{node: n, secure: secure, started: time.Now()}

	v1 := router.Group("/v1")
	v1.GET("/status", h.status)
	v1.GET("/kv/*key", h.get)
	v1.PUT("/kv/*key", h.put)
	v1.DELETE("/kv/*key", h.delete)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return router
}

func (h *handler) status(c *gin.Context) {
	leaderID, leaderAddr := h.node.Leader()
	c.JSON(http.StatusOK, StatusResponse{
		ID:         h.node.ID(),
		State:      h.node.RaftState(),
		Leader:     h.node.IsLeader(),
		LeaderID:   leaderID,
		LeaderAddr: leaderAddr,
		Secure:     h.secure,
		Keys:       len(h.node.Keys("")),
		TickTime:   h.node.TickTime().String(),
		Version:    version.EnsembledVersion,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	})
}

// get returns the raw value of a key, or the sorted key list under the
// prefix when the keys query parameter is set.
func (h *handler) get(c *gin.Context) {
	key := c.Param("key")
	if _, list := c.GetQuery("keys"); list {
		c.JSON(http.StatusOK, h.node.Keys(key))
		return
	}

	value, ok := h.node.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "key not found: " + key})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", value)
}

func (h *handler) put(c *gin.Context) {
	key := c.Param("key")
	if !validKey(key) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid key: " + key})
		return
	}

	value, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxValueSize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.node.Put(c.Request.Context(), key, value); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

func (h *handler) delete(c *gin.Context) {
	key := c.Param("key")
	if !validKey(key) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid key: " + key})
		return
	}
	if err := h.node.Delete(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

func validKey(key string) bool {
	return key != "/" && !strings.HasSuffix(key, "/")
}

func writeError(c *gin.Context, err error) {
	var notLeader *node.NotLeaderError
	switch {
	case errors.As(err, &notLeader):
		c.JSON(http.StatusMisdirectedRequest, ErrorResponse{
			Error:      err.Error(),
			LeaderID:   notLeader.LeaderID,
			LeaderAddr: notLeader.LeaderAddr,
		})
	case errors.Is(err, node.ErrNotRunning):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
