// Package gateway exposes the coordinator over HTTP with gin.
package gateway

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/storage"
)

// Handler answers wire requests, normally a *coordinator.Coordinator
type Handler interface {
	HandleMessage(ctx context.Context, req *cluster.Message) *cluster.Message
}

// valueResponse is the body of a successful GET
type valueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// errorResponse carries the coordinator's message text
type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the gin engine:
//
//	GET    /health      liveness
//	GET    /info        slave list
//	GET    /data/:key   read
//	PUT    /data/:key   write, body is the value
//	DELETE /data/:key   delete
func NewRouter(h Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/info", func(c *gin.Context) {
		resp := h.HandleMessage(c.Request.Context(), &cluster.Message{Type: cluster.Info})
		c.String(http.StatusOK, resp.Message)
	})

	r.GET("/data/:key", func(c *gin.Context) {
		req := &cluster.Message{Type: cluster.GetReq, Key: c.Param("key")}
		reply(c, h.HandleMessage(c.Request.Context(), req))
	})

	r.PUT("/data/:key", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, storage.MaxValueLen+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: cluster.ErrMsgInvalid})
			return
		}
		req := &cluster.Message{Type: cluster.PutReq, Key: c.Param("key"), Value: string(body)}
		reply(c, h.HandleMessage(c.Request.Context(), req))
	})

	r.DELETE("/data/:key", func(c *gin.Context) {
		req := &cluster.Message{Type: cluster.DelReq, Key: c.Param("key")}
		reply(c, h.HandleMessage(c.Request.Context(), req))
	})

	return r
}

// reply writes resp with a status matching its outcome
func reply(c *gin.Context, resp *cluster.Message) {
	switch {
	case resp.Type == cluster.GetResp:
		c.JSON(http.StatusOK, valueResponse{Key: resp.Key, Value: resp.Value})
	case resp.Message == cluster.MsgSuccess:
		c.JSON(http.StatusOK, gin.H{"result": resp.Message})
	default:
		c.JSON(statusFor(resp.Message), errorResponse{Error: resp.Message})
	}
}

// statusFor maps a coordinator error text to an HTTP status
func statusFor(msg string) int {
	switch msg {
	case cluster.ErrMsgInvalid, cluster.ErrMsgKeyLen, cluster.ErrMsgValueLen:
		return http.StatusBadRequest
	case cluster.ErrMsgNoKey:
		return http.StatusNotFound
	case cluster.ErrMsgNotImplement:
		return http.StatusNotImplemented
	case cluster.ErrMsgGeneric:
		return http.StatusBadGateway
	default:
		return http.StatusConflict
	}
}
