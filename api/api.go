// Package api serves a read-only REST view of the marketplace over
// committed state and the indexer.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/gin-gonic/gin"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/ledger"
	"github.com/tolelom/tolmarket/storage"
)

// Server is the REST gateway.
type Server struct {
	addr   string
	db     storage.DB
	idx    *indexer.Indexer
	engine *gin.Engine
	srv    *http.Server
	log    *logger.L
}

// NewServer creates a gateway on addr reading committed state from db.
func NewServer(addr string, db storage.DB, idx *indexer.Indexer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr: addr,
		db:   db,
		idx:  idx,
		log:  logger.New("api"),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLog())
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1")
	{
		v1.GET("/items/:id", s.getItem)
		v1.GET("/items/:id/purchases", s.getItemPurchases)
		v1.GET("/sellers/:addr/items", s.getSellerItems)
		v1.GET("/sellers/:addr/stats", s.getSellerStats)
		v1.GET("/buyers/:addr/purchases", s.getPurchaseHistory)
		v1.GET("/categories/:category/items", s.getCategoryItems)
		v1.GET("/report", s.getReport)
		v1.GET("/fee", s.getFee)
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Infof("listening on %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to 5 seconds for requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) ledger() (*ledger.Ledger, error) {
	st := storage.NewStateDB(s.db)
	return ledger.Open(st, ledger.NewStateBank(st), nil)
}

func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrItemNotFound), errors.Is(err, ledger.ErrNotDeployed), errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case ledger.IsLedgerError(err):
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func itemID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "item id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (s *Server) getItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	l, err := s.ledger()
	if err != nil {
		abort(c, err)
		return
	}
	item, err := l.GetItem(id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) getItemPurchases(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	purchases, err := s.idx.GetItemPurchases(id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": id, "purchases": purchases})
}

func (s *Server) getSellerItems(c *gin.Context) {
	l, err := s.ledger()
	if err != nil {
		abort(c, err)
		return
	}
	ids, err := l.GetSellerItems(c.Param("addr"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seller": c.Param("addr"), "items": ids})
}

func (s *Server) getSellerStats(c *gin.Context) {
	l, err := s.ledger()
	if err != nil {
		abort(c, err)
		return
	}
	stats, err := l.GetSellerStats(c.Param("addr"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getPurchaseHistory(c *gin.Context) {
	l, err := s.ledger()
	if err != nil {
		abort(c, err)
		return
	}
	ids, err := l.GetPurchaseHistory(c.Param("addr"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buyer": c.Param("addr"), "items": ids})
}

func (s *Server) getCategoryItems(c *gin.Context) {
	category, err := core.ParseCategory(c.Param("category"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids, err := s.idx.GetItemsByCategory(category.String())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category.String(), "items": ids})
}

func (s *Server) getReport(c *gin.Context) {
	l, err := s.ledger()
	if err != nil {
		abort(c, err)
		return
	}
	report, err := l.GetMarketplaceReport()
	if err != nil {
		abort(c, err)
		return
	}
	avg, err := l.GetAverageSalePrice()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "average_sale_price": avg})
}

func (s *Server) getFee(c *gin.Context) {
	l, err := s.ledger()
	if err != nil {
		abort(c, err)
		return
	}
	fee, err := l.GetPlatformFeePercent()
	if err != nil {
		abort(c, err)
		return
	}
	admin, err := l.CurrentAdmin()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_percent": fee, "admin": admin})
}
