// Package api exposes the venue operations over REST plus a WebSocket feed
// for trades and book updates.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openlob/openlob/pkg/bank"
	"github.com/openlob/openlob/pkg/engine"
	"github.com/openlob/openlob/pkg/venue"
)

type Server struct {
	venue  *venue.Venue
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(v *venue.Venue, logger *zap.Logger) *Server {
	sugar := logger.Sugar().Named("api")
	s := &Server{
		venue:  v,
		router: mux.NewRouter(),
		hub:    NewHub(sugar),
		log:    sugar,
	}
	v.SetUpdateHandler(s.onVenueUpdate)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market data
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/bids", s.handleGetBids).Methods("GET")
	api.HandleFunc("/asks", s.handleGetAsks).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	// Orders
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Accounts
	api.HandleFunc("/accounts/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")

	// Config
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the websocket hub and serves HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	handler := c.Handler(s.router)

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

// onVenueUpdate broadcasts committed trades and the fresh book snapshot. The
// payload carries the snapshot taken at commit time, so feeds see the book
// exactly as the operation left it.
func (s *Server) onVenueUpdate(u venue.Update) {
	for _, t := range u.Trades {
		s.hub.BroadcastToChannel("trades:"+u.Market, TradeUpdate{
			Type:      "trade",
			Market:    u.Market,
			Price:     t.Price,
			Quantity:  t.Quantity,
			TakerSide: t.TakerSide.String(),
			Timestamp: t.Timestamp,
		})
	}
	s.hub.BroadcastToChannel("book:"+u.Market, BookUpdate{
		Type:      "book",
		Market:    u.Market,
		Bids:      u.Book.Bids,
		Asks:      u.Book.Asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// REST handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.venue.Markets()
	out := make([]MarketInfo, len(markets))
	for i, m := range markets {
		out[i] = MarketInfo{
			ID:          m.ID,
			BaseAsset:   m.Base,
			QuoteAsset:  m.Quote,
			TickSize:    m.TickSize,
			LotSize:     m.LotSize,
			MinNotional: m.MinNotional,
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	snap, err := s.venue.Snapshot(r.URL.Query().Get("market"))
	if err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, OrderbookSnapshot{
		Market:    snap.Market,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetBids(w http.ResponseWriter, r *http.Request) {
	out, err := s.venue.QueryBids(r.URL.Query().Get("market"))
	if err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, out)
}

func (s *Server) handleGetAsks(w http.ResponseWriter, r *http.Request) {
	out, err := s.venue.QueryAsks(r.URL.Query().Get("market"))
	if err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	trades, err := s.venue.RecentTrades(r.URL.Query().Get("market"), limit)
	if err != nil {
		respondVenueError(w, err)
		return
	}
	if trades == nil {
		trades = []engine.Trade{}
	}
	respondJSON(w, trades)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}

	var (
		res *venue.PlaceOrderResult
		err error
	)
	switch req.Type {
	case "limit":
		res, err = s.venue.PlaceLimitOrder(venue.PlaceLimitRequest{
			Owner:    owner,
			Market:   req.Market,
			Side:     req.Side,
			Price:    req.Price,
			Quantity: req.Quantity,
			Funds:    req.Funds,
		})
	case "market":
		res, err = s.venue.PlaceMarketOrder(venue.PlaceMarketRequest{
			Owner:    owner,
			Market:   req.Market,
			Side:     req.Side,
			Quantity: req.Quantity,
			Funds:    req.Funds,
		})
	default:
		respondError(w, http.StatusBadRequest, "invalid order type", req.Type)
		return
	}
	if err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}
	res, err := s.venue.CancelOrder(req.OrderID, owner)
	if err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}
	if err := s.venue.Deposit(owner, req.Asset, req.Amount); err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}
	if err := s.venue.Withdraw(owner, req.Asset, req.Amount); err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	respondJSON(w, s.venue.Balances(owner))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.venue.QueryConfig())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if err := s.venue.UpdateConfig(caller, req.UpdateConfigRequest); err != nil {
		respondVenueError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}

// respondVenueError maps the venue error taxonomy to HTTP statuses.
func respondVenueError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, venue.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, venue.ErrOrderNotFound), errors.Is(err, venue.ErrMarketNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bank.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, venue.ErrHalted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvariant):
		status = http.StatusInternalServerError
	}
	respondError(w, status, "request failed", err.Error())
}
