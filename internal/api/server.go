// Package api exposes settlement and reward-center queries over HTTP, plus a
// websocket feed of committed receipts.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/settlement"
	"reward-center/internal/storage"
)

const (
	contentTypeJSON = "application/json; charset=UTF-8"

	// Time allowed to read the next pong message from the client.
	pongWait = 15 * time.Second

	// Send pings to client with this period. Must be less than pongWait.
	pingPeriod = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Server holds the HTTP handlers.
type Server struct {
	engine   *settlement.Engine
	rewards  *rewardcenter.Service
	receipts storage.ReceiptStore
	hub      *Hub
	logger   *zap.Logger
}

// NewServer creates a Server. receipts may be nil, in which case receipt
// queries answer 404.
func NewServer(engine *settlement.Engine, rewards *rewardcenter.Service, receipts storage.ReceiptStore, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		rewards:  rewards,
		receipts: receipts,
		hub:      hub,
		logger:   logger,
	}
}

// Router returns the routes of the service.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()

	// GET /v1/listings/<listing>
	v1.HandleFunc("/listings/{listing}", s.handleListing).Methods(http.MethodGet)
	// POST /v1/listings/<listing>/prepare
	v1.HandleFunc("/listings/{listing}/prepare", s.handlePrepare).Methods(http.MethodPost)
	// POST /v1/listings/<listing>/buy
	v1.HandleFunc("/listings/{listing}/buy", s.handleBuy).Methods(http.MethodPost)

	// GET /v1/reward-centers/<reward-center>
	v1.HandleFunc("/reward-centers/{rewardCenter}", s.handleRewardCenter).Methods(http.MethodGet)
	// GET /v1/reward-centers/<reward-center>/balance
	v1.HandleFunc("/reward-centers/{rewardCenter}/balance", s.handleBalance).Methods(http.MethodGet)

	// GET /v1/receipts/ws
	v1.HandleFunc("/receipts/ws", s.handleReceiptFeed).Methods(http.MethodGet)
	// GET /v1/receipts?listing=<listing>
	// GET /v1/receipts?reward_center=<reward-center>&start=<ms>&end=<ms>
	v1.HandleFunc("/receipts", s.handleReceipts).Methods(http.MethodGet)

	return router
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathKey(w, r, "listing")
	if !ok {
		return
	}
	listing, err := s.rewards.Listing(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathKey(w, r, "listing")
	if !ok {
		return
	}
	var buyer settlement.Buyer
	if !s.decode(w, r, &buyer) {
		return
	}
	if buyer.Wallet.IsZero() {
		s.writeStatus(w, http.StatusBadRequest, "wallet is required")
		return
	}
	req, err := s.engine.Prepare(r.Context(), addr, buyer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PrepareResponse{BuyListingRequest: *req, SigningMessage: req.SigningMessage()})
}

// PrepareResponse is a derived buy request plus the bytes its transfer
// authority must sign before posting it to the buy endpoint.
type PrepareResponse struct {
	settlement.BuyListingRequest
	SigningMessage []byte `json:"signing_message"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathKey(w, r, "listing")
	if !ok {
		return
	}
	var req settlement.BuyListingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Listing.IsZero() {
		req.Listing = addr
	}
	if req.Listing != addr {
		s.writeStatus(w, http.StatusUnprocessableEntity, "listing in body does not match path")
		return
	}

	receipt, err := s.engine.BuyListing(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRewardCenter(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathKey(w, r, "rewardCenter")
	if !ok {
		return
	}
	rc, err := s.rewards.RewardCenter(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rc)
}

// BalanceResponse is the JSON response for the balance endpoint.
type BalanceResponse struct {
	RewardCenter pda.Pubkey `json:"reward_center"`
	Balance      uint64     `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathKey(w, r, "rewardCenter")
	if !ok {
		return
	}
	balance, err := s.rewards.Balance(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{RewardCenter: addr, Balance: balance})
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		s.writeStatus(w, http.StatusNotFound, "receipt store not configured")
		return
	}
	q := r.URL.Query()

	var (
		receipts []*domain.Receipt
		err      error
	)
	switch {
	case q.Get("listing") != "":
		listing, perr := pda.ParsePubkey(q.Get("listing"))
		if perr != nil {
			s.writeStatus(w, http.StatusBadRequest, perr.Error())
			return
		}
		receipts, err = s.receipts.GetByListing(r.Context(), listing)
	case q.Get("reward_center") != "":
		rc, perr := pda.ParsePubkey(q.Get("reward_center"))
		if perr != nil {
			s.writeStatus(w, http.StatusBadRequest, perr.Error())
			return
		}
		start, serr := queryInt(q.Get("start"), 0)
		end, eerr := queryInt(q.Get("end"), math.MaxInt64)
		if serr != nil || eerr != nil {
			s.writeStatus(w, http.StatusBadRequest, "start and end must be unix milliseconds")
			return
		}
		receipts, err = s.receipts.GetByRewardCenter(r.Context(), rc, start, end)
	default:
		s.writeStatus(w, http.StatusBadRequest, "listing or reward_center is required")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if receipts == nil {
		receipts = []*domain.Receipt{}
	}
	s.writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleReceiptFeed(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// At this point the connection either has a response sent already
		// or it has been closed
		return
	}
	defer func() { _ = ws.Close() }()

	feed, cancel := s.hub.Subscribe()
	defer cancel()

	// The reader only services control frames; it ends on disconnect.
	closed := make(chan struct{})
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case receipt, ok := <-feed:
			if !ok {
				return
			}
			if err := ws.WriteJSON(receipt); err != nil {
				s.logger.Debug("receipt feed write", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
			if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) pathKey(w http.ResponseWriter, r *http.Request, name string) (pda.Pubkey, bool) {
	key, err := pda.ParsePubkey(mux.Vars(r)[name])
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, name+": "+err.Error())
		return pda.Zero, false
	}
	return key, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeStatus(w, status, err.Error())
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

// statusOf maps failure kinds to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrTradeStateConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAddressMismatch),
		errors.Is(err, domain.ErrMintMismatch),
		errors.Is(err, domain.ErrOwnerMismatch),
		errors.Is(err, domain.ErrInvalidMetadata):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRewardRules), errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
