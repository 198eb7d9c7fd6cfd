package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reward-center/internal/auctionhouse"
	"reward-center/internal/domain"
	"reward-center/internal/fixtures"
	"reward-center/internal/metaplex"
	"reward-center/internal/rewardcenter"
	"reward-center/internal/settlement"
	"reward-center/internal/storage"
	"reward-center/internal/storage/memory"
	"reward-center/internal/token"
)

type testServer struct {
	ledger  *memory.Ledger
	router  http.Handler
	hub     *Hub
	market  *fixtures.Marketplace
	listing *domain.Listing
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	ledger := memory.NewLedger()
	ah := auctionhouse.New(metaplex.NewValidator(nil))
	rewards := rewardcenter.NewService(ledger, ah)
	receipts := memory.NewReceiptStore()
	hub := NewHub(nil)
	engine := settlement.NewEngine(ledger, ah, settlement.WithReceiptStore(receipts), settlement.WithPublisher(hub))

	market, err := fixtures.LoadMarketplace(ctx, ledger, ah, rewards, fixtures.DefaultOptions())
	require.NoError(t, err)
	listing, err := market.List(ctx, rewards, 1000)
	require.NoError(t, err)

	return &testServer{
		ledger:  ledger,
		router:  NewServer(engine, rewards, receipts, hub, nil).Router(),
		hub:     hub,
		market:  market,
		listing: listing,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) prepare(t *testing.T) settlement.BuyListingRequest {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/listings/"+s.listing.Address.String()+"/prepare",
		settlement.Buyer{Wallet: s.market.Buyer})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PrepareResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, resp.BuyListingRequest.SigningMessage(), resp.SigningMessage)
	return resp.BuyListingRequest
}

func (s *testServer) paymentBalance(t *testing.T) uint64 {
	t.Helper()
	var amount uint64
	require.NoError(t, s.ledger.Atomic(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		amount, err = token.Balance(ctx, tx, s.market.BuyerPaymentAccount)
		return err
	}))
	return amount
}

// sign signs req with the key of its transfer authority.
func (s *testServer) sign(t *testing.T, req *settlement.BuyListingRequest) {
	t.Helper()
	key := s.market.WalletKey(req.TransferAuthority)
	require.NotNil(t, key)
	req.Sign(key)
}

func (s *testServer) signed(t *testing.T) settlement.BuyListingRequest {
	t.Helper()
	req := s.prepare(t)
	s.sign(t, &req)
	return req
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGetListing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/listings/"+s.listing.Address.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Listing
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, *s.listing, got)

	rec = s.do(t, http.MethodGet, "/v1/listings/not-a-key", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/listings/"+fixtures.Key("nowhere").String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuy(t *testing.T) {
	s := newTestServer(t)
	path := "/v1/listings/" + s.listing.Address.String() + "/buy"
	req := s.signed(t)

	rec := s.do(t, http.MethodPost, path, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt domain.Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
	assert.Equal(t, s.listing.Address, receipt.Listing)
	assert.Equal(t, uint64(50), receipt.BuyerReward)
	assert.True(t, receipt.BuyerRewardPaid)

	rec = s.do(t, http.MethodPost, path, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/receipts?listing="+s.listing.Address.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var receipts []domain.Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipts))
	require.Len(t, receipts, 1)
	assert.Equal(t, receipt.ID, receipts[0].ID)

	rec = s.do(t, http.MethodGet, "/v1/reward-centers/"+s.market.RewardCenter.Address.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance BalanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&balance))
	assert.Equal(t, fixtures.DefaultOptions().TreasuryFunds-100, balance.Balance)
}

func TestBuy_Rejected(t *testing.T) {
	s := newTestServer(t)
	path := "/v1/listings/" + s.listing.Address.String() + "/buy"

	tests := []struct {
		name       string
		mutate     func(req *settlement.BuyListingRequest)
		wantStatus int
	}{
		{
			name:       "escrow substituted",
			mutate:     func(req *settlement.BuyListingRequest) { req.EscrowPaymentAccount = fixtures.Key("stranger") },
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "listing does not match path",
			mutate:     func(req *settlement.BuyListingRequest) { req.Listing = fixtures.Key("stranger") },
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "transfer authority",
			mutate:     func(req *settlement.BuyListingRequest) { req.TransferAuthority = s.market.Seller },
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := s.prepare(t)
			tt.mutate(&req)
			s.sign(t, &req)
			rec := s.do(t, http.MethodPost, path, req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"unknown":1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuy_RequiresTransferAuthoritySignature(t *testing.T) {
	s := newTestServer(t)
	path := "/v1/listings/" + s.listing.Address.String() + "/buy"
	balancePath := "/v1/reward-centers/" + s.market.RewardCenter.Address.String() + "/balance"
	balanceBefore := s.do(t, http.MethodGet, balancePath, nil).Body.String()

	unsigned := s.prepare(t)
	rec := s.do(t, http.MethodPost, path, unsigned)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	forged := s.prepare(t)
	forged.Sign(s.market.WalletKey(s.market.Seller))
	rec = s.do(t, http.MethodPost, path, forged)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/listings/"+s.listing.Address.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, balanceBefore, s.do(t, http.MethodGet, balancePath, nil).Body.String())
	assert.Equal(t, fixtures.DefaultOptions().BuyerFunds, s.paymentBalance(t))

	rec = s.do(t, http.MethodGet, "/v1/receipts?listing="+s.listing.Address.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestReceipts_RequiresFilter(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/v1/receipts", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/receipts?reward_center="+s.market.RewardCenter.Address.String()+"&start=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/receipts?reward_center="+s.market.RewardCenter.Address.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestReceiptFeed(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/receipts/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	req := s.signed(t)
	rec := s.do(t, http.MethodPost, "/v1/listings/"+s.listing.Address.String()+"/buy", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt domain.Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var pushed domain.Receipt
	require.NoError(t, ws.ReadJSON(&pushed))
	assert.Equal(t, receipt.ID, pushed.ID)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return s.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusOf(domain.ErrTradeStateConflict))
	assert.Equal(t, http.StatusPaymentRequired, statusOf(domain.ErrInsufficientFunds))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(domain.ErrInvalidMetadata))
	assert.Equal(t, http.StatusNotFound, statusOf(storage.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestHub_DropsForLaggingSubscriber(t *testing.T) {
	hub := NewHub(nil)
	feed, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(&domain.Receipt{ID: "r"})
	}
	assert.Len(t, feed, subscriberBuffer)

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Len())
}
