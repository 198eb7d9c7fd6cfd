package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"reward-center/internal/domain"
	"reward-center/internal/observability"
	"reward-center/internal/pda"
	"reward-center/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using ClickHouse.
type ReceiptStore struct {
	conn *Conn
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(conn *Conn) *ReceiptStore {
	return &ReceiptStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

const receiptColumns = `
	receipt_id, listing, reward_center, auction_house, buyer, seller, token_mint, treasury_mint,
	price, token_size, marketplace_fee, royalties, buyer_reward, seller_reward,
	buyer_reward_paid, seller_reward_paid, settled_at
`

// Insert adds a new receipt. ReplacingMergeTree does not enforce uniqueness,
// so the id is checked before the insert.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.Receipt) (err error) {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_receipt", time.Since(start).Seconds(), err)
	}()

	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM settlement_receipts WHERE receipt_id = ?`, r.ID).Scan(&count); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO settlement_receipts (`+receiptColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.ID, r.Listing.String(), r.RewardCenter.String(), r.AuctionHouse.String(),
		r.Buyer.String(), r.Seller.String(), r.TokenMint.String(), r.TreasuryMint.String(),
		r.Price, r.TokenSize, r.MarketplaceFee, r.Royalties, r.BuyerReward, r.SellerReward,
		boolToUInt8(r.BuyerRewardPaid), boolToUInt8(r.SellerRewardPaid), r.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByListing retrieves receipts for a listing, ordered by settled_at ASC.
func (s *ReceiptStore) GetByListing(ctx context.Context, listing pda.Pubkey) ([]*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + `
		FROM settlement_receipts FINAL
		WHERE listing = ?
		ORDER BY settled_at ASC, receipt_id ASC
	`

	rows, err := s.conn.Query(ctx, query, listing.String())
	if err != nil {
		return nil, fmt.Errorf("query by listing: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

// GetByRewardCenter retrieves receipts for a reward center within [start, end].
func (s *ReceiptStore) GetByRewardCenter(ctx context.Context, rewardCenter pda.Pubkey, start, end int64) ([]*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + `
		FROM settlement_receipts FINAL
		WHERE reward_center = ? AND settled_at >= ? AND settled_at <= ?
		ORDER BY settled_at ASC, receipt_id ASC
	`

	rows, err := s.conn.Query(ctx, query, rewardCenter.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query by reward center: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

func scanReceipts(rows driver.Rows) ([]*domain.Receipt, error) {
	var result []*domain.Receipt
	for rows.Next() {
		var r domain.Receipt
		var listing, rewardCenter, auctionHouse, buyer, seller, tokenMint, treasuryMint string
		var buyerPaid, sellerPaid uint8

		err := rows.Scan(
			&r.ID, &listing, &rewardCenter, &auctionHouse, &buyer, &seller, &tokenMint, &treasuryMint,
			&r.Price, &r.TokenSize, &r.MarketplaceFee, &r.Royalties, &r.BuyerReward, &r.SellerReward,
			&buyerPaid, &sellerPaid, &r.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		keys := []struct {
			dst *pda.Pubkey
			src string
		}{
			{&r.Listing, listing}, {&r.RewardCenter, rewardCenter}, {&r.AuctionHouse, auctionHouse},
			{&r.Buyer, buyer}, {&r.Seller, seller}, {&r.TokenMint, tokenMint}, {&r.TreasuryMint, treasuryMint},
		}
		for _, k := range keys {
			if *k.dst, err = pda.ParsePubkey(k.src); err != nil {
				return nil, err
			}
		}
		r.BuyerRewardPaid = buyerPaid == 1
		r.SellerRewardPaid = sellerPaid == 1

		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
