package royalty

import (
	"time"

	"github.com/google/uuid"
)

// RevenueType classifies a fund transfer inside a completed pay transaction.
type RevenueType string

const (
	// RevenueTypeSale is a payment to the paid work's own creator.
	RevenueTypeSale RevenueType = "sale"
	// RevenueTypeRoyalty is a payment to an ancestor creator via the lineage chain.
	RevenueTypeRoyalty RevenueType = "royalty"
)

// Work is a licensable creative asset mirrored from the chain. Royalty fields
// (Earned, Claimed) are owned by this package; everything else is owned by
// the indexer sync.
type Work struct {
	ID       string `json:"id"`
	Creator  string `json:"creator"`
	ParentID string `json:"parentId,omitempty"` // empty for origin works

	Title       string   `json:"title"`
	Description string   `json:"description"`
	FileType    string   `json:"fileType"`
	FileSize    int64    `json:"fileSize"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`

	Fee          int64  `json:"fee"` // per-view fee, smallest currency unit
	LicenseRule  string `json:"licenseRule"`
	LicensePrice int64  `json:"licensePrice"`
	RoyaltyRatio int    `json:"royaltyRatio"` // percent 0-100, the cut this work takes from derivatives

	RoyaltyEarned  int64 `json:"royaltyEarned"`
	RoyaltyClaimed int64 `json:"royaltyClaimed"`
	Revoked        bool  `json:"revoked"`

	BlobID            string `json:"blobId,omitempty"`
	PreviewURI        string `json:"previewUri,omitempty"`
	TransactionDigest string `json:"transactionDigest"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Claimable returns the withdrawable balance.
func (w *Work) Claimable() int64 {
	return w.RoyaltyEarned - w.RoyaltyClaimed
}

// Transfer is a single fund movement extracted from a pay transaction's
// balance changes.
type Transfer struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// RevenueEvent is an append-only audit record of one classified transfer.
type RevenueEvent struct {
	ID                uuid.UUID   `json:"id"`
	WorkID            string      `json:"workId"`
	Recipient         string      `json:"recipientAddress"`
	Amount            int64       `json:"amount"`
	Type              RevenueType `json:"revenueType"`
	Flagged           bool        `json:"flagged,omitempty"`
	TransactionDigest string      `json:"transactionDigest"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// Credit is one work's share of a distribution run.
type Credit struct {
	WorkID string
	Amount int64
}

// ClaimResult reports a successful withdrawal.
type ClaimResult struct {
	Claimed   int64 `json:"claimed"`
	Remaining int64 `json:"remaining"`
}

// ChildRevenue is one direct derivative's entry in a royalty summary.
type ChildRevenue struct {
	ChildWorkID string `json:"childWorkId"`
	ChildTitle  string `json:"childTitle"`
	ChildFee    int64  `json:"childFee"`
}

// Summary is the read-only royalty state of a work for dashboard display.
type Summary struct {
	Earned    int64          `json:"earned"`
	Claimed   int64          `json:"claimed"`
	Claimable int64          `json:"claimable"`
	Breakdown []ChildRevenue `json:"breakdown"`
}
