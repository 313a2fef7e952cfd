// Package auction aggregates parachain auction and crowdloan state.
package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/polkagate/poolkit/pkg/chain"
)

const (
	QueryParaIDs         = "paras.paraLifecycles.keys"
	QueryAuctionInfo     = "auctions.auctionInfo"
	QueryAuctionCounter  = "auctions.auctionCounter"
	QueryFunds           = "crowdloan.funds"
	QueryLeases          = "slots.leases"
	QueryHeader          = "chain.header"
	QueryWinning         = "auctions.winning"
	ConstMinContribution = "consts.crowdloan.minContribution"
)

// maxParallel bounds the per-para queries in flight.
const maxParallel = 8

// Info is the running auction: its lease period index and end block.
type Info struct {
	LeasePeriod uint32
	EndBlock    uint32
}

// Fund is a crowdloan fund. Amounts are decimal strings.
type Fund struct {
	ParaID      string `json:"paraId"`
	Depositor   string `json:"depositor"`
	Deposit     string `json:"deposit"`
	Raised      string `json:"raised"`
	Cap         string `json:"cap"`
	End         uint32 `json:"end"`
	FirstPeriod uint32 `json:"firstPeriod"`
	LastPeriod  uint32 `json:"lastPeriod"`
	FundIndex   uint32 `json:"fundIndex"`
	HasLeased   bool   `json:"hasLeased"`
}

// Bid is one winning slot of the current auction sample.
type Bid struct {
	Account string `json:"account"`
	ParaID  string `json:"paraId"`
	Amount  string `json:"amount"`
}

type Auction struct {
	AuctionCounter     uint32 `json:"auctionCounter"`
	AuctionInfo        *Info  `json:"auctionInfo,omitempty"`
	Crowdloans         []Fund `json:"crowdloans"`
	CurrentBlockNumber uint32 `json:"currentBlockNumber"`
	BlockOffset        uint32 `json:"blockOffset"`
	MinContribution    string `json:"minContribution"`
	Winning            []Bid  `json:"winning"`
}

// Fetch reads the auction state. The para ids are read first; everything
// else is queried in parallel.
func Fetch(ctx context.Context, api chain.API) (*Auction, error) {
	var paraIDs []json.Number
	if err := query(ctx, api, &paraIDs, QueryParaIDs); err != nil {
		return nil, err
	}

	var (
		info    *[2]uint32
		counter *uint32
		header  struct {
			Number uint32 `json:"number"`
		}
		minContribution json.RawMessage
		funds           = make([]*rawFund, len(paraIDs))
		leases          = make([][]json.RawMessage, len(paraIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	g.Go(func() error { return query(gctx, api, &info, QueryAuctionInfo) })
	g.Go(func() error { return query(gctx, api, &counter, QueryAuctionCounter) })
	g.Go(func() error { return query(gctx, api, &header, QueryHeader) })
	g.Go(func() error { return query(gctx, api, &minContribution, ConstMinContribution) })
	for i, id := range paraIDs {
		g.Go(func() error { return query(gctx, api, &funds[i], QueryFunds, id) })
		g.Go(func() error { return query(gctx, api, &leases[i], QueryLeases, id) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &Auction{
		CurrentBlockNumber: header.Number,
		Crowdloans:         []Fund{},
		Winning:            []Bid{},
	}
	if counter != nil {
		a.AuctionCounter = *counter
	}
	if info != nil {
		a.AuctionInfo = &Info{LeasePeriod: info[0], EndBlock: info[1]}
		if a.AuctionInfo.EndBlock != 0 && a.CurrentBlockNumber >= a.AuctionInfo.EndBlock {
			a.BlockOffset = a.CurrentBlockNumber - a.AuctionInfo.EndBlock + 1
		}
	}
	minimum, err := amount(minContribution)
	if err != nil {
		return nil, fmt.Errorf("auction: min contribution: %w", err)
	}
	a.MinContribution = minimum

	for i, rf := range funds {
		if rf == nil {
			continue
		}
		f, err := rf.fund(paraIDs[i].String(), len(leases[i]) > 0)
		if err != nil {
			return nil, fmt.Errorf("auction: fund %s: %w", paraIDs[i], err)
		}
		a.Crowdloans = append(a.Crowdloans, f)
	}

	if a.BlockOffset > 1 {
		var slots []json.RawMessage
		if err := query(ctx, api, &slots, QueryWinning, a.BlockOffset); err != nil {
			return nil, err
		}
		bids, err := decodeWinning(slots)
		if err != nil {
			return nil, err
		}
		a.Winning = bids
	}
	return a, nil
}

func query(ctx context.Context, api chain.API, out any, path string, args ...any) error {
	raw, err := api.Query(ctx, path, args...)
	if err != nil {
		return fmt.Errorf("auction: %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("auction: decode %s: %w", path, err)
	}
	return nil
}

type rawFund struct {
	Depositor   string          `json:"depositor"`
	Deposit     json.RawMessage `json:"deposit"`
	Raised      json.RawMessage `json:"raised"`
	Cap         json.RawMessage `json:"cap"`
	End         uint32          `json:"end"`
	FirstPeriod uint32          `json:"firstPeriod"`
	LastPeriod  uint32          `json:"lastPeriod"`
	FundIndex   uint32          `json:"fundIndex"`
}

func (r *rawFund) fund(paraID string, leased bool) (Fund, error) {
	f := Fund{
		ParaID:      paraID,
		Depositor:   r.Depositor,
		End:         r.End,
		FirstPeriod: r.FirstPeriod,
		LastPeriod:  r.LastPeriod,
		FundIndex:   r.FundIndex,
		HasLeased:   leased,
	}
	var err error
	if f.Deposit, err = amount(r.Deposit); err != nil {
		return Fund{}, err
	}
	if f.Raised, err = amount(r.Raised); err != nil {
		return Fund{}, err
	}
	if f.Cap, err = amount(r.Cap); err != nil {
		return Fund{}, err
	}
	return f, nil
}

// amount normalizes a balance given as a JSON number, a decimal string or a
// 0x-prefixed hex string to a decimal string.
func amount(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "0", nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
	}
	n := new(big.Int)
	var ok bool
	if hex, found := strings.CutPrefix(s, "0x"); found {
		_, ok = n.SetString(hex, 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid amount %q", s)
	}
	return n.String(), nil
}

func decodeWinning(slots []json.RawMessage) ([]Bid, error) {
	bids := []Bid{}
	for _, slot := range slots {
		if len(slot) == 0 || string(slot) == "null" {
			continue
		}
		var tuple []json.RawMessage
		if err := json.Unmarshal(slot, &tuple); err != nil || len(tuple) != 3 {
			return nil, fmt.Errorf("auction: malformed winning slot %s", slot)
		}
		var b Bid
		if err := json.Unmarshal(tuple[0], &b.Account); err != nil {
			return nil, fmt.Errorf("auction: winning account: %w", err)
		}
		var para json.Number
		if err := json.Unmarshal(tuple[1], &para); err != nil {
			return nil, fmt.Errorf("auction: winning para: %w", err)
		}
		b.ParaID = para.String()
		amt, err := amount(tuple[2])
		if err != nil {
			return nil, fmt.Errorf("auction: winning amount: %w", err)
		}
		b.Amount = amt
		bids = append(bids, b)
	}
	return bids, nil
}
