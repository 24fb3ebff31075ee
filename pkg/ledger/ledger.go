package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCorruptJournal is returned when replayed events do not fit the ledger state.
var ErrCorruptJournal = errors.New("journal does not replay cleanly")

// MaxDurationSeconds is the longest offer or auction the ledger accepts; the
// end date must stay representable as a time.Duration.
const MaxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Recorder durably appends an event before the ledger applies it. A failed
// Append aborts the operation with no state change.
type Recorder interface {
	Append(ctx context.Context, ev Event) error
}

type Config struct {
	// Owner is the only address allowed to create assets.
	Owner Address
	// Marketplace is the operator address owners approve to move their assets.
	Marketplace Address
	Clock       Clock
	Recorder    Recorder
}

// Receipt is the result of a committed operation: the event and a snapshot of
// the touched asset taken before the ledger lock is released.
type Receipt struct {
	Event Event
	Asset Asset
}

type balanceKey struct {
	owner   Address
	assetID int64
}

// Ledger is the marketplace state machine. All mutations are serialized by a
// single lock held across validation, recording and application.
type Ledger struct {
	mu          sync.RWMutex
	owner       Address
	marketplace Address
	clock       Clock
	recorder    Recorder

	seq       int64
	nextID    int64
	assets    map[int64]*Asset
	balances  map[balanceKey]int64
	approvals map[Address]map[Address]bool
	proceeds  map[Address]int64
}

func New(cfg Config) (*Ledger, error) {
	owner, err := ParseAddress(string(cfg.Owner))
	if err != nil || owner.IsZero() {
		return nil, fmt.Errorf("%w: marketplace owner %q", ErrInvalidAddress, cfg.Owner)
	}
	marketplace, err := ParseAddress(string(cfg.Marketplace))
	if err != nil || marketplace.IsZero() {
		return nil, fmt.Errorf("%w: marketplace address %q", ErrInvalidAddress, cfg.Marketplace)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}

	return &Ledger{
		owner:       owner,
		marketplace: marketplace,
		clock:       cfg.Clock,
		recorder:    cfg.Recorder,
		nextID:      1,
		assets:      make(map[int64]*Asset),
		balances:    make(map[balanceKey]int64),
		approvals:   make(map[Address]map[Address]bool),
		proceeds:    make(map[Address]int64),
	}, nil
}

func (l *Ledger) Owner() Address       { return l.owner }
func (l *Ledger) Marketplace() Address { return l.marketplace }

// Seq returns the sequence number of the last applied event.
func (l *Ledger) Seq() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Microsecond)
}

// CreateSoundAsset registers a new asset. Only the marketplace owner may call
// it, and the owner (not the author) holds the new asset.
func (l *Ledger) CreateSoundAsset(ctx context.Context, asset SoundAsset, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return Receipt{}, fmt.Errorf("%w: only the marketplace owner can create assets", ErrUnauthorized)
	}
	if strings.TrimSpace(asset.Name) == "" {
		return Receipt{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	author, err := ParseAddress(string(asset.AuthorAddress))
	if err != nil {
		return Receipt{}, fmt.Errorf("author: %w", err)
	}
	asset.AuthorAddress = author

	return l.commit(ctx, Event{
		Type:       EventAssetCreated,
		AssetID:    l.nextID,
		Caller:     caller,
		Seller:     l.owner,
		Asset:      &asset,
		OccurredAt: l.now(),
	})
}

// OfferAssetForSale lists the asset at a fixed price, replacing any existing offer.
func (l *Ledger) OfferAssetForSale(ctx context.Context, assetID, price, durationSeconds int64, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.ownedBy(assetID, caller)
	if err != nil {
		return Receipt{}, err
	}
	if price <= 0 || durationSeconds <= 0 {
		return Receipt{}, fmt.Errorf("%w: price and duration must be positive", ErrInvalidInput)
	}
	if durationSeconds > MaxDurationSeconds {
		return Receipt{}, fmt.Errorf("%w: duration exceeds %d seconds", ErrInvalidInput, MaxDurationSeconds)
	}
	if a.Auction != nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrAssetInAuction, assetID)
	}

	return l.commit(ctx, Event{
		Type:            EventSaleOffered,
		AssetID:         assetID,
		Caller:          caller,
		Seller:          a.CurrentOwner,
		Amount:          price,
		DurationSeconds: durationSeconds,
		OccurredAt:      l.now(),
	})
}

func (l *Ledger) CancelSaleOffer(ctx context.Context, assetID int64, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.ownedBy(assetID, caller)
	if err != nil {
		return Receipt{}, err
	}
	if a.Offer == nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrNotOffered, assetID)
	}

	return l.commit(ctx, Event{
		Type:       EventSaleCancelled,
		AssetID:    assetID,
		Caller:     caller,
		Seller:     a.CurrentOwner,
		OccurredAt: l.now(),
	})
}

// PurchaseAsset buys an offered asset. Checks run in a fixed order: offer
// present, payment covers the price, owner approved the marketplace.
func (l *Ledger) PurchaseAsset(ctx context.Context, assetID int64, caller Address, value int64) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller.IsZero() {
		return Receipt{}, fmt.Errorf("%w: caller is required", ErrInvalidAddress)
	}
	a, err := l.lookup(assetID)
	if err != nil {
		return Receipt{}, err
	}
	if value < 0 {
		return Receipt{}, fmt.Errorf("%w: negative payment", ErrInvalidInput)
	}
	if a.Offer == nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrNotOffered, assetID)
	}
	if value < a.Offer.Price {
		return Receipt{}, fmt.Errorf("%w: paid %d, price %d", ErrInsufficientPayment, value, a.Offer.Price)
	}
	if !l.approved(a.CurrentOwner) {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotApproved, a.CurrentOwner)
	}
	if caller == a.CurrentOwner {
		return Receipt{}, ErrSelfTrade
	}
	if err := l.checkCredit(a.CurrentOwner, value); err != nil {
		return Receipt{}, err
	}

	return l.commit(ctx, Event{
		Type:       EventAssetPurchased,
		AssetID:    assetID,
		Caller:     caller,
		Seller:     a.CurrentOwner,
		Buyer:      caller,
		Amount:     value,
		OccurredAt: l.now(),
	})
}

func (l *Ledger) PlaceAssetInAuction(ctx context.Context, assetID, minPrice, durationSeconds int64, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.ownedBy(assetID, caller)
	if err != nil {
		return Receipt{}, err
	}
	if minPrice <= 0 || durationSeconds <= 0 {
		return Receipt{}, fmt.Errorf("%w: minimum price and duration must be positive", ErrInvalidInput)
	}
	if durationSeconds > MaxDurationSeconds {
		return Receipt{}, fmt.Errorf("%w: duration exceeds %d seconds", ErrInvalidInput, MaxDurationSeconds)
	}
	if a.Auction != nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrAssetInAuction, assetID)
	}
	if a.Offer != nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrAssetOffered, assetID)
	}

	return l.commit(ctx, Event{
		Type:            EventAuctionStarted,
		AssetID:         assetID,
		Caller:          caller,
		Seller:          a.CurrentOwner,
		Amount:          minPrice,
		DurationSeconds: durationSeconds,
		OccurredAt:      l.now(),
	})
}

// PlaceBidForAssetInAuction records a new highest bid. Ownership does not
// change; the outbid bidder is refunded into proceeds.
func (l *Ledger) PlaceBidForAssetInAuction(ctx context.Context, assetID int64, caller Address, value int64) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller.IsZero() {
		return Receipt{}, fmt.Errorf("%w: caller is required", ErrInvalidAddress)
	}
	a, err := l.lookup(assetID)
	if err != nil {
		return Receipt{}, err
	}
	au := a.Auction
	if au == nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrNoAuction, assetID)
	}
	now := l.now()
	if au.Ended(now) {
		return Receipt{}, fmt.Errorf("%w: ended at %s", ErrAuctionEnded, au.EndDate.Format(time.RFC3339))
	}
	if value < au.MinPrice {
		return Receipt{}, fmt.Errorf("%w: bid %d, minimum %d", ErrInsufficientBid, value, au.MinPrice)
	}
	if au.HighestBidder != "" && value <= au.HighestBid {
		return Receipt{}, fmt.Errorf("%w: bid %d, highest %d", ErrInsufficientBid, value, au.HighestBid)
	}
	if !l.approved(a.CurrentOwner) {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotApproved, a.CurrentOwner)
	}
	if caller == a.CurrentOwner {
		return Receipt{}, ErrSelfTrade
	}
	if err := l.checkCredit(a.CurrentOwner, value); err != nil {
		return Receipt{}, err
	}
	if au.HighestBidder != "" {
		if err := l.checkCredit(au.HighestBidder, au.HighestBid); err != nil {
			return Receipt{}, err
		}
	}

	ev := Event{
		Type:       EventBidPlaced,
		AssetID:    assetID,
		Caller:     caller,
		Seller:     a.CurrentOwner,
		Buyer:      caller,
		Amount:     value,
		OccurredAt: now,
	}
	if au.HighestBidder != "" {
		ev.PreviousBidder = au.HighestBidder
		ev.Refund = au.HighestBid
	}
	return l.commit(ctx, ev)
}

// CompleteAuction settles an expired auction. Anyone may call it once the end
// date is reached; without bids the asset stays with its owner.
func (l *Ledger) CompleteAuction(ctx context.Context, assetID int64, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller.IsZero() {
		return Receipt{}, fmt.Errorf("%w: caller is required", ErrInvalidAddress)
	}
	a, err := l.lookup(assetID)
	if err != nil {
		return Receipt{}, err
	}
	au := a.Auction
	if au == nil {
		return Receipt{}, fmt.Errorf("%w: %d", ErrNoAuction, assetID)
	}
	now := l.now()
	if !au.Ended(now) {
		return Receipt{}, fmt.Errorf("%w: ends at %s", ErrAuctionNotEnded, au.EndDate.Format(time.RFC3339))
	}
	if au.HighestBidder != "" {
		if err := l.checkCredit(a.CurrentOwner, au.HighestBid); err != nil {
			return Receipt{}, err
		}
	}

	return l.commit(ctx, Event{
		Type:       EventAuctionCompleted,
		AssetID:    assetID,
		Caller:     caller,
		Seller:     a.CurrentOwner,
		Buyer:      au.HighestBidder,
		Amount:     au.HighestBid,
		OccurredAt: now,
	})
}

// SetApprovalForAll grants or revokes operator's right to move every asset
// the caller owns.
func (l *Ledger) SetApprovalForAll(ctx context.Context, operator Address, approved bool, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller.IsZero() {
		return Receipt{}, fmt.Errorf("%w: caller is required", ErrInvalidAddress)
	}
	if operator.IsZero() {
		return Receipt{}, fmt.Errorf("%w: operator is required", ErrInvalidAddress)
	}
	if operator == caller {
		return Receipt{}, fmt.Errorf("%w: cannot approve self", ErrInvalidInput)
	}

	return l.commit(ctx, Event{
		Type:       EventApprovalChanged,
		Caller:     caller,
		Operator:   operator,
		Approved:   approved,
		OccurredAt: l.now(),
	})
}

// WithdrawProceeds pays out everything owed to caller.
func (l *Ledger) WithdrawProceeds(ctx context.Context, caller Address) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.proceeds[caller]
	if caller.IsZero() || amount == 0 {
		return Receipt{}, ErrNothingToWithdraw
	}

	return l.commit(ctx, Event{
		Type:       EventProceedsWithdrawn,
		Caller:     caller,
		Amount:     amount,
		OccurredAt: l.now(),
	})
}

// Replay applies journaled events in order. It stops at the first event that
// does not follow the current sequence or state.
func (l *Ledger) Replay(events []Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ev := range events {
		if ev.Seq != l.seq+1 {
			return fmt.Errorf("%w: got seq %d, want %d", ErrCorruptJournal, ev.Seq, l.seq+1)
		}
		if err := l.apply(ev); err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrCorruptJournal, ev.Seq, err)
		}
	}
	return nil
}

func (l *Ledger) commit(ctx context.Context, ev Event) (Receipt, error) {
	ev.ID = uuid.New()
	ev.Seq = l.seq + 1

	if l.recorder != nil {
		if err := l.recorder.Append(ctx, ev); err != nil {
			return Receipt{}, fmt.Errorf("record %s: %w", ev.Type, err)
		}
	}
	if err := l.apply(ev); err != nil {
		return Receipt{}, fmt.Errorf("apply %s: %w", ev.Type, err)
	}

	r := Receipt{Event: ev}
	if a, ok := l.assets[ev.AssetID]; ok {
		r.Asset = a.clone()
	}
	return r, nil
}

func (l *Ledger) apply(ev Event) error {
	if ev.Type == EventAssetCreated {
		if ev.Asset == nil {
			return fmt.Errorf("%s without asset", ev.Type)
		}
		if ev.AssetID != l.nextID {
			return fmt.Errorf("asset id %d, want %d", ev.AssetID, l.nextID)
		}
		l.assets[ev.AssetID] = &Asset{
			ID:           ev.AssetID,
			SoundAsset:   *ev.Asset,
			CurrentOwner: ev.Seller,
			CreatedAt:    ev.OccurredAt,
		}
		l.balances[balanceKey{ev.Seller, ev.AssetID}]++
		l.nextID++
		l.seq = ev.Seq
		return nil
	}

	switch ev.Type {
	case EventApprovalChanged:
		if ev.Approved {
			if l.approvals[ev.Caller] == nil {
				l.approvals[ev.Caller] = make(map[Address]bool)
			}
			l.approvals[ev.Caller][ev.Operator] = true
		} else {
			delete(l.approvals[ev.Caller], ev.Operator)
		}
		l.seq = ev.Seq
		return nil
	case EventProceedsWithdrawn:
		if ev.Amount <= 0 || l.proceeds[ev.Caller] < ev.Amount {
			return fmt.Errorf("withdraw %d exceeds proceeds %d", ev.Amount, l.proceeds[ev.Caller])
		}
		if err := l.credit(ev.Caller, -ev.Amount); err != nil {
			return err
		}
		l.seq = ev.Seq
		return nil
	}

	a, err := l.lookup(ev.AssetID)
	if err != nil {
		return err
	}

	if ev.DurationSeconds < 0 || ev.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("duration %d out of range", ev.DurationSeconds)
	}

	switch ev.Type {
	case EventSaleOffered:
		a.Offer = &SaleOffer{
			AssetID:         a.ID,
			Price:           ev.Amount,
			DurationSeconds: ev.DurationSeconds,
			CreatedAt:       ev.OccurredAt,
			ExpiresAt:       ev.OccurredAt.Add(time.Duration(ev.DurationSeconds) * time.Second),
		}
	case EventSaleCancelled:
		a.Offer = nil
	case EventAssetPurchased:
		if err := l.checkCredit(ev.Seller, ev.Amount); err != nil {
			return err
		}
		if err := l.transfer(a, ev.Seller, ev.Buyer); err != nil {
			return err
		}
		a.Offer = nil
		if err := l.credit(ev.Seller, ev.Amount); err != nil {
			return err
		}
	case EventAuctionStarted:
		a.Auction = &Auction{
			AssetID:   a.ID,
			MinPrice:  ev.Amount,
			CreatedAt: ev.OccurredAt,
			EndDate:   ev.OccurredAt.Add(time.Duration(ev.DurationSeconds) * time.Second),
		}
	case EventBidPlaced:
		if a.Auction == nil {
			return fmt.Errorf("bid on asset %d without auction", a.ID)
		}
		if ev.PreviousBidder != "" {
			if err := l.credit(ev.PreviousBidder, ev.Refund); err != nil {
				return err
			}
		}
		a.Auction.HighestBid = ev.Amount
		a.Auction.HighestBidder = ev.Buyer
	case EventAuctionCompleted:
		if a.Auction == nil {
			return fmt.Errorf("completing asset %d without auction", a.ID)
		}
		if ev.Buyer != "" {
			if err := l.checkCredit(ev.Seller, ev.Amount); err != nil {
				return err
			}
			if err := l.transfer(a, ev.Seller, ev.Buyer); err != nil {
				return err
			}
			if err := l.credit(ev.Seller, ev.Amount); err != nil {
				return err
			}
		}
		a.Auction = nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	l.seq = ev.Seq
	return nil
}

func (l *Ledger) transfer(a *Asset, from, to Address) error {
	if a.CurrentOwner != from {
		return fmt.Errorf("asset %d owned by %s, not %s", a.ID, a.CurrentOwner, from)
	}
	fromKey := balanceKey{from, a.ID}
	if l.balances[fromKey] <= 1 {
		delete(l.balances, fromKey)
	} else {
		l.balances[fromKey]--
	}
	l.balances[balanceKey{to, a.ID}]++
	a.CurrentOwner = to
	return nil
}

// checkCredit rejects a payment that would push addr's proceeds past MaxInt64.
func (l *Ledger) checkCredit(addr Address, amount int64) error {
	if amount > math.MaxInt64-l.proceeds[addr] {
		return fmt.Errorf("%w: proceeds of %s would overflow", ErrInvalidInput, addr)
	}
	return nil
}

func (l *Ledger) credit(addr Address, amount int64) error {
	if amount > 0 {
		if err := l.checkCredit(addr, amount); err != nil {
			return err
		}
	}
	v := l.proceeds[addr] + amount
	if v < 0 {
		return fmt.Errorf("proceeds of %s would go negative", addr)
	}
	if v == 0 {
		delete(l.proceeds, addr)
		return nil
	}
	l.proceeds[addr] = v
	return nil
}

func (l *Ledger) lookup(assetID int64) (*Asset, error) {
	a, ok := l.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}
	return a, nil
}

func (l *Ledger) ownedBy(assetID int64, caller Address) (*Asset, error) {
	a, err := l.lookup(assetID)
	if err != nil {
		return nil, err
	}
	if !l.isOwner(caller, assetID) {
		return nil, fmt.Errorf("%w: %s does not own asset %d", ErrUnauthorized, caller, assetID)
	}
	return a, nil
}

func (l *Ledger) isOwner(addr Address, assetID int64) bool {
	a, ok := l.assets[assetID]
	return ok && !addr.IsZero() && a.CurrentOwner == addr && l.balances[balanceKey{addr, assetID}] > 0
}

func (l *Ledger) approved(owner Address) bool {
	return l.approvals[owner][l.marketplace]
}
