package marketplace

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
)

// EventPublisher receives every committed event after the ledger lock is
// released. Errors are logged and never undo the operation. Concurrent commits
// publish concurrently, so events can arrive out of seq order; consumers that
// need ledger order sort or gap-check by Event.Seq.
type EventPublisher interface {
	Publish(ctx context.Context, ev ledger.Event) error
}

type MarketplaceService interface {
	Info(ctx context.Context) Info

	CreateSoundAsset(ctx context.Context, asset ledger.SoundAsset, caller ledger.Address) (ledger.Receipt, error)
	OfferAssetForSale(ctx context.Context, assetID, price, durationSeconds int64, caller ledger.Address) (ledger.Receipt, error)
	CancelSaleOffer(ctx context.Context, assetID int64, caller ledger.Address) (ledger.Receipt, error)
	PurchaseAsset(ctx context.Context, assetID int64, caller ledger.Address, value int64) (ledger.Receipt, error)
	PlaceAssetInAuction(ctx context.Context, assetID, minPrice, durationSeconds int64, caller ledger.Address) (ledger.Receipt, error)
	PlaceBidForAssetInAuction(ctx context.Context, assetID int64, caller ledger.Address, value int64) (ledger.Receipt, error)
	CompleteAuction(ctx context.Context, assetID int64, caller ledger.Address) (ledger.Receipt, error)
	SetApprovalForAll(ctx context.Context, operator ledger.Address, approved bool, caller ledger.Address) (ledger.Receipt, error)
	WithdrawProceeds(ctx context.Context, caller ledger.Address) (ledger.Receipt, error)

	GetAsset(ctx context.Context, assetID int64) (ledger.Asset, error)
	GetAuction(ctx context.Context, assetID int64) (ledger.Auction, error)
	ListAssets(ctx context.Context, filter ledger.AssetFilter, page, limit int) ([]ledger.Asset, int64, error)
	IsCurrentNftOwner(ctx context.Context, addr ledger.Address, assetID int64) bool
	BalanceOf(ctx context.Context, addr ledger.Address, assetID int64) int64
	IsApprovedForAll(ctx context.Context, owner, operator ledger.Address) bool
	Proceeds(ctx context.Context, addr ledger.Address) int64
}

type marketplaceService struct {
	ledger     *ledger.Ledger
	publishers []EventPublisher
	log        *zap.Logger
	tracer     trace.Tracer
}

func NewMarketplaceService(l *ledger.Ledger, log *zap.Logger, publishers ...EventPublisher) MarketplaceService {
	return &marketplaceService{
		ledger:     l,
		publishers: publishers,
		log:        log,
		tracer:     otel.Tracer("soundwork/marketplace"),
	}
}

func (s *marketplaceService) Info(ctx context.Context) Info {
	return Info{Owner: s.ledger.Owner(), Marketplace: s.ledger.Marketplace(), Seq: s.ledger.Seq()}
}

// run wraps a ledger mutation with a span, logging and event fan-out.
func (s *marketplaceService) run(ctx context.Context, op string, assetID int64, caller ledger.Address, fn func(context.Context) (ledger.Receipt, error)) (ledger.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "marketplace."+op,
		trace.WithAttributes(
			attribute.String("caller", caller.String()),
			attribute.Int64("asset.id", assetID),
		),
	)
	defer span.End()

	receipt, err := fn(ctx)
	if err != nil {
		code := ledger.Code(err)
		span.SetAttributes(attribute.String("error.code", code))
		if code == "internal" {
			span.RecordError(err)
			span.SetStatus(codes.Error, op)
			s.log.Error("ledger operation failed", zap.String("op", op), zap.String("caller", caller.String()), zap.Error(err))
		} else {
			s.log.Debug("ledger operation rejected", zap.String("op", op), zap.String("caller", caller.String()), zap.String("code", code))
		}
		return ledger.Receipt{}, err
	}

	ev := receipt.Event
	span.SetAttributes(attribute.Int64("event.seq", ev.Seq))
	s.log.Info("ledger event committed",
		zap.String("type", string(ev.Type)),
		zap.Int64("seq", ev.Seq),
		zap.Int64("asset_id", ev.AssetID),
		zap.String("caller", caller.String()),
	)

	s.publish(ctx, ev)
	return receipt, nil
}

func (s *marketplaceService) publish(ctx context.Context, ev ledger.Event) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			s.log.Warn("publish event failed", zap.Int64("seq", ev.Seq), zap.Error(err))
		}
	}
}

func (s *marketplaceService) CreateSoundAsset(ctx context.Context, asset ledger.SoundAsset, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "create_sound_asset", 0, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.CreateSoundAsset(ctx, asset, caller)
	})
}

func (s *marketplaceService) OfferAssetForSale(ctx context.Context, assetID, price, durationSeconds int64, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "offer_asset_for_sale", assetID, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.OfferAssetForSale(ctx, assetID, price, durationSeconds, caller)
	})
}

func (s *marketplaceService) CancelSaleOffer(ctx context.Context, assetID int64, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "cancel_sale_offer", assetID, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.CancelSaleOffer(ctx, assetID, caller)
	})
}

func (s *marketplaceService) PurchaseAsset(ctx context.Context, assetID int64, caller ledger.Address, value int64) (ledger.Receipt, error) {
	return s.run(ctx, "purchase_asset", assetID, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.PurchaseAsset(ctx, assetID, caller, value)
	})
}

func (s *marketplaceService) PlaceAssetInAuction(ctx context.Context, assetID, minPrice, durationSeconds int64, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "place_asset_in_auction", assetID, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.PlaceAssetInAuction(ctx, assetID, minPrice, durationSeconds, caller)
	})
}

func (s *marketplaceService) PlaceBidForAssetInAuction(ctx context.Context, assetID int64, caller ledger.Address, value int64) (ledger.Receipt, error) {
	return s.run(ctx, "place_bid", assetID, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.PlaceBidForAssetInAuction(ctx, assetID, caller, value)
	})
}

func (s *marketplaceService) CompleteAuction(ctx context.Context, assetID int64, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "complete_auction", assetID, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.CompleteAuction(ctx, assetID, caller)
	})
}

func (s *marketplaceService) SetApprovalForAll(ctx context.Context, operator ledger.Address, approved bool, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "set_approval_for_all", 0, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.SetApprovalForAll(ctx, operator, approved, caller)
	})
}

func (s *marketplaceService) WithdrawProceeds(ctx context.Context, caller ledger.Address) (ledger.Receipt, error) {
	return s.run(ctx, "withdraw_proceeds", 0, caller, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.WithdrawProceeds(ctx, caller)
	})
}

func (s *marketplaceService) GetAsset(ctx context.Context, assetID int64) (ledger.Asset, error) {
	return s.ledger.SoundAsset(assetID)
}

func (s *marketplaceService) GetAuction(ctx context.Context, assetID int64) (ledger.Auction, error) {
	return s.ledger.AssetInAuction(assetID)
}

func (s *marketplaceService) ListAssets(ctx context.Context, filter ledger.AssetFilter, page, limit int) ([]ledger.Asset, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}
	items, total := s.ledger.Assets(filter, limit, offset)
	return items, total, nil
}

func (s *marketplaceService) IsCurrentNftOwner(ctx context.Context, addr ledger.Address, assetID int64) bool {
	return s.ledger.IsCurrentNftOwner(addr, assetID)
}

func (s *marketplaceService) BalanceOf(ctx context.Context, addr ledger.Address, assetID int64) int64 {
	return s.ledger.BalanceOf(addr, assetID)
}

func (s *marketplaceService) IsApprovedForAll(ctx context.Context, owner, operator ledger.Address) bool {
	return s.ledger.IsApprovedForAll(owner, operator)
}

func (s *marketplaceService) Proceeds(ctx context.Context, addr ledger.Address) int64 {
	return s.ledger.Proceeds(addr)
}
