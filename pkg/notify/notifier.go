package notify

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"soundwork/pkg/accounts"
	"soundwork/pkg/ledger"
)

const defaultQueueSize = 256

var ErrQueueFull = errors.New("notification queue full")

// AccountLookup resolves the contact record for an address.
type AccountLookup interface {
	GetAccount(ctx context.Context, addr ledger.Address) (accounts.Account, error)
}

type message struct {
	to      ledger.Address
	subject string
	body    string
}

// Notifier turns committed trade events into e-mails. Publish only enqueues;
// Run does the sending.
type Notifier struct {
	email    EmailService
	accounts AccountLookup
	queue    chan ledger.Event
	log      *zap.Logger
}

func NewNotifier(email EmailService, lookup AccountLookup, queueSize int, log *zap.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Notifier{
		email:    email,
		accounts: lookup,
		queue:    make(chan ledger.Event, queueSize),
		log:      log,
	}
}

func (n *Notifier) Publish(_ context.Context, ev ledger.Event) error {
	switch ev.Type {
	case ledger.EventAssetPurchased, ledger.EventAuctionCompleted, ledger.EventBidPlaced:
	default:
		return nil
	}
	select {
	case n.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run sends queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			n.deliver(ctx, ev)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev ledger.Event) {
	for _, m := range messagesFor(ev) {
		acct, err := n.accounts.GetAccount(ctx, m.to)
		if err != nil {
			if !errors.Is(err, accounts.ErrAccountNotFound) {
				n.log.Warn("account lookup failed", zap.String("address", m.to.String()), zap.Error(err))
			}
			continue
		}
		if !acct.Notify || acct.Email == "" {
			continue
		}

		greeting := fmt.Sprintf("Hi %s,\n\n%s", acct.Name, m.body)
		htmlBody := "<p>" + html.EscapeString(greeting) + "</p>"
		if err := n.email.SendEmail(ctx, m.subject, acct.Email, greeting, htmlBody); err != nil {
			n.log.Error("notification send failed",
				zap.String("type", string(ev.Type)),
				zap.Int64("seq", ev.Seq),
				zap.Error(err),
			)
			continue
		}
		n.log.Debug("notification sent", zap.String("type", string(ev.Type)), zap.Int64("seq", ev.Seq))
	}
}

func messagesFor(ev ledger.Event) []message {
	switch ev.Type {
	case ledger.EventAssetPurchased:
		return []message{
			{to: ev.Seller, subject: fmt.Sprintf("Sound #%d sold", ev.AssetID),
				body: fmt.Sprintf("Sound #%d was bought by %s for %s.", ev.AssetID, ev.Buyer, FormatETH(ev.Amount))},
			{to: ev.Buyer, subject: fmt.Sprintf("You bought sound #%d", ev.AssetID),
				body: fmt.Sprintf("You now own sound #%d. You paid %s.", ev.AssetID, FormatETH(ev.Amount))},
		}
	case ledger.EventAuctionCompleted:
		if ev.Buyer == "" {
			return []message{{to: ev.Seller, subject: fmt.Sprintf("Auction for sound #%d ended", ev.AssetID),
				body: fmt.Sprintf("The auction for sound #%d ended without bids.", ev.AssetID)}}
		}
		return []message{
			{to: ev.Seller, subject: fmt.Sprintf("Auction for sound #%d ended", ev.AssetID),
				body: fmt.Sprintf("Sound #%d went to %s for %s.", ev.AssetID, ev.Buyer, FormatETH(ev.Amount))},
			{to: ev.Buyer, subject: fmt.Sprintf("You won sound #%d", ev.AssetID),
				body: fmt.Sprintf("Your bid of %s won the auction for sound #%d.", FormatETH(ev.Amount), ev.AssetID)},
		}
	case ledger.EventBidPlaced:
		if ev.PreviousBidder == "" || ev.PreviousBidder == ev.Buyer {
			return nil
		}
		return []message{{to: ev.PreviousBidder, subject: fmt.Sprintf("You were outbid on sound #%d", ev.AssetID),
			body: fmt.Sprintf("A bid of %s beat yours. %s was refunded.", FormatETH(ev.Amount), FormatETH(ev.Refund))}}
	}
	return nil
}

// FormatETH renders a wei amount in ether.
func FormatETH(wei int64) string {
	return decimal.New(wei, -18).String() + " ETH"
}
