package ledger

import "fmt"

// SoundAsset returns a copy of the asset record.
func (l *Ledger) SoundAsset(assetID int64) (Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, err := l.lookup(assetID)
	if err != nil {
		return Asset{}, err
	}
	return a.clone(), nil
}

// AssetInAuction returns the open auction for the asset.
func (l *Ledger) AssetInAuction(assetID int64) (Auction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, err := l.lookup(assetID)
	if err != nil {
		return Auction{}, err
	}
	if a.Auction == nil {
		return Auction{}, fmt.Errorf("%w: %d", ErrNoAuction, assetID)
	}
	return *a.Auction, nil
}

func (l *Ledger) BalanceOf(addr Address, assetID int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{addr, assetID}]
}

func (l *Ledger) IsCurrentNftOwner(addr Address, assetID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isOwner(addr, assetID)
}

func (l *Ledger) IsApprovedForAll(owner, operator Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.approvals[owner][operator]
}

// Proceeds returns the amount owed to addr and not yet withdrawn.
func (l *Ledger) Proceeds(addr Address) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.proceeds[addr]
}

// Assets lists assets matching filter in id order, with the total match count.
func (l *Ledger) Assets(filter AssetFilter, limit, offset int) ([]Asset, int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	items := make([]Asset, 0)
	var total int64
	for id := int64(1); id < l.nextID; id++ {
		a := l.assets[id]
		if !filter.match(*a) {
			continue
		}
		total++
		if total <= int64(offset) || (limit > 0 && len(items) >= limit) {
			continue
		}
		items = append(items, a.clone())
	}
	return items, total
}
