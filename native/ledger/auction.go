package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
)

func auctionMember(vaultID uint64, asset common.Address) []byte {
	buf := make([]byte, 8, 8+common.AddressLength)
	binary.BigEndian.PutUint64(buf, vaultID)
	return append(buf, asset.Bytes()...)
}

func auctionKey(user common.Address, vaultID uint64, asset common.Address) []byte {
	return state.Key(auctionPrefix, user.Bytes(), auctionMember(vaultID, asset))
}

func (l *Ledger) userAuctions(user common.Address) state.IndexedSet {
	return state.NewIndexedSet(l.st, userAuctions+user.Hex())
}

// GetFungibleAuction returns the auction of a (user, vault, asset)
// position and whether it exists.
func (l *Ledger) GetFungibleAuction(user common.Address, vaultID uint64, asset common.Address) (FungibleAuction, bool, error) {
	var auction FungibleAuction
	ok, err := l.st.KVGet(auctionKey(user, vaultID, asset), &auction)
	return auction, ok, err
}

// SetFungibleAuction creates or updates an auction record and registers
// it with the user and the auctioned-user registry.
func (l *Ledger) SetFungibleAuction(auction FungibleAuction) error {
	if auction.LiqUser == (common.Address{}) {
		return errZeroUser
	}
	if err := l.st.KVPut(auctionKey(auction.LiqUser, auction.VaultID, auction.Asset), auction); err != nil {
		return err
	}
	if _, err := l.userAuctions(auction.LiqUser).Add(auctionMember(auction.VaultID, auction.Asset)); err != nil {
		return err
	}
	_, err := state.NewIndexedSet(l.st, auctionUsers).Add(auction.LiqUser.Bytes())
	return err
}

// RemoveFungibleAuction destroys an auction record and reports whether it
// existed.
func (l *Ledger) RemoveFungibleAuction(user common.Address, vaultID uint64, asset common.Address) (bool, error) {
	removed, err := l.userAuctions(user).Remove(auctionMember(vaultID, asset))
	if err != nil || !removed {
		return removed, err
	}
	if err := l.st.KVDelete(auctionKey(user, vaultID, asset)); err != nil {
		return false, err
	}
	remaining, err := l.userAuctions(user).Len()
	if err != nil {
		return false, err
	}
	if remaining == 0 {
		if _, err := state.NewIndexedSet(l.st, auctionUsers).Remove(user.Bytes()); err != nil {
			return false, err
		}
	}
	return true, nil
}

// UserAuctions returns every auction of user in registry order.
func (l *Ledger) UserAuctions(user common.Address) ([]FungibleAuction, error) {
	members, err := l.userAuctions(user).Members()
	if err != nil {
		return nil, err
	}
	out := make([]FungibleAuction, 0, len(members))
	for _, raw := range members {
		vaultID := binary.BigEndian.Uint64(raw[:8])
		asset := common.BytesToAddress(raw[8:])
		auction, ok, err := l.GetFungibleAuction(user, vaultID, asset)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, auction)
		}
	}
	return out, nil
}

// HasActiveAuctions reports whether any auction of user is running.
func (l *Ledger) HasActiveAuctions(user common.Address) (bool, error) {
	auctions, err := l.UserAuctions(user)
	if err != nil {
		return false, err
	}
	for _, auction := range auctions {
		if auction.IsActive {
			return true, nil
		}
	}
	return false, nil
}

// AuctionedUsers returns users with at least one auction record.
func (l *Ledger) AuctionedUsers() ([]common.Address, error) {
	return addresses(state.NewIndexedSet(l.st, auctionUsers))
}
