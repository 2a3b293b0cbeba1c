package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/contracts"
	"web3-orchestrator/pkg/nftmeta"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultGalleryLimit = 30
	MaxGalleryLimit     = 200
	galleryConcurrency  = 10
)

// OwnedNFT is one token of the gallery with its resolved metadata.
type OwnedNFT struct {
	TokenID  *big.Int
	TokenURI string
	Meta     nftmeta.Metadata
}

// Gallery is the result of an enumeration. Total is the owner's balance,
// which may exceed len(Items).
type Gallery struct {
	Items []OwnedNFT
	Total int64
}

// GalleryService enumerates NFTs owned by a wallet.
type GalleryService struct {
	gateway ports.ContractGateway
	nft     common.Address
}

// NewGalleryService creates a new GalleryService.
func NewGalleryService(gateway ports.ContractGateway, nft common.Address) *GalleryService {
	return &GalleryService{gateway: gateway, nft: nft}
}

// ClampLimit applies the gallery's default and upper bound.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultGalleryLimit
	}
	return min(limit, MaxGalleryLimit)
}

// Owned returns up to limit tokens of owner, newest token id first. Any
// failed read fails the whole enumeration.
func (g *GalleryService) Owned(ctx context.Context, owner common.Address, limit int) (*Gallery, error) {
	limit = ClampLimit(limit)

	out, err := g.gateway.Read(ctx, ports.ContractCall{Contract: g.nft, ABI: contracts.NFT, Method: "balanceOf", Args: []any{owner}})
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	balance, err := firstUint(out, "balanceOf")
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return &Gallery{Items: []OwnedNFT{}}, nil
	}

	take := limit
	if balance.IsInt64() && balance.Int64() < int64(limit) {
		take = int(balance.Int64())
	}

	ids := pool.NewWithResults[*big.Int]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(galleryConcurrency)
	for i := 0; i < take; i++ {
		ids.Go(func(ctx context.Context) (*big.Int, error) {
			out, err := g.gateway.Read(ctx, ports.ContractCall{
				Contract: g.nft, ABI: contracts.NFT, Method: "tokenOfOwnerByIndex",
				Args: []any{owner, big.NewInt(int64(i))},
			})
			if err != nil {
				return nil, fmt.Errorf("tokenOfOwnerByIndex(%d): %w", i, err)
			}
			return firstUint(out, "tokenOfOwnerByIndex")
		})
	}
	tokenIDs, err := ids.Wait()
	if err != nil {
		return nil, err
	}

	items := pool.NewWithResults[OwnedNFT]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(galleryConcurrency)
	for _, id := range tokenIDs {
		items.Go(func(ctx context.Context) (OwnedNFT, error) {
			out, err := g.gateway.Read(ctx, ports.ContractCall{
				Contract: g.nft, ABI: contracts.NFT, Method: "tokenURI", Args: []any{id},
			})
			if err != nil {
				return OwnedNFT{}, fmt.Errorf("tokenURI(%s): %w", id, err)
			}
			var uri string
			if len(out) > 0 {
				uri, _ = out[0].(string)
			}
			return OwnedNFT{TokenID: id, TokenURI: uri, Meta: nftmeta.Resolve(uri)}, nil
		})
	}
	owned, err := items.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].TokenID.Cmp(owned[j].TokenID) > 0 })

	total := int64(len(owned))
	if balance.IsInt64() {
		total = balance.Int64()
	}
	return &Gallery{Items: owned, Total: total}, nil
}
