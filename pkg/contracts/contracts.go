// Package contracts holds the minimal ABIs of the contracts the orchestrator
// talks to.
package contracts

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	ERC20  = mustLoad("abi/erc20.json")
	WETH   = mustLoad("abi/weth.json")
	Engine = mustLoad("abi/engine.json")
	NFT    = mustLoad("abi/nft.json")
)

// TransferEventID is the topic of Transfer(address,address,uint256).
var TransferEventID = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func mustLoad(name string) *abi.ABI {
	raw, err := abiFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("contracts: read %s: %v", name, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: parse %s: %v", name, err))
	}
	return &parsed
}
