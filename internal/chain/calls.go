package chain

import (
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

const (
	MethodCreateCollection   = "createCollection"
	MethodAddTrack           = "addTrack"
	MethodFinalizeCollection = "finalizeCollection"
)

// Signatures are the ABI signatures of the entry points the pipeline drives.
var Signatures = map[string]string{
	MethodCreateCollection:   "createCollection(string,string,string,string,string)",
	MethodAddTrack:           "addTrack(uint256,string,string,uint256,string[],uint8[],uint256[],uint256[])",
	MethodFinalizeCollection: "finalizeCollection(uint256)",
}

// Selector returns the 4-byte function selector for an ABI signature.
func Selector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var out [4]byte
	copy(out[:], h.Sum(nil)[:4])
	return out
}

// SelectorHex renders a selector as 0x-prefixed hex.
func SelectorHex(sel [4]byte) string {
	return "0x" + hex.EncodeToString(sel[:])
}

// Call is one contract invocation routed through the uniform submit/await shape.
type Call struct {
	Method string `json:"method"`
	Args   any    `json:"args"`
}

type CreateCollectionArgs struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Description string `json:"description"`
	CoverCID    string `json:"cover_cid"`
	Genre       string `json:"genre"`
}

// TierSetting carries one enabled tier's price and cap into addTrack.
type TierSetting struct {
	Tier      enums.Tier `json:"tier"`
	Price     *big.Int   `json:"price"`
	MaxSupply uint64     `json:"max_supply"`
}

type AddTrackArgs struct {
	CollectionID    uint64        `json:"collection_id"`
	Title           string        `json:"title"`
	AudioCID        string        `json:"audio_cid"`
	DurationSeconds uint64        `json:"duration_seconds"`
	Tags            []string      `json:"tags"`
	Tiers           []TierSetting `json:"tiers"`
}

type FinalizeCollectionArgs struct {
	CollectionID uint64 `json:"collection_id"`
}

func CreateCollectionCall(args CreateCollectionArgs) Call {
	return Call{Method: MethodCreateCollection, Args: args}
}

func AddTrackCall(args AddTrackArgs) Call {
	return Call{Method: MethodAddTrack, Args: args}
}

func FinalizeCollectionCall(collectionID uint64) Call {
	return Call{Method: MethodFinalizeCollection, Args: FinalizeCollectionArgs{CollectionID: collectionID}}
}
