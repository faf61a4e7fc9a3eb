package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names one of the contract events the indexer follows.
type Kind string

const (
	ItemListed        Kind = "ItemListed"
	PurchaseRequested Kind = "PurchaseRequested"
	PurchaseConfirmed Kind = "PurchaseConfirmed"
	FundsReleased     Kind = "FundsReleased"
	ReputationUpdated Kind = "ReputationUpdated"
)

// Kinds is the order in which one block range is applied.
var Kinds = []Kind{ItemListed, PurchaseRequested, PurchaseConfirmed, FundsReleased, ReputationUpdated}

var signatures = map[Kind]string{
	ItemListed:        "ItemListed(uint256,address,uint256,string)",
	PurchaseRequested: "PurchaseRequested(uint256,address,address)",
	PurchaseConfirmed: "PurchaseConfirmed(uint256,address)",
	FundsReleased:     "FundsReleased(uint256,address,address)",
	ReputationUpdated: "ReputationUpdated(address,int256,uint256)",
}

const reputationCall = "getAgentReputation(address)"

// Topic returns topic0 for kind.
func Topic(kind Kind) string {
	return topicOf(signatures[kind])
}

// Event is one decoded contract log. Only the fields of its Kind are set.
type Event struct {
	Kind        Kind
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string

	ListingID     int64
	Seller        string
	Buyer         string
	Agent         string
	Price         string
	ItemData      string
	Change        string
	NewReputation int64
}

// Log is the eth_getLogs result shape.
type Log struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

// Decode turns a raw log of the given kind into an Event.
func Decode(kind Kind, l Log) (Event, error) {
	ev := Event{Kind: kind, TxHash: strings.ToLower(l.TransactionHash)}
	var err error
	if ev.BlockNumber, err = parseQuantity(l.BlockNumber); err != nil {
		return ev, fmt.Errorf("blockNumber: %w", err)
	}
	if ev.LogIndex, err = parseQuantity(l.LogIndex); err != nil {
		return ev, fmt.Errorf("logIndex: %w", err)
	}

	topics := make([][]byte, len(l.Topics))
	for i, t := range l.Topics {
		if topics[i], err = topicWord(t); err != nil {
			return ev, err
		}
	}
	want := map[Kind]int{ItemListed: 3, PurchaseRequested: 4, PurchaseConfirmed: 3, FundsReleased: 4, ReputationUpdated: 2}[kind]
	if len(topics) != want {
		return ev, fmt.Errorf("%s: expected %d topics, got %d", kind, want, len(topics))
	}
	if !strings.EqualFold(l.Topics[0], Topic(kind)) {
		return ev, fmt.Errorf("%s: unexpected topic0 %s", kind, l.Topics[0])
	}
	data, err := decodeHex(l.Data)
	if err != nil {
		return ev, fmt.Errorf("%s data: %w", kind, err)
	}

	if kind != ReputationUpdated {
		if ev.ListingID, err = uint256ToInt64(topics[1]); err != nil {
			return ev, fmt.Errorf("%s listingId: %w", kind, err)
		}
	}

	switch kind {
	case ItemListed:
		ev.Seller = addressFromWord(topics[2])
		price, err := word(data, 0)
		if err != nil {
			return ev, err
		}
		ev.Price = decodeUint256(price).String()
		if ev.ItemData, err = decodeString(data, 1); err != nil {
			return ev, err
		}
	case PurchaseRequested:
		ev.Buyer = addressFromWord(topics[2])
		ev.Agent = addressFromWord(topics[3])
	case PurchaseConfirmed:
		ev.Seller = addressFromWord(topics[2])
	case FundsReleased:
		ev.Seller = addressFromWord(topics[2])
		ev.Buyer = addressFromWord(topics[3])
	case ReputationUpdated:
		ev.Agent = addressFromWord(topics[1])
		change, err := word(data, 0)
		if err != nil {
			return ev, err
		}
		ev.Change = decodeInt256(change).String()
		rep, err := word(data, 1)
		if err != nil {
			return ev, err
		}
		if ev.NewReputation, err = uint256ToInt64(rep); err != nil {
			return ev, fmt.Errorf("newReputation: %w", err)
		}
	default:
		return ev, fmt.Errorf("unknown event kind %q", kind)
	}
	return ev, nil
}

func parseQuantity(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}

func formatQuantity(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}
