package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

var (
	errShortData = errors.New("abi: data too short")
	two256       = new(big.Int).Lsh(big.NewInt(1), 256)
	maxInt255    = new(big.Int).Lsh(big.NewInt(1), 255)
)

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// topicOf returns the 0x-prefixed topic0 hash of an event signature.
func topicOf(signature string) string {
	return "0x" + hex.EncodeToString(keccak256([]byte(signature)))
}

func selectorOf(signature string) []byte {
	return keccak256([]byte(signature))[:4]
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func word(data []byte, i int) ([]byte, error) {
	start := i * wordSize
	if start+wordSize > len(data) {
		return nil, fmt.Errorf("%w: need word %d, have %d bytes", errShortData, i, len(data))
	}
	return data[start : start+wordSize], nil
}

func decodeUint256(w []byte) *big.Int {
	return new(big.Int).SetBytes(w)
}

// decodeInt256 reads a two's complement signed word.
func decodeInt256(w []byte) *big.Int {
	v := new(big.Int).SetBytes(w)
	if v.Cmp(maxInt255) >= 0 {
		v.Sub(v, two256)
	}
	return v
}

func uint256ToInt64(w []byte) (int64, error) {
	v := decodeUint256(w)
	if !v.IsInt64() {
		return 0, fmt.Errorf("abi: value %s overflows int64", v)
	}
	return v.Int64(), nil
}

// addressFromWord returns the lowercase hex address held in the low 20
// bytes of a topic or data word.
func addressFromWord(w []byte) string {
	return "0x" + hex.EncodeToString(w[wordSize-20:])
}

func topicWord(topic string) ([]byte, error) {
	b, err := decodeHex(topic)
	if err != nil {
		return nil, err
	}
	if len(b) != wordSize {
		return nil, fmt.Errorf("abi: topic has %d bytes", len(b))
	}
	return b, nil
}

// decodeString reads a dynamic string whose offset is stored in word i.
func decodeString(data []byte, i int) (string, error) {
	offWord, err := word(data, i)
	if err != nil {
		return "", err
	}
	off := decodeUint256(offWord)
	// Compare against what is left instead of adding, so huge words cannot wrap.
	if len(data) < wordSize || off.Cmp(big.NewInt(int64(len(data)-wordSize))) > 0 {
		return "", fmt.Errorf("%w: string offset %s", errShortData, off)
	}
	start := int(off.Int64())
	body := start + wordSize
	n := decodeUint256(data[start:body])
	if n.Cmp(big.NewInt(int64(len(data)-body))) > 0 {
		return "", fmt.Errorf("%w: string length %s", errShortData, n)
	}
	return string(data[body : body+int(n.Int64())]), nil
}

// encodeAddress left-pads a hex address to one word.
func encodeAddress(addr string) ([]byte, error) {
	b, err := decodeHex(addr)
	if err != nil {
		return nil, err
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("abi: address %q has %d bytes", addr, len(b))
	}
	out := make([]byte, wordSize)
	copy(out[wordSize-20:], b)
	return out, nil
}
