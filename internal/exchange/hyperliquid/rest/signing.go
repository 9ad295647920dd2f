package rest

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

var errPrivateKeyMissing = errors.New("private key is not configured")

type wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func newWalletFromHex(hexKey string) (*wallet, error) {
	key := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if key == "" {
		return nil, errPrivateKeyMissing
	}
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(keyBytes))
	}
	priv, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("construct private key: %w", err)
	}
	return &wallet{
		privateKey: priv,
		address:    crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

func (w *wallet) hexAddress() string {
	return strings.ToLower(w.address.Hex())
}

type signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

func (w *wallet) signTypedData(td apitypes.TypedData) (signature, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return signature{}, fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, w.privateKey)
	if err != nil {
		return signature{}, fmt.Errorf("sign typed data: %w", err)
	}
	return signature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}

// floatToWire renders at most 8 decimals without trailing zeros and refuses values that would lose precision.
func floatToWire(x float64) (string, error) {
	rounded := fmt.Sprintf("%.8f", x)
	parsed, err := strconv.ParseFloat(rounded, 64)
	if err != nil {
		return "", err
	}
	if math.Abs(parsed-x) >= 1e-12 {
		return "", fmt.Errorf("float_to_wire causes rounding: %v", x)
	}
	if strings.HasPrefix(rounded, "-0") && parsed == 0 {
		parsed = 0
	}
	return decimal.NewFromFloat(parsed).String(), nil
}

// msgpackMarshal encodes structs as maps in field order with compact integers, matching the exchange's hashing.
func msgpackMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func actionHash(action any, vaultAddress string, nonce uint64) ([]byte, error) {
	encoded, err := msgpackMarshal(action)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(encoded)
	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, nonce)
	buf.Write(nonceBytes)
	if vaultAddress == "" {
		buf.WriteByte(0x00)
	} else {
		buf.WriteByte(0x01)
		addr, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(vaultAddress), "0x"))
		if err != nil {
			return nil, fmt.Errorf("vault address: %w", err)
		}
		buf.Write(addr)
	}
	return crypto.Keccak256(buf.Bytes()), nil
}

func l1Payload(hash []byte, isMainnet bool) apitypes.TypedData {
	source := "b"
	if isMainnet {
		source = "a"
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           ethmath.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hash,
		},
	}
}

func signL1Action(w *wallet, action any, vaultAddress string, nonce uint64, isMainnet bool) (signature, error) {
	hash, err := actionHash(action, vaultAddress, nonce)
	if err != nil {
		return signature{}, err
	}
	return w.signTypedData(l1Payload(hash, isMainnet))
}
