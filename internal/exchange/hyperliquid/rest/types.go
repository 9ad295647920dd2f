package rest

import (
	json "github.com/goccy/go-json"
)

type infoRequest struct {
	Type      string `json:"type"`
	User      string `json:"user,omitempty"`
	StartTime int64  `json:"startTime,omitempty"`
}

type metaResponse struct {
	Universe []struct {
		Name        string `json:"name"`
		SzDecimals  int    `json:"szDecimals"`
		MaxLeverage int    `json:"maxLeverage"`
		IsDelisted  bool   `json:"isDelisted"`
	} `json:"universe"`
}

// Field order of the wire structs is part of the signed hash.

type limitWire struct {
	TIF string `msgpack:"tif" json:"tif"`
}

type orderTypeWire struct {
	Limit limitWire `msgpack:"limit" json:"limit"`
}

type orderWire struct {
	Asset      int           `msgpack:"a" json:"a"`
	IsBuy      bool          `msgpack:"b" json:"b"`
	Price      string        `msgpack:"p" json:"p"`
	Size       string        `msgpack:"s" json:"s"`
	ReduceOnly bool          `msgpack:"r" json:"r"`
	OrderType  orderTypeWire `msgpack:"t" json:"t"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []orderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type cancelWire struct {
	Asset   int   `msgpack:"a" json:"a"`
	OrderID int64 `msgpack:"o" json:"o"`
}

type cancelAction struct {
	Type    string       `msgpack:"type" json:"type"`
	Cancels []cancelWire `msgpack:"cancels" json:"cancels"`
}

type exchangeRequest struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    signature `json:"signature"`
	VaultAddress *string   `json:"vaultAddress"`
}

// exchangeResponse carries a status body on "ok" and an error string on "err".
type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type exchangeResponseBody struct {
	Type string `json:"type"`
	Data struct {
		Statuses []json.RawMessage `json:"statuses"`
	} `json:"data"`
}

type statusEntry struct {
	Resting *struct {
		OrderID int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		OrderID int64  `json:"oid"`
	} `json:"filled,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"-"`
}

func (e *statusEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.Success = s == "success"
		if !e.Success {
			e.Error = s
		}
		return nil
	}
	type alias statusEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = statusEntry(a)
	return nil
}
