package inventory

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type listCursor struct {
	SKU string `json:"sku"`
}

func encodeCursor(c listCursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

func decodeCursor(encoded string) (listCursor, error) {
	var c listCursor
	if encoded == "" {
		return c, nil
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return c, nil
}
