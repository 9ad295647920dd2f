package fills

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"hyperbot/internal/models"
)

const hashLength = 16

// FillHash identifies a fill by content. The exchange tx hash is not used because one transaction can carry several fills.
func FillHash(f models.Fill) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(f.OrderID, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(f.TradeID, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(f.Time, 10))
	b.WriteByte('|')
	b.WriteString(f.Coin)
	b.WriteByte('|')
	b.WriteString(f.Price.String())
	b.WriteByte('|')
	b.WriteString(f.Size.String())

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:hashLength]
}
